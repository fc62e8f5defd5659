package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VitalSync/health_layer/internal/app/runtime"
	"github.com/VitalSync/health_layer/internal/config"
	"github.com/VitalSync/health_layer/internal/logging"
	"github.com/VitalSync/health_layer/internal/platform/migrations"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gateway",
		Short:        "VitalSync health tracking API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logging.New("gateway", cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := runtime.NewApplication(ctx, cfg, log)
			if err != nil {
				return err
			}
			log.WithField("version", version).Info("starting gateway")
			return application.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("VITALSYNC_CONFIG"), "path to a YAML config file")
	return cmd
}

func migrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv(config.EnvPrefix+"DATABASE_DSN"), "PostgreSQL connection string")

	requireDSN := func() error {
		if dsn == "" {
			return errors.New("--dsn or VITALSYNC_DATABASE_DSN is required")
		}
		return nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDSN(); err != nil {
				return err
			}
			if err := migrations.Apply(dsn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDSN(); err != nil {
				return err
			}
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			if err := migrations.Rollback(dsn, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDSN(); err != nil {
				return err
			}
			v, dirty, ok, err := migrations.Version(dsn)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, ver)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
