// Package runtime wires configuration into stores, infrastructure and the HTTP
// server, and owns the process lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/VitalSync/health_layer/internal/app"
	"github.com/VitalSync/health_layer/internal/app/httpapi"
	"github.com/VitalSync/health_layer/internal/app/storage/postgres"
	"github.com/VitalSync/health_layer/internal/blob"
	"github.com/VitalSync/health_layer/internal/cache"
	"github.com/VitalSync/health_layer/internal/config"
	"github.com/VitalSync/health_layer/internal/logging"
	"github.com/VitalSync/health_layer/internal/platform/migrations"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	app     *app.Application
	handler http.Handler
	server  *http.Server
	closers []func() error

	mu       sync.Mutex
	addr     net.Addr
	ready    chan struct{}
	shutdown sync.Once
	stopErr  error
}

// NewApplication constructs the application from cfg. Nothing listens or runs
// in the background until Run.
func NewApplication(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("gateway", cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, log: log, ready: make(chan struct{})}

	stores, err := a.buildStores(cfg.Database)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	infra, err := a.buildInfra(ctx, cfg)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("configure infrastructure: %w", err)
	}

	application, err := app.New(cfg, stores, infra, log)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	handler, err := httpapi.NewHandler(application, log.Named("http"))
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("build http handler: %w", err)
	}

	a.app = application
	a.handler = handler
	a.server = &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// App exposes the composed services.
func (a *Application) App() *app.Application { return a.app }

// Handler returns the root HTTP handler.
func (a *Application) Handler() http.Handler { return a.handler }

// Addr returns the listening address once Run has bound it, or nil.
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Ready is closed once the HTTP listener is bound.
func (a *Application) Ready() <-chan struct{} { return a.ready }

// Run starts background services and serves HTTP until ctx is cancelled or the
// server fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		a.closeResources()
		return fmt.Errorf("start services: %w", err)
	}

	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		stopErr := a.Shutdown(context.WithoutCancel(ctx))
		return errors.Join(fmt.Errorf("listen: %w", err), stopErr)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()
	close(a.ready)

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the HTTP server and background services and releases
// connections. Later calls return the first result.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdown.Do(func() {
		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.app.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop services: %w", err))
		}
		a.closeResources()
		a.stopErr = errors.Join(errs...)
		a.log.Info("gateway stopped")
	})
	return a.stopErr
}

func (a *Application) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("error releasing resource")
		}
	}
	a.closers = nil
}

func (a *Application) buildStores(cfg config.DatabaseConfig) (app.Stores, error) {
	switch cfg.Driver {
	case "", "memory":
		a.log.Warn("using in-memory storage; data is lost on restart")
		return app.Stores{}, nil
	case "postgres":
	default:
		return app.Stores{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.AutoMigrate {
		if err := migrations.Apply(cfg.DSN); err != nil {
			return app.Stores{}, err
		}
		a.log.Info("database migrations applied")
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return app.Stores{}, err
	}
	a.closers = append(a.closers, db.Close)

	store := postgres.New(db)
	return app.Stores{
		Accounts:      store,
		Sessions:      store,
		Profiles:      store,
		Fitness:       store,
		Glucose:       store,
		Medications:   store,
		Appointments:  store,
		Challenges:    store,
		Notifications: store,
	}, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func (a *Application) buildInfra(ctx context.Context, cfg *config.Config) (app.Infra, error) {
	var infra app.Infra

	switch cfg.Uploads.Backend {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:        cfg.Uploads.S3Bucket,
			Region:        cfg.Uploads.S3Region,
			Endpoint:      cfg.Uploads.S3Endpoint,
			PublicBaseURL: cfg.Uploads.PublicBaseURL,
		})
		if err != nil {
			return infra, err
		}
		infra.Blobs = store
	default:
		store, err := blob.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.PublicBaseURL)
		if err != nil {
			return infra, err
		}
		infra.Blobs = store
	}

	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   "vitalsync:",
		})
		if err != nil {
			return infra, err
		}
		a.closers = append(a.closers, redisCache.Close)
		infra.Cache = redisCache
		a.log.WithField("addr", cfg.Cache.RedisAddr).Info("leaderboard cache backed by redis")
	}
	return infra, nil
}
