package app

import (
	"context"
	"fmt"

	"github.com/VitalSync/health_layer/internal/app/services/appointments"
	"github.com/VitalSync/health_layer/internal/app/services/auth"
	"github.com/VitalSync/health_layer/internal/app/services/challenges"
	"github.com/VitalSync/health_layer/internal/app/services/dashboard"
	"github.com/VitalSync/health_layer/internal/app/services/fitness"
	"github.com/VitalSync/health_layer/internal/app/services/glucose"
	"github.com/VitalSync/health_layer/internal/app/services/medications"
	"github.com/VitalSync/health_layer/internal/app/services/notifications"
	"github.com/VitalSync/health_layer/internal/app/services/profiles"
	"github.com/VitalSync/health_layer/internal/app/services/reminders"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/app/storage/memory"
	"github.com/VitalSync/health_layer/internal/app/system"
	"github.com/VitalSync/health_layer/internal/blob"
	"github.com/VitalSync/health_layer/internal/cache"
	"github.com/VitalSync/health_layer/internal/config"
	"github.com/VitalSync/health_layer/internal/logging"
	"github.com/VitalSync/health_layer/internal/realtime"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts      storage.AccountStore
	Sessions      storage.SessionStore
	Profiles      storage.ProfileStore
	Fitness       storage.FitnessStore
	Glucose       storage.GlucoseStore
	Medications   storage.MedicationStore
	Appointments  storage.AppointmentStore
	Challenges    storage.ChallengeStore
	Notifications storage.NotificationStore
}

// Infra holds optional infrastructure. A nil Blobs disables avatar uploads; a
// nil Cache uses an in-process cache.
type Infra struct {
	Blobs blob.Store
	Cache cache.Cache
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger
	cfg     *config.Config

	Hub           *realtime.Hub
	Blobs         blob.Store
	Auth          *auth.Service
	Profiles      *profiles.Service
	Fitness       *fitness.Service
	Glucose       *glucose.Service
	Medications   *medications.Service
	Appointments  *appointments.Service
	Challenges    *challenges.Service
	Notifications *notifications.Service
	Dashboard     *dashboard.Service
	Reminders     *reminders.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, infra Infra, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Fitness == nil {
		stores.Fitness = mem
	}
	if stores.Glucose == nil {
		stores.Glucose = mem
	}
	if stores.Medications == nil {
		stores.Medications = mem
	}
	if stores.Appointments == nil {
		stores.Appointments = mem
	}
	if stores.Challenges == nil {
		stores.Challenges = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if infra.Cache == nil {
		infra.Cache = cache.NewMemory()
	}

	authService, err := auth.New(stores.Accounts, stores.Sessions, cfg.Auth, log.Named("auth"))
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(cfg.CORS.AllowedOrigins, log.Named("realtime"))
	notifyService := notifications.New(stores.Notifications, hub, log.Named("notifications"))
	challengeService := challenges.New(stores.Challenges, stores.Accounts, stores.Profiles, log.Named("challenges"),
		challenges.WithCache(infra.Cache, cfg.Cache.LeaderboardTTL),
		challenges.WithNotifier(notifyService),
	)
	fitnessService := fitness.New(stores.Fitness, challengeService, log.Named("fitness"))
	glucoseService := glucose.New(stores.Glucose, log.Named("glucose"))
	medService := medications.New(stores.Medications, log.Named("medications"))
	apptService := appointments.New(stores.Appointments, log.Named("appointments"))
	profileService := profiles.New(stores.Profiles, fitnessService, medService, infra.Blobs, cfg.Uploads.MaxBytes, log.Named("profiles"))
	dashService := dashboard.New(dashboard.Sources{
		Profiles:      profileService,
		Fitness:       fitnessService,
		Glucose:       glucoseService,
		Medications:   medService,
		Appointments:  apptService,
		Challenges:    challengeService,
		Notifications: notifyService,
	}, log.Named("dashboard"))
	scheduler := reminders.New(stores.Medications, stores.Appointments, notifyService, authService,
		cfg.Reminders.Schedule, log.Named("reminders"))

	manager := system.NewManager()
	services := []system.Service{hub}
	if cfg.Reminders.Enabled {
		services = append(services, scheduler)
	} else {
		log.Warn("reminders disabled; medication and appointment reminders will not be sent")
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		cfg:           cfg,
		Hub:           hub,
		Blobs:         infra.Blobs,
		Auth:          authService,
		Profiles:      profileService,
		Fitness:       fitnessService,
		Glucose:       glucoseService,
		Medications:   medService,
		Appointments:  apptService,
		Challenges:    challengeService,
		Notifications: notifyService,
		Dashboard:     dashService,
		Reminders:     scheduler,
	}, nil
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Services lists the lifecycle-managed services in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
