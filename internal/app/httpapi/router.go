// Package httpapi exposes the application services over a JSON REST API.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/VitalSync/health_layer/internal/app"
	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/metrics"
	"github.com/VitalSync/health_layer/internal/blob"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/httputil"
	"github.com/VitalSync/health_layer/internal/logging"
	"github.com/VitalSync/health_layer/internal/middleware"
)

// APIPrefix is the mount point of every versioned route.
const APIPrefix = "/api/v1"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logging.Logger
	audit *auditLog
}

// NewHandler builds the gateway's HTTP handler. It attaches the rate limiter's
// cleanup loop to application, so call it before application.Start.
func NewHandler(application *app.Application, log *logging.Logger) (http.Handler, error) {
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	cfg := application.Config()

	sink, err := newFileAuditSink(cfg.Server.AuditLogPath)
	if err != nil {
		return nil, err
	}
	h := &handler{
		app:   application,
		log:   log,
		audit: newAuditLog(cfg.Server.AuditBufferSize, sink),
	}

	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, errors.NotFound("route", r.URL.Path))
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	root.Use(middleware.MetricsMiddleware())
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		if err := application.Attach(limiter); err != nil {
			return nil, err
		}
		root.Use(limiter.Handler)
	}

	root.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if disk, ok := application.Blobs.(*blob.DiskStore); ok {
		prefix := strings.TrimRight(cfg.Uploads.PublicBaseURL, "/")
		if strings.HasPrefix(prefix, "/") && prefix != "" {
			root.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, disk.Handler())).Methods(http.MethodGet, http.MethodHead)
		}
	}

	api := root.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	authn := api.NewRoute().Subrouter()
	authn.Use(middleware.NewAuthMiddleware(application.Auth, log).Handler)
	authn.Use(h.audit.middleware)
	h.userRoutes(authn)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.NewAuthMiddleware(application.Auth, log).Handler)
	admin.Use(middleware.RequireRole(log, account.RoleAdmin))
	admin.Use(h.audit.middleware)
	admin.HandleFunc("/challenges", h.createChallenge).Methods(http.MethodPost)
	admin.HandleFunc("/notifications", h.broadcastNotification).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	var out http.Handler = root
	out = middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler(out)
	out = middleware.NewTracingMiddleware(log).Handler(out)
	return out, nil
}

func (h *handler) userRoutes(r *mux.Router) {
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/auth/password", h.changePassword).Methods(http.MethodPost)

	r.HandleFunc("/profile", h.getProfile).Methods(http.MethodGet)
	r.HandleFunc("/profile/onboarding", h.submitOnboarding).Methods(http.MethodPost)
	r.HandleFunc("/profile/onboarding/progress", h.saveProgress).Methods(http.MethodPut)
	r.HandleFunc("/profile/personal", h.updatePersonal).Methods(http.MethodPut)
	r.HandleFunc("/profile/dashboard", h.updateDashboard).Methods(http.MethodPut)
	r.HandleFunc("/profile/care-team", h.listProviders).Methods(http.MethodGet)
	r.HandleFunc("/profile/care-team", h.addProvider).Methods(http.MethodPost)
	r.HandleFunc("/profile/care-team/{id}", h.removeProvider).Methods(http.MethodDelete)
	r.HandleFunc("/profile/avatar", h.uploadAvatar).Methods(http.MethodPost)

	r.HandleFunc("/fitness/goals", h.getGoals).Methods(http.MethodGet)
	r.HandleFunc("/fitness/goals", h.setGoals).Methods(http.MethodPut)
	r.HandleFunc("/fitness/logs", h.listLogs).Methods(http.MethodGet)
	r.HandleFunc("/fitness/logs", h.logActivity).Methods(http.MethodPost)
	r.HandleFunc("/fitness/logs/{id}", h.deleteLog).Methods(http.MethodDelete)
	r.HandleFunc("/fitness/daily", h.dailySummary).Methods(http.MethodGet)
	r.HandleFunc("/fitness/weekly", h.weeklyStats).Methods(http.MethodGet)

	r.HandleFunc("/glucose", h.listReadings).Methods(http.MethodGet)
	r.HandleFunc("/glucose", h.recordReading).Methods(http.MethodPost)
	r.HandleFunc("/glucose/summary", h.glucoseSummary).Methods(http.MethodGet)
	r.HandleFunc("/glucose/{id}", h.deleteReading).Methods(http.MethodDelete)

	r.HandleFunc("/medications", h.listMedications).Methods(http.MethodGet)
	r.HandleFunc("/medications", h.createMedication).Methods(http.MethodPost)
	r.HandleFunc("/medications/adherence", h.adherence).Methods(http.MethodGet)
	r.HandleFunc("/medications/{id}", h.getMedication).Methods(http.MethodGet)
	r.HandleFunc("/medications/{id}", h.updateMedication).Methods(http.MethodPut)
	r.HandleFunc("/medications/{id}", h.deleteMedication).Methods(http.MethodDelete)
	r.HandleFunc("/medications/{id}/doses", h.recordDose).Methods(http.MethodPost)

	r.HandleFunc("/appointments", h.listAppointments).Methods(http.MethodGet)
	r.HandleFunc("/appointments", h.createAppointment).Methods(http.MethodPost)
	r.HandleFunc("/appointments/{id}", h.getAppointment).Methods(http.MethodGet)
	r.HandleFunc("/appointments/{id}", h.updateAppointment).Methods(http.MethodPut)
	r.HandleFunc("/appointments/{id}", h.deleteAppointment).Methods(http.MethodDelete)
	r.HandleFunc("/appointments/{id}/cancel", h.cancelAppointment).Methods(http.MethodPost)
	r.HandleFunc("/appointments/{id}/complete", h.completeAppointment).Methods(http.MethodPost)

	r.HandleFunc("/challenges", h.listChallenges).Methods(http.MethodGet)
	r.HandleFunc("/challenges/mine", h.myChallenges).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{id}", h.getChallenge).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{id}/join", h.joinChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{id}/leave", h.leaveChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{id}/progress", h.addProgress).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{id}/leaderboard", h.leaderboard).Methods(http.MethodGet)

	r.HandleFunc("/notifications", h.listNotifications).Methods(http.MethodGet)
	r.HandleFunc("/notifications/unread-count", h.unreadCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.markAllRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/stream", h.stream).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/read", h.markRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}", h.deleteNotification).Methods(http.MethodDelete)

	r.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": h.app.Services(),
	})
}
