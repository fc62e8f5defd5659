// Package reminders runs the cron job that turns medication times and
// upcoming appointments into notifications.
package reminders

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/metrics"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/app/system"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	// DefaultSchedule runs the job every minute.
	DefaultSchedule = "@every 1m"
	// AppointmentLead is how far ahead appointment reminders are sent.
	AppointmentLead = 60 * time.Minute

	maxCatchUp = time.Hour
	runTimeout = 30 * time.Second
)

var _ system.Service = (*Scheduler)(nil)

// Notifier creates deduplicated notifications.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, message, dedupeKey string) (notification.Notification, bool, error)
}

// SessionPurger removes expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int, error)
}

// Result summarises one run.
type Result struct {
	MedicationReminders  int
	AppointmentReminders int
	PurgedSessions       int
}

// Scheduler is a system.Service driving RunOnce from a cron spec.
type Scheduler struct {
	meds     storage.MedicationStore
	appts    storage.AppointmentStore
	notifier Notifier
	purger   SessionPurger
	spec     string
	log      *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	lastRun time.Time
}

// New creates a scheduler. purger may be nil.
func New(meds storage.MedicationStore, appts storage.AppointmentStore, notifier Notifier, purger SessionPurger, spec string, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("reminders")
	}
	if strings.TrimSpace(spec) == "" {
		spec = DefaultSchedule
	}
	return &Scheduler{
		meds:     meds,
		appts:    appts,
		notifier: notifier,
		purger:   purger,
		spec:     spec,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Name() string { return "reminder-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid reminder schedule %q: %w", s.spec, err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.WithField("schedule", s.spec).Info("reminder scheduler started")
	return nil
}

// Stop cancels a running job and waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("reminder scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	res, err := s.RunOnce(ctx)
	entry := s.log.WithField("medication_reminders", res.MedicationReminders).
		WithField("appointment_reminders", res.AppointmentReminders).
		WithField("purged_sessions", res.PurgedSessions)
	if err != nil {
		entry.WithError(err).Warn("reminder run finished with errors")
		return
	}
	if res != (Result{}) {
		entry.Info("reminder run finished")
	}
}

// RunOnce sends the reminders due now. Medication times missed since the
// previous run (up to an hour back) are caught up; dedupe keys keep every
// reminder to a single notification.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	started := time.Now()
	now := s.now().UTC()

	s.mu.Lock()
	from := s.lastRun
	s.lastRun = now
	s.mu.Unlock()
	if from.IsZero() || now.Sub(from) > maxCatchUp || from.After(now) {
		from = now
	}

	var res Result
	var errs []error

	n, err := s.medicationReminders(ctx, from, now)
	res.MedicationReminders = n
	errs = append(errs, err)

	n, err = s.appointmentReminders(ctx, now)
	res.AppointmentReminders = n
	errs = append(errs, err)

	if s.purger != nil {
		n, err = s.purger.PurgeExpiredSessions(ctx)
		res.PurgedSessions = n
		errs = append(errs, err)
	}

	err = stderrors.Join(errs...)
	metrics.RecordReminderRun(time.Since(started), err == nil)
	return res, err
}

// Slot is one scheduled minute a medication reminder may fire for.
type slot struct {
	day  time.Time
	hhmm string
}

func slots(from, to time.Time) []slot {
	var out []slot
	for m := from.Truncate(time.Minute); !m.After(to); m = m.Add(time.Minute) {
		out = append(out, slot{
			day:  time.Date(m.Year(), m.Month(), m.Day(), 0, 0, 0, 0, time.UTC),
			hhmm: m.Format("15:04"),
		})
	}
	return out
}

func (s *Scheduler) medicationReminders(ctx context.Context, from, to time.Time) (int, error) {
	meds, err := s.meds.ListActiveMedications(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active medications: %w", err)
	}
	due := slots(from, to)

	sent := 0
	var errs []error
	for _, m := range meds {
		if m.Frequency == medication.FrequencyAsNeeded {
			continue
		}
		for _, sl := range due {
			if !Due(m, sl.day, sl.hhmm) {
				continue
			}
			key := MedicationKey(m.ID, sl.day, sl.hhmm)
			title := "Time to take " + m.Name
			message := fmt.Sprintf("Scheduled dose at %s UTC.", sl.hhmm)
			if m.Dosage != "" {
				message = fmt.Sprintf("Take %s of %s at %s UTC.", m.Dosage, m.Name, sl.hhmm)
			}
			_, created, err := s.notifier.Notify(ctx, m.UserID, notification.TypeMedicationReminder, title, message, key)
			if err != nil {
				errs = append(errs, fmt.Errorf("medication %s: %w", m.ID, err))
				continue
			}
			if created {
				sent++
			}
		}
	}
	return sent, stderrors.Join(errs...)
}

func (s *Scheduler) appointmentReminders(ctx context.Context, now time.Time) (int, error) {
	appts, err := s.appts.ListScheduledBetween(ctx, now, now.Add(AppointmentLead))
	if err != nil {
		return 0, fmt.Errorf("list upcoming appointments: %w", err)
	}
	sent := 0
	var errs []error
	for _, a := range appts {
		if a.Status != appointment.StatusScheduled {
			continue
		}
		message := fmt.Sprintf("%s at %s UTC", a.ProviderName, a.StartsAt.UTC().Format("15:04"))
		if a.Location != "" {
			message += ", " + a.Location
		}
		_, created, err := s.notifier.Notify(ctx, a.UserID, notification.TypeAppointmentReminder, "Upcoming appointment", message, AppointmentKey(a.ID))
		if err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", a.ID, err))
			continue
		}
		if created {
			sent++
		}
	}
	return sent, stderrors.Join(errs...)
}

// Due reports whether m has a dose at hhmm on day. Weekly medications are due
// on the weekday of their start date, or of their creation when undated.
func Due(m medication.Medication, day time.Time, hhmm string) bool {
	if !m.Active || !m.CoversDay(day) {
		return false
	}
	if m.Frequency == medication.FrequencyWeekly {
		anchor := m.CreatedAt
		if m.StartDate != nil {
			anchor = *m.StartDate
		}
		if anchor.UTC().Weekday() != day.Weekday() {
			return false
		}
	}
	for _, t := range m.Times {
		if t == hhmm {
			return true
		}
	}
	return false
}

// MedicationKey dedupes one dose reminder: med:<id>:<YYYY-MM-DD>T<HH:MM>.
func MedicationKey(medicationID string, day time.Time, hhmm string) string {
	return "med:" + medicationID + ":" + day.Format("2006-01-02") + "T" + hhmm
}

// AppointmentKey dedupes the reminder of one appointment.
func AppointmentKey(appointmentID string) string {
	return "appt:" + appointmentID
}
