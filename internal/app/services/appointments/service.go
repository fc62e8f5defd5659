// Package appointments schedules visits with care providers.
package appointments

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	DefaultDurationMinutes = 30
	MinDurationMinutes     = 5
	MaxDurationMinutes     = 480

	maxTextLen = 500
)

type Service struct {
	store storage.AppointmentStore
	log   *logging.Logger
	now   func() time.Time
}

func New(store storage.AppointmentStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("appointments")
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Create books a scheduled appointment that does not overlap another
// scheduled appointment of the user.
func (s *Service) Create(ctx context.Context, userID string, in appointment.Appointment) (appointment.Appointment, error) {
	appt := appointment.Appointment{UserID: userID, Status: appointment.StatusScheduled}
	if err := s.apply(&appt, in); err != nil {
		return appointment.Appointment{}, err
	}
	if err := s.checkOverlap(ctx, appt); err != nil {
		return appointment.Appointment{}, err
	}
	created, err := s.store.CreateAppointment(ctx, appt)
	if stderrors.Is(err, storage.ErrConflict) {
		return appointment.Appointment{}, overlapError()
	}
	if err != nil {
		return appointment.Appointment{}, errors.Internal("create appointment", err)
	}
	s.log.WithContext(ctx).
		WithField("appointment_id", created.ID).
		WithField("starts_at", created.StartsAt).
		Info("appointment booked")
	return created, nil
}

// List returns appointments by start time. upcoming keeps scheduled
// appointments that have not started.
func (s *Service) List(ctx context.Context, userID string, upcoming bool) ([]appointment.Appointment, error) {
	appts, err := s.store.ListAppointments(ctx, userID)
	if err != nil {
		return nil, errors.Internal("list appointments", err)
	}
	if !upcoming {
		return appts, nil
	}
	now := s.now()
	out := make([]appointment.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == appointment.StatusScheduled && a.StartsAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (appointment.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && appt.UserID != userID) {
		return appointment.Appointment{}, errors.NotFound("appointment", id)
	}
	if err != nil {
		return appointment.Appointment{}, errors.Internal("load appointment", err)
	}
	return appt, nil
}

// Update reschedules or edits a scheduled appointment.
func (s *Service) Update(ctx context.Context, userID, id string, in appointment.Appointment) (appointment.Appointment, error) {
	appt, err := s.Get(ctx, userID, id)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if appt.Status != appointment.StatusScheduled {
		return appointment.Appointment{}, errors.Conflict(fmt.Sprintf("%s appointments cannot be edited", appt.Status))
	}
	if err := s.apply(&appt, in); err != nil {
		return appointment.Appointment{}, err
	}
	if err := s.checkOverlap(ctx, appt); err != nil {
		return appointment.Appointment{}, err
	}
	return s.save(ctx, appt)
}

// Cancel moves a scheduled appointment to cancelled.
func (s *Service) Cancel(ctx context.Context, userID, id string) (appointment.Appointment, error) {
	appt, err := s.Get(ctx, userID, id)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if appt.Status != appointment.StatusScheduled {
		return appointment.Appointment{}, errors.Conflict(fmt.Sprintf("cannot cancel a %s appointment", appt.Status))
	}
	appt.Status = appointment.StatusCancelled
	return s.save(ctx, appt)
}

// Complete marks a scheduled appointment that has started as completed.
func (s *Service) Complete(ctx context.Context, userID, id string) (appointment.Appointment, error) {
	appt, err := s.Get(ctx, userID, id)
	if err != nil {
		return appointment.Appointment{}, err
	}
	if appt.Status != appointment.StatusScheduled {
		return appointment.Appointment{}, errors.Conflict(fmt.Sprintf("cannot complete a %s appointment", appt.Status))
	}
	if appt.StartsAt.After(s.now()) {
		return appointment.Appointment{}, errors.Validation("status", "appointment has not started yet")
	}
	appt.Status = appointment.StatusCompleted
	return s.save(ctx, appt)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := s.store.DeleteAppointment(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("appointment", id)
	}
	if err != nil {
		return errors.Internal("delete appointment", err)
	}
	return nil
}

func (s *Service) save(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	updated, err := s.store.UpdateAppointment(ctx, appt)
	if stderrors.Is(err, storage.ErrNotFound) {
		return appointment.Appointment{}, errors.NotFound("appointment", appt.ID)
	}
	if stderrors.Is(err, storage.ErrConflict) {
		return appointment.Appointment{}, overlapError()
	}
	if err != nil {
		return appointment.Appointment{}, errors.Internal("update appointment", err)
	}
	return updated, nil
}

func (s *Service) apply(appt *appointment.Appointment, in appointment.Appointment) error {
	name := strings.TrimSpace(in.ProviderName)
	if name == "" {
		return errors.Validation("provider_name", "is required")
	}
	if in.StartsAt.IsZero() {
		return errors.Validation("starts_at", "is required")
	}
	if !in.StartsAt.After(s.now()) {
		return errors.Validation("starts_at", "must be in the future")
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	if duration < MinDurationMinutes || duration > MaxDurationMinutes {
		return errors.Validation("duration_minutes", fmt.Sprintf("must be between %d and %d", MinDurationMinutes, MaxDurationMinutes))
	}
	for field, v := range map[string]string{"location": in.Location, "notes": in.Notes, "specialty": in.Specialty} {
		if len(v) > maxTextLen {
			return errors.Validation(field, fmt.Sprintf("must be at most %d characters", maxTextLen))
		}
	}

	appt.ProviderID = strings.TrimSpace(in.ProviderID)
	appt.ProviderName = name
	appt.Specialty = strings.TrimSpace(in.Specialty)
	appt.StartsAt = in.StartsAt.UTC()
	appt.DurationMinutes = duration
	appt.Location = strings.TrimSpace(in.Location)
	appt.Notes = strings.TrimSpace(in.Notes)
	return nil
}

// checkOverlap rejects appt when it intersects another scheduled appointment
// of the same user.
func (s *Service) checkOverlap(ctx context.Context, appt appointment.Appointment) error {
	existing, err := s.store.ListAppointments(ctx, appt.UserID)
	if err != nil {
		return errors.Internal("list appointments", err)
	}
	for _, other := range existing {
		if other.ID == appt.ID || other.Status != appointment.StatusScheduled {
			continue
		}
		if appt.Overlaps(other) {
			return overlapError().WithDetails("conflicting_id", other.ID)
		}
	}
	return nil
}

// overlapError is also returned when the store detects an overlap that a
// concurrent booking created after checkOverlap ran.
func overlapError() *errors.ServiceError {
	return errors.Conflict("appointment overlaps another scheduled appointment")
}
