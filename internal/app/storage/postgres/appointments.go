package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/storage"
)

type appointmentRow struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	ProviderID      string    `db:"provider_id"`
	ProviderName    string    `db:"provider_name"`
	Specialty       string    `db:"specialty"`
	StartsAt        time.Time `db:"starts_at"`
	DurationMinutes int       `db:"duration_minutes"`
	Location        string    `db:"location"`
	Notes           string    `db:"notes"`
	Status          string    `db:"status"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r appointmentRow) toDomain() appointment.Appointment {
	return appointment.Appointment{
		ID:              r.ID,
		UserID:          r.UserID,
		ProviderID:      r.ProviderID,
		ProviderName:    r.ProviderName,
		Specialty:       r.Specialty,
		StartsAt:        r.StartsAt.UTC(),
		DurationMinutes: r.DurationMinutes,
		Location:        r.Location,
		Notes:           r.Notes,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

const appointmentColumns = `id, user_id, provider_id, provider_name, specialty, starts_at, duration_minutes, location, notes, status, created_at, updated_at`

// --- AppointmentStore -------------------------------------------------------

func (s *Store) CreateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	ts := now()
	appt.CreatedAt = ts
	appt.UpdatedAt = ts

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockAppointments(ctx, tx, appt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, appt.ID, appt.UserID, appt.ProviderID, appt.ProviderName, appt.Specialty, appt.StartsAt,
			appt.DurationMinutes, appt.Location, appt.Notes, appt.Status, appt.CreatedAt, appt.UpdatedAt)
		return mapError(err)
	})
	if err != nil {
		return appointment.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing appointmentRow
		if err := tx.GetContext(ctx, &existing, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, appt.ID); err != nil {
			return mapError(err)
		}
		appt.UserID = existing.UserID
		appt.CreatedAt = existing.CreatedAt.UTC()
		appt.UpdatedAt = now()

		if err := lockAppointments(ctx, tx, appt); err != nil {
			return err
		}
		return expectRows(tx.ExecContext(ctx, `
			UPDATE appointments
			SET provider_id = $2, provider_name = $3, specialty = $4, starts_at = $5, duration_minutes = $6,
			    location = $7, notes = $8, status = $9, updated_at = $10
			WHERE id = $1
		`, appt.ID, appt.ProviderID, appt.ProviderName, appt.Specialty, appt.StartsAt, appt.DurationMinutes,
			appt.Location, appt.Notes, appt.Status, appt.UpdatedAt))
	})
	if err != nil {
		return appointment.Appointment{}, err
	}
	return appt, nil
}

// lockAppointments serializes writers for the owner's calendar and rejects a
// scheduled appointment that intersects another scheduled one.
func lockAppointments(ctx context.Context, tx *sqlx.Tx, appt appointment.Appointment) error {
	if err := lockKey(ctx, tx, "appointments:"+appt.UserID); err != nil {
		return err
	}
	if appt.Status != appointment.StatusScheduled {
		return nil
	}
	var conflicting string
	err := tx.GetContext(ctx, &conflicting, `
		SELECT id
		FROM appointments
		WHERE user_id = $1 AND status = $2 AND id <> $3
		  AND starts_at < $4
		  AND starts_at + duration_minutes * INTERVAL '1 minute' > $5
		LIMIT 1
	`, appt.UserID, appointment.StatusScheduled, appt.ID, appt.EndsAt(), appt.StartsAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return mapError(err)
	default:
		return storage.ErrConflict
	}
}

func (s *Store) GetAppointment(ctx context.Context, id string) (appointment.Appointment, error) {
	var row appointmentRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id); err != nil {
		return appointment.Appointment{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAppointments(ctx context.Context, userID string) ([]appointment.Appointment, error) {
	return s.selectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY starts_at, id
	`, userID)
}

func (s *Store) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	return s.selectAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at, id
	`, appointment.StatusScheduled, from, to)
}

func (s *Store) selectAppointments(ctx context.Context, query string, args ...any) ([]appointment.Appointment, error) {
	var rows []appointmentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]appointment.Appointment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id))
}
