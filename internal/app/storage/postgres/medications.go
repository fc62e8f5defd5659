package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/VitalSync/health_layer/internal/app/domain/medication"
)

type medicationRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Name      string         `db:"name"`
	Dosage    string         `db:"dosage"`
	Frequency string         `db:"frequency"`
	Times     pq.StringArray `db:"times"`
	StartDate sql.NullTime   `db:"start_date"`
	EndDate   sql.NullTime   `db:"end_date"`
	Notes     string         `db:"notes"`
	Active    bool           `db:"active"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r medicationRow) toDomain() medication.Medication {
	return medication.Medication{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Dosage:    r.Dosage,
		Frequency: r.Frequency,
		Times:     append([]string{}, r.Times...),
		StartDate: timePtr(r.StartDate),
		EndDate:   timePtr(r.EndDate),
		Notes:     r.Notes,
		Active:    r.Active,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type doseRow struct {
	ID           string    `db:"id"`
	MedicationID string    `db:"medication_id"`
	UserID       string    `db:"user_id"`
	Status       string    `db:"status"`
	ScheduledFor time.Time `db:"scheduled_for"`
	RecordedAt   time.Time `db:"recorded_at"`
}

const medicationColumns = `id, user_id, name, dosage, frequency, times, start_date, end_date, notes, active, created_at, updated_at`

// --- MedicationStore --------------------------------------------------------

func (s *Store) CreateMedication(ctx context.Context, med medication.Medication) (medication.Medication, error) {
	if med.ID == "" {
		med.ID = uuid.NewString()
	}
	ts := now()
	med.CreatedAt = ts
	med.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, med.ID, med.UserID, med.Name, med.Dosage, med.Frequency, pq.StringArray(med.Times),
		nullTime(med.StartDate), nullTime(med.EndDate), med.Notes, med.Active, med.CreatedAt, med.UpdatedAt)
	if err != nil {
		return medication.Medication{}, mapError(err)
	}
	return med, nil
}

func (s *Store) UpdateMedication(ctx context.Context, med medication.Medication) (medication.Medication, error) {
	existing, err := s.GetMedication(ctx, med.ID)
	if err != nil {
		return medication.Medication{}, err
	}
	med.UserID = existing.UserID
	med.CreatedAt = existing.CreatedAt
	med.UpdatedAt = now()

	err = expectRows(s.db.ExecContext(ctx, `
		UPDATE medications
		SET name = $2, dosage = $3, frequency = $4, times = $5, start_date = $6, end_date = $7,
		    notes = $8, active = $9, updated_at = $10
		WHERE id = $1
	`, med.ID, med.Name, med.Dosage, med.Frequency, pq.StringArray(med.Times),
		nullTime(med.StartDate), nullTime(med.EndDate), med.Notes, med.Active, med.UpdatedAt))
	if err != nil {
		return medication.Medication{}, err
	}
	return med, nil
}

func (s *Store) GetMedication(ctx context.Context, id string) (medication.Medication, error) {
	var row medicationRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id); err != nil {
		return medication.Medication{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListMedications(ctx context.Context, userID string) ([]medication.Medication, error) {
	return s.selectMedications(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE user_id = $1
		ORDER BY LOWER(name), id
	`, userID)
}

func (s *Store) ListActiveMedications(ctx context.Context) ([]medication.Medication, error) {
	return s.selectMedications(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE active
		ORDER BY LOWER(name), id
	`)
}

func (s *Store) selectMedications(ctx context.Context, query string, args ...any) ([]medication.Medication, error) {
	var rows []medicationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]medication.Medication, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// DeleteMedication relies on ON DELETE CASCADE to remove recorded doses.
func (s *Store) DeleteMedication(ctx context.Context, id string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM medications WHERE id = $1`, id))
}

func (s *Store) CreateDose(ctx context.Context, dose medication.Dose) (medication.Dose, error) {
	if dose.ID == "" {
		dose.ID = uuid.NewString()
	}
	dose.RecordedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medication_doses (id, medication_id, user_id, status, scheduled_for, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, dose.ID, dose.MedicationID, dose.UserID, dose.Status, dose.ScheduledFor, dose.RecordedAt)
	if err != nil {
		return medication.Dose{}, mapError(err)
	}
	return dose, nil
}

func (s *Store) ListDoses(ctx context.Context, userID string, from, to time.Time) ([]medication.Dose, error) {
	var rows []doseRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, medication_id, user_id, status, scheduled_for, recorded_at
		FROM medication_doses
		WHERE user_id = $1 AND scheduled_for BETWEEN $2 AND $3
		ORDER BY scheduled_for
	`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]medication.Dose, 0, len(rows))
	for _, row := range rows {
		result = append(result, medication.Dose{
			ID:           row.ID,
			MedicationID: row.MedicationID,
			UserID:       row.UserID,
			Status:       row.Status,
			ScheduledFor: row.ScheduledFor.UTC(),
			RecordedAt:   row.RecordedAt.UTC(),
		})
	}
	return result, nil
}
