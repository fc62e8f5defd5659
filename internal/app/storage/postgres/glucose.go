package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
)

type readingRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	ValueMgDL  float64   `db:"value_mg_dl"`
	MeasuredAt time.Time `db:"measured_at"`
	Context    string    `db:"context"`
	Notes      string    `db:"notes"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r readingRow) toDomain() glucose.Reading {
	return glucose.Reading{
		ID:         r.ID,
		UserID:     r.UserID,
		ValueMgDL:  r.ValueMgDL,
		MeasuredAt: r.MeasuredAt.UTC(),
		Context:    r.Context,
		Notes:      r.Notes,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

const readingColumns = `id, user_id, value_mg_dl, measured_at, context, notes, created_at`

// --- GlucoseStore -----------------------------------------------------------

func (s *Store) CreateReading(ctx context.Context, r glucose.Reading) (glucose.Reading, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO glucose_readings (`+readingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.UserID, r.ValueMgDL, r.MeasuredAt, r.Context, r.Notes, r.CreatedAt)
	if err != nil {
		return glucose.Reading{}, mapError(err)
	}
	return r, nil
}

func (s *Store) GetReading(ctx context.Context, id string) (glucose.Reading, error) {
	var row readingRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+readingColumns+` FROM glucose_readings WHERE id = $1`, id); err != nil {
		return glucose.Reading{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListReadings(ctx context.Context, userID string, from, to time.Time) ([]glucose.Reading, error) {
	var rows []readingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+readingColumns+`
		FROM glucose_readings
		WHERE user_id = $1 AND measured_at BETWEEN $2 AND $3
		ORDER BY measured_at DESC
	`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]glucose.Reading, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteReading(ctx context.Context, id string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM glucose_readings WHERE id = $1`, id))
}
