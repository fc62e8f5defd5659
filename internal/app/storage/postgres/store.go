package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/VitalSync/health_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.FitnessStore = (*Store)(nil)
var _ storage.GlucoseStore = (*Store)(nil)
var _ storage.MedicationStore = (*Store)(nil)
var _ storage.AppointmentStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// NewFromDB wraps a database/sql handle opened with the "postgres" driver.
func NewFromDB(db *sql.DB) *Store {
	return New(sqlx.NewDb(db, "postgres"))
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapError translates driver errors into storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return storage.ErrDuplicate
		case pqForeignKeyViolation:
			return storage.ErrNotFound
		}
	}
	return err
}

// expectRows returns ErrNotFound when an UPDATE or DELETE matched nothing.
func expectRows(result sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// lockKey takes a transaction-scoped advisory lock on key. It is released on
// commit or rollback.
func lockKey(ctx context.Context, tx *sqlx.Tx, key string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
