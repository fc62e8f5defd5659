package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM users WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: pqUniqueViolation})

	_, err := store.CreateUser(context.Background(), account.User{Email: "a@example.com", PasswordHash: "x", Role: account.RoleUser})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "created_at", "updated_at"}).
		AddRow("u1", "ada@example.com", "Ada", "hash", account.RoleAdmin, ts, ts)
	mock.ExpectQuery("WHERE LOWER\\(email\\) = LOWER\\(\\$1\\)").WithArgs("ADA@example.com").WillReturnRows(rows)

	user, err := store.GetUserByEmail(context.Background(), "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, account.RoleAdmin, user.Role)
	assert.Equal(t, "hash", user.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFitnessLogMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM fitness_logs").WithArgs("log-1").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteFitnessLog(context.Background(), "log-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDoseForMissingMedication(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO medication_doses").WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	_, err := store.CreateDose(context.Background(), medication.Dose{MedicationID: "gone", UserID: "u1", Status: medication.DoseTaken})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMedicationScansArrayAndDates(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "dosage", "frequency", "times", "start_date", "end_date", "notes", "active", "created_at", "updated_at"}).
		AddRow("m1", "u1", "Metformin", "500mg", medication.FrequencyTwiceDaily, "{08:00,20:00}", ts, nil, "", true, ts, ts)
	mock.ExpectQuery("FROM medications WHERE id").WithArgs("m1").WillReturnRows(rows)

	med, err := store.GetMedication(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "20:00"}, med.Times)
	require.NotNil(t, med.StartDate)
	assert.True(t, med.StartDate.Equal(ts))
	assert.Nil(t, med.EndDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProfileKeepsCreatedAt(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO profiles").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	saved, err := upsertProfile(context.Background(), store.db, profile.Profile{
		UserID:    "u1",
		Dashboard: profile.Dashboard{Widgets: profile.DefaultWidgets},
	})
	require.NoError(t, err)
	assert.True(t, saved.CreatedAt.Equal(created))
	assert.False(t, saved.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileLocksReadsAndWritesInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("profile:u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM profiles\\s+WHERE user_id").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "personal", "care_team", "dashboard", "onboarding", "avatar_url", "created_at", "updated_at"}).
			AddRow("u1", []byte(`{"first_name":"Ana"}`), []byte(`[{"id":"p1","name":"Dr. Lee"}]`), []byte(`{"widgets":["glucose"]}`), []byte(`{}`), "", ts, ts))
	mock.ExpectQuery("INSERT INTO profiles").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(ts))
	mock.ExpectCommit()

	saved, err := store.UpdateProfile(context.Background(), "u1", func(p *profile.Profile, found bool) error {
		assert.True(t, found)
		p.CareTeam = append(p.CareTeam, profile.Provider{ID: "p2", Name: "Dr. Kim"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", saved.Personal.FirstName)
	require.Len(t, saved.CareTeam, 2)
	assert.True(t, saved.CreatedAt.Equal(ts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileRollsBackWhenCallbackFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("profile:u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM profiles").WithArgs("u1").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.UpdateProfile(context.Background(), "u1", func(_ *profile.Profile, found bool) error {
		assert.False(t, found)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddProgressIncrementsInSQL(t *testing.T) {
	store, mock := newMockStore(t)
	joined := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SET progress = progress \\+ \\$3").
		WithArgs("c1", "u1", 5, 10, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"challenge_id", "user_id", "display_name", "progress", "joined_at", "completed_at"}).
			AddRow("c1", "u1", "Ana", 12, joined, at))

	p, err := store.AddProgress(context.Background(), "c1", "u1", 5, 10, at)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Progress)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.CompletedAt.Equal(at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddProgressMissingParticipant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE challenge_participants").WillReturnError(sql.ErrNoRows)

	_, err := store.AddProgress(context.Background(), "c1", "u1", 5, 10, time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentRejectsOverlapUnderLock(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("appointments:u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id\\s+FROM appointments").
		WithArgs("u1", appointment.StatusScheduled, sqlmock.AnyArg(), start.Add(30*time.Minute), start).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a0"))
	mock.ExpectRollback()

	_, err := store.CreateAppointment(context.Background(), appointment.Appointment{
		UserID: "u1", StartsAt: start, DurationMinutes: 30, Status: appointment.StatusScheduled,
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentInsertsWhenSlotIsFree(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("appointments:u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id\\s+FROM appointments").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO appointments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	appt, err := store.CreateAppointment(context.Background(), appointment.Appointment{
		UserID: "u1", StartsAt: start, DurationMinutes: 30, Status: appointment.StatusScheduled,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsUnreadWithLimit(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "read", "dedupe_key", "created_at", "read_at"}).
		AddRow("n1", "u1", "system", "Hello", "", false, "", ts, nil)
	mock.ExpectQuery("AND NOT read ORDER BY created_at DESC, id DESC LIMIT \\$2").
		WithArgs("u1", 5).
		WillReturnRows(rows)

	list, err := store.ListNotifications(context.Background(), "u1", true, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ReadAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
