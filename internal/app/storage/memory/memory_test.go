package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/app/storage"
)

func TestUserEmailIsUnique(t *testing.T) {
	store := New()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, account.User{Email: "ada@example.com", Role: account.RoleUser})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	_, err = store.CreateUser(ctx, account.User{Email: "ADA@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	got, err := store.GetUserByEmail(ctx, "Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	other, err := store.CreateUser(ctx, account.User{Email: "bob@example.com"})
	require.NoError(t, err)
	other.Email = "ada@example.com"
	_, err = store.UpdateUser(ctx, other)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestSessions(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.CreateSession(ctx, account.Session{UserID: "u1", TokenHash: "h1", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, account.Session{UserID: "u1", TokenHash: "h2", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, account.Session{UserID: "u1", TokenHash: "h3", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	removed, err := store.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = store.DeleteUserSessions(ctx, "u1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSessionByTokenHash(ctx, "h1")
	assert.NoError(t, err)
	_, err = store.GetSessionByTokenHash(ctx, "h3")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, "h1"))
	assert.ErrorIs(t, store.DeleteSession(ctx, "h1"), storage.ErrNotFound)
}

func TestProfileIsCopiedOnReadAndWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	widgets := []string{profile.WidgetFitness}
	saved, err := store.UpdateProfile(ctx, "u1", func(p *profile.Profile, _ bool) error {
		p.Dashboard.Widgets = widgets
		return nil
	})
	require.NoError(t, err)
	widgets[0] = "mutated"
	saved.Dashboard.Widgets[0] = "mutated"

	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{profile.WidgetFitness}, got.Dashboard.Widgets)

	got.Dashboard.Widgets[0] = "mutated"
	again, err := store.UpdateProfile(ctx, "u1", func(p *profile.Profile, found bool) error {
		assert.True(t, found)
		assert.Equal(t, []string{profile.WidgetFitness}, p.Dashboard.Widgets)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, saved.CreatedAt, again.CreatedAt)
}

func TestUpdateProfileAppliesInPlace(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.UpdateProfile(ctx, "u1", func(p *profile.Profile, found bool) error {
		assert.False(t, found)
		p.AvatarURL = "/a.png"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", created.UserID)

	failed := assert.AnError
	_, err = store.UpdateProfile(ctx, "u1", func(p *profile.Profile, found bool) error {
		assert.True(t, found)
		p.AvatarURL = "/b.png"
		return failed
	})
	assert.ErrorIs(t, err, failed)

	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "/a.png", got.AvatarURL, "a failed update is not stored")
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
}

func TestAppointmentOverlapIsRejected(t *testing.T) {
	store := New()
	ctx := context.Background()
	start := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

	first, err := store.CreateAppointment(ctx, appointment.Appointment{UserID: "u1", StartsAt: start, DurationMinutes: 60, Status: appointment.StatusScheduled})
	require.NoError(t, err)
	_, err = store.CreateAppointment(ctx, appointment.Appointment{UserID: "u1", StartsAt: start.Add(30 * time.Minute), DurationMinutes: 30, Status: appointment.StatusScheduled})
	assert.ErrorIs(t, err, storage.ErrConflict)
	_, err = store.CreateAppointment(ctx, appointment.Appointment{UserID: "u1", StartsAt: start.Add(30 * time.Minute), DurationMinutes: 30, Status: appointment.StatusCancelled})
	require.NoError(t, err)
	_, err = store.CreateAppointment(ctx, appointment.Appointment{UserID: "u2", StartsAt: start, DurationMinutes: 60, Status: appointment.StatusScheduled})
	require.NoError(t, err)
	second, err := store.CreateAppointment(ctx, appointment.Appointment{UserID: "u1", StartsAt: start.Add(time.Hour), DurationMinutes: 30, Status: appointment.StatusScheduled})
	require.NoError(t, err)

	second.StartsAt = start.Add(15 * time.Minute)
	_, err = store.UpdateAppointment(ctx, second)
	assert.ErrorIs(t, err, storage.ErrConflict)
	first.StartsAt = start.Add(-30 * time.Minute)
	_, err = store.UpdateAppointment(ctx, first)
	require.NoError(t, err)
}

func TestFitnessLogsNewestFirstWithinRange(t *testing.T) {
	store := New()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

	for _, d := range []int{1, 3, 2, 9} {
		_, err := store.CreateFitnessLog(ctx, fitness.Log{UserID: "u1", Date: day(d), Steps: d})
		require.NoError(t, err)
	}
	_, err := store.CreateFitnessLog(ctx, fitness.Log{UserID: "u2", Date: day(2), Steps: 99})
	require.NoError(t, err)

	logs, err := store.ListFitnessLogs(ctx, "u1", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{logs[0].Steps, logs[1].Steps, logs[2].Steps})
}

func TestDeleteMedicationCascadesDoses(t *testing.T) {
	store := New()
	ctx := context.Background()

	med, err := store.CreateMedication(ctx, medication.Medication{UserID: "u1", Name: "Metformin", Times: []string{"08:00"}, Active: true})
	require.NoError(t, err)
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	_, err = store.CreateDose(ctx, medication.Dose{MedicationID: med.ID, UserID: "u1", Status: medication.DoseTaken, ScheduledFor: at})
	require.NoError(t, err)

	_, err = store.CreateDose(ctx, medication.Dose{MedicationID: "missing", UserID: "u1", ScheduledFor: at})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteMedication(ctx, med.ID))
	doses, err := store.ListDoses(ctx, "u1", at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, doses)
}

func TestParticipants(t *testing.T) {
	store := New()
	ctx := context.Background()

	c, err := store.CreateChallenge(ctx, challenge.Challenge{Title: "Steps", Metric: challenge.MetricSteps, Target: 1000})
	require.NoError(t, err)

	_, err = store.AddParticipant(ctx, challenge.Participant{ChallengeID: c.ID, UserID: "u1"})
	require.NoError(t, err)
	_, err = store.AddParticipant(ctx, challenge.Participant{ChallengeID: c.ID, UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	_, err = store.AddParticipant(ctx, challenge.Participant{ChallengeID: "nope", UserID: "u1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	at := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	p, err := store.AddProgress(ctx, c.ID, "u1", 500, c.Target, at)
	require.NoError(t, err)
	assert.Nil(t, p.CompletedAt)
	p, err = store.AddProgress(ctx, c.ID, "u1", 600, c.Target, at)
	require.NoError(t, err)
	require.NotNil(t, p.CompletedAt)
	p, err = store.AddProgress(ctx, c.ID, "u1", 1, c.Target, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, at, *p.CompletedAt)
	_, err = store.AddProgress(ctx, c.ID, "u2", 1, c.Target, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	memberships, err := store.ListMemberships(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, 1101, memberships[0].Progress)

	require.NoError(t, store.RemoveParticipant(ctx, c.ID, "u1"))
	assert.ErrorIs(t, store.RemoveParticipant(ctx, c.ID, "u1"), storage.ErrNotFound)
}

func TestNotificationsDedupeAndRead(t *testing.T) {
	store := New()
	ctx := context.Background()

	n, err := store.CreateNotification(ctx, notification.Notification{UserID: "u1", Type: notification.TypeSystem, Title: "a", DedupeKey: "k"})
	require.NoError(t, err)
	_, err = store.CreateNotification(ctx, notification.Notification{UserID: "u1", Type: notification.TypeSystem, Title: "b", DedupeKey: "k"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	_, err = store.CreateNotification(ctx, notification.Notification{UserID: "u2", Type: notification.TypeSystem, Title: "c", DedupeKey: "k"})
	require.NoError(t, err)
	_, err = store.CreateNotification(ctx, notification.Notification{UserID: "u1", Type: notification.TypeSystem, Title: "d"})
	require.NoError(t, err)

	count, err := store.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	at := time.Now().UTC()
	read, err := store.MarkRead(ctx, n.ID, at)
	require.NoError(t, err)
	assert.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	unread, err := store.ListNotifications(ctx, "u1", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "d", unread[0].Title)

	updated, err := store.MarkAllRead(ctx, "u1", at)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	limited, err := store.ListNotifications(ctx, "u1", false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
