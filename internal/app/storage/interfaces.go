package storage

import (
	"context"
	"errors"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrConflict is returned when a write clashes with another record, such as
	// two scheduled appointments of one user overlapping.
	ErrConflict = errors.New("storage: conflict")
)

// AccountStore persists users.
type AccountStore interface {
	CreateUser(ctx context.Context, user account.User) (account.User, error)
	UpdateUser(ctx context.Context, user account.User) (account.User, error)
	GetUser(ctx context.Context, id string) (account.User, error)
	GetUserByEmail(ctx context.Context, email string) (account.User, error)
}

// SessionStore persists issued tokens by hash.
type SessionStore interface {
	CreateSession(ctx context.Context, sess account.Session) (account.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (account.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, tokenHash string) error
	// DeleteUserSessions removes every session of the user except keepTokenHash.
	DeleteUserSessions(ctx context.Context, userID, keepTokenHash string) (int, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// ProfileStore persists onboarding profiles, one per user.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (profile.Profile, error)
	// UpdateProfile loads the user's profile, applies fn and stores the result.
	// Updates of the same user are serialized. found is false when no profile
	// exists yet; p then carries only UserID. An error from fn aborts the update
	// and is returned unchanged.
	UpdateProfile(ctx context.Context, userID string, fn func(p *profile.Profile, found bool) error) (profile.Profile, error)
}

// FitnessStore persists goals and activity logs.
type FitnessStore interface {
	GetGoals(ctx context.Context, userID string) (fitness.Goals, error)
	UpsertGoals(ctx context.Context, goals fitness.Goals) (fitness.Goals, error)

	CreateFitnessLog(ctx context.Context, log fitness.Log) (fitness.Log, error)
	GetFitnessLog(ctx context.Context, id string) (fitness.Log, error)
	// ListFitnessLogs returns logs dated within [from, to], newest first.
	ListFitnessLogs(ctx context.Context, userID string, from, to time.Time) ([]fitness.Log, error)
	DeleteFitnessLog(ctx context.Context, id string) error
}

// GlucoseStore persists glucose readings.
type GlucoseStore interface {
	CreateReading(ctx context.Context, r glucose.Reading) (glucose.Reading, error)
	GetReading(ctx context.Context, id string) (glucose.Reading, error)
	// ListReadings returns readings measured within [from, to], newest first.
	ListReadings(ctx context.Context, userID string, from, to time.Time) ([]glucose.Reading, error)
	DeleteReading(ctx context.Context, id string) error
}

// MedicationStore persists medications and recorded doses.
type MedicationStore interface {
	CreateMedication(ctx context.Context, med medication.Medication) (medication.Medication, error)
	UpdateMedication(ctx context.Context, med medication.Medication) (medication.Medication, error)
	GetMedication(ctx context.Context, id string) (medication.Medication, error)
	ListMedications(ctx context.Context, userID string) ([]medication.Medication, error)
	// ListActiveMedications returns active medications of every user.
	ListActiveMedications(ctx context.Context) ([]medication.Medication, error)
	// DeleteMedication removes the medication and its doses.
	DeleteMedication(ctx context.Context, id string) error

	CreateDose(ctx context.Context, dose medication.Dose) (medication.Dose, error)
	// ListDoses returns doses scheduled within [from, to].
	ListDoses(ctx context.Context, userID string, from, to time.Time) ([]medication.Dose, error)
}

// AppointmentStore persists appointments. CreateAppointment and
// UpdateAppointment return ErrConflict when a scheduled appointment would
// overlap another scheduled appointment of the same user.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error)
	GetAppointment(ctx context.Context, id string) (appointment.Appointment, error)
	// ListAppointments returns the user's appointments ordered by start.
	ListAppointments(ctx context.Context, userID string) ([]appointment.Appointment, error)
	// ListScheduledBetween returns scheduled appointments of every user starting within [from, to).
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
}

// ChallengeStore persists challenges and their participants.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c challenge.Challenge) (challenge.Challenge, error)
	GetChallenge(ctx context.Context, id string) (challenge.Challenge, error)
	ListChallenges(ctx context.Context) ([]challenge.Challenge, error)

	AddParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error)
	GetParticipant(ctx context.Context, challengeID, userID string) (challenge.Participant, error)
	// AddProgress atomically adds amount to the participant's progress and sets
	// CompletedAt to at the first time progress reaches target.
	AddProgress(ctx context.Context, challengeID, userID string, amount, target int, at time.Time) (challenge.Participant, error)
	RemoveParticipant(ctx context.Context, challengeID, userID string) error
	ListParticipants(ctx context.Context, challengeID string) ([]challenge.Participant, error)
	ListMemberships(ctx context.Context, userID string) ([]challenge.Participant, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	// CreateNotification returns ErrDuplicate when the user already has a
	// notification with the same non-empty DedupeKey.
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	// ListNotifications returns newest first; limit <= 0 means no limit.
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) (notification.Notification, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, id string) error
}
