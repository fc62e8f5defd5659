package notification

import "time"

// Notification types.
const (
	TypeMedicationReminder  = "medication_reminder"
	TypeAppointmentReminder = "appointment_reminder"
	TypeChallenge           = "challenge"
	TypeSystem              = "system"
)

// Notification is an in-app message for one user. DedupeKey, when set, is
// unique per user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	DedupeKey string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}
