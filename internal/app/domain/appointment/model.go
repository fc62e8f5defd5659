package appointment

import "time"

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment is a visit with a care provider.
type Appointment struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProviderID      string    `json:"provider_id,omitempty"`
	ProviderName    string    `json:"provider_name"`
	Specialty       string    `json:"specialty,omitempty"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EndsAt returns the end of the appointment slot.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether two slots intersect. Touching slots do not overlap.
func (a Appointment) Overlaps(other Appointment) bool {
	return a.StartsAt.Before(other.EndsAt()) && other.StartsAt.Before(a.EndsAt())
}
