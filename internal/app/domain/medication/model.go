package medication

import "time"

// Frequencies a medication can be scheduled with.
const (
	FrequencyDaily           = "daily"
	FrequencyTwiceDaily      = "twice_daily"
	FrequencyThreeTimesDaily = "three_times_daily"
	FrequencyWeekly          = "weekly"
	FrequencyAsNeeded        = "as_needed"
)

// Dose statuses.
const (
	DoseTaken   = "taken"
	DoseSkipped = "skipped"
)

// Medication is an entry on the user's medication list. Times are "HH:MM" in
// UTC, sorted and unique.
type Medication struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Dosage    string     `json:"dosage,omitempty"`
	Frequency string     `json:"frequency"`
	Times     []string   `json:"times"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CoversDay reports whether day (midnight UTC) falls inside the start/end window.
func (m Medication) CoversDay(day time.Time) bool {
	if m.StartDate != nil && day.Before(*m.StartDate) {
		return false
	}
	if m.EndDate != nil && day.After(*m.EndDate) {
		return false
	}
	return true
}

// Dose records whether a scheduled dose was taken.
type Dose struct {
	ID           string    `json:"id"`
	MedicationID string    `json:"medication_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// MedicationAdherence is one medication's share of an adherence report.
type MedicationAdherence struct {
	MedicationID string  `json:"medication_id"`
	Name         string  `json:"name"`
	Taken        int     `json:"taken"`
	Skipped      int     `json:"skipped"`
	Percent      float64 `json:"percent"`
}

// Adherence summarises recorded doses over a trailing window.
type Adherence struct {
	Days          int                   `json:"days"`
	Taken         int                   `json:"taken"`
	Skipped       int                   `json:"skipped"`
	Percent       float64               `json:"percent"`
	PerMedication []MedicationAdherence `json:"per_medication"`
}
