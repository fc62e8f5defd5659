package profile

import (
	"encoding/json"
	"time"
)

// Dashboard widget identifiers.
const (
	WidgetFitness      = "fitness"
	WidgetGlucose      = "glucose"
	WidgetMedications  = "medications"
	WidgetCareTeam     = "careTeam"
	WidgetAppointments = "appointments"
	WidgetChallenges   = "challenges"
)

const (
	// MaxOnboardingStep is the index of the last quiz step.
	MaxOnboardingStep = 5
	// MaxDraftBytes bounds a saved onboarding draft.
	MaxDraftBytes = 64 << 10
)

// KnownWidgets lists every widget a dashboard may enable, in default order.
var KnownWidgets = []string{
	WidgetFitness,
	WidgetGlucose,
	WidgetMedications,
	WidgetCareTeam,
	WidgetAppointments,
	WidgetChallenges,
}

// DefaultWidgets is the layout of a profile that never customised its dashboard.
var DefaultWidgets = []string{WidgetFitness, WidgetGlucose, WidgetMedications, WidgetCareTeam}

// Profile is the health profile collected by the onboarding quiz.
type Profile struct {
	UserID     string     `json:"user_id"`
	Personal   Personal   `json:"personal"`
	CareTeam   []Provider `json:"care_team"`
	Dashboard  Dashboard  `json:"dashboard"`
	Onboarding Onboarding `json:"onboarding"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Personal holds the quiz's personal details step.
type Personal struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	HeightCM     float64    `json:"height_cm,omitempty"`
	WeightKG     float64    `json:"weight_kg,omitempty"`
	Conditions   []string   `json:"conditions,omitempty"`
	DiabetesType string     `json:"diabetes_type,omitempty"`
}

// DisplayName returns "First Last" trimmed.
func (p Personal) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// Provider is a member of the user's care team.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Primary   bool   `json:"primary"`
}

// Dashboard holds widget preferences in display order.
type Dashboard struct {
	Widgets []string `json:"widgets"`
}

// Enabled reports whether widget is part of the layout.
func (d Dashboard) Enabled(widget string) bool {
	for _, w := range d.Widgets {
		if w == widget {
			return true
		}
	}
	return false
}

// Onboarding tracks quiz progress. Draft is an opaque client payload for the
// step in progress.
type Onboarding struct {
	Step      int             `json:"step"`
	Completed bool            `json:"completed"`
	Draft     json.RawMessage `json:"draft,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
