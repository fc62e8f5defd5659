// Package dashboard assembles the home screen: the widgets a user enabled in
// their profile plus rule-based insights.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	// UpcomingAppointments is how many appointments the widget shows.
	UpcomingAppointments = 3
	// SummaryDays is the window of the glucose and adherence widgets.
	SummaryDays = 7

	lowStepsPercent     = 50
	lowAdherencePercent = 80
	highGlucoseMgDL     = 180
	lowGlucoseMgDL      = 70
	appointmentSoon     = 24 * time.Hour
	recentCompletion    = 7 * 24 * time.Hour
)

// Insight kinds.
const (
	InsightLowSteps        = "low_steps"
	InsightLowWater        = "low_water"
	InsightHighGlucose     = "high_glucose"
	InsightLowGlucose      = "low_glucose"
	InsightLowAdherence    = "low_adherence"
	InsightAppointmentSoon = "appointment_soon"
	InsightChallengeDone   = "challenge_completed"
)

type (
	ProfileReader interface {
		Get(ctx context.Context, userID string) (profile.Profile, error)
	}
	FitnessReader interface {
		DailySummary(ctx context.Context, userID string, date time.Time) (fitness.DailySummary, error)
		WeeklyStats(ctx context.Context, userID string, end time.Time) (fitness.WeeklyStats, error)
	}
	GlucoseReader interface {
		Summary(ctx context.Context, userID string, days int) (glucose.Summary, error)
	}
	MedicationReader interface {
		List(ctx context.Context, userID string, activeOnly bool) ([]medication.Medication, error)
		Adherence(ctx context.Context, userID string, days int) (medication.Adherence, error)
	}
	AppointmentReader interface {
		List(ctx context.Context, userID string, upcoming bool) ([]appointment.Appointment, error)
	}
	ChallengeReader interface {
		Mine(ctx context.Context, userID string) ([]challenge.Membership, error)
	}
	UnreadCounter interface {
		UnreadCount(ctx context.Context, userID string) (int, error)
	}
)

// Sources are the services the dashboard reads from.
type Sources struct {
	Profiles      ProfileReader
	Fitness       FitnessReader
	Glucose       GlucoseReader
	Medications   MedicationReader
	Appointments  AppointmentReader
	Challenges    ChallengeReader
	Notifications UnreadCounter
}

// Insight is a short rule-based hint.
type Insight struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type ProfileCard struct {
	Name                string `json:"name"`
	AvatarURL           string `json:"avatar_url,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

type FitnessWidget struct {
	Today fitness.DailySummary `json:"today"`
	Week  fitness.WeeklyStats  `json:"week"`
}

type MedicationsWidget struct {
	Active    []medication.Medication `json:"active"`
	Adherence medication.Adherence    `json:"adherence"`
}

type CareTeamWidget struct {
	Providers []profile.Provider `json:"providers"`
}

type AppointmentsWidget struct {
	Upcoming []appointment.Appointment `json:"upcoming"`
}

type ChallengesWidget struct {
	Memberships []challenge.Membership `json:"memberships"`
}

// View is the dashboard payload. Widget sections are nil unless enabled.
type View struct {
	Profile             ProfileCard         `json:"profile"`
	Widgets             []string            `json:"widgets"`
	Fitness             *FitnessWidget      `json:"fitness,omitempty"`
	Glucose             *glucose.Summary    `json:"glucose,omitempty"`
	Medications         *MedicationsWidget  `json:"medications,omitempty"`
	CareTeam            *CareTeamWidget     `json:"care_team,omitempty"`
	Appointments        *AppointmentsWidget `json:"appointments,omitempty"`
	Challenges          *ChallengesWidget   `json:"challenges,omitempty"`
	UnreadNotifications int                 `json:"unread_notifications"`
	Insights            []Insight           `json:"insights"`
	GeneratedAt         time.Time           `json:"generated_at"`
}

type Service struct {
	src Sources
	log *logging.Logger
	now func() time.Time
}

func New(src Sources, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("dashboard")
	}
	return &Service{src: src, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// data is everything the insight rules look at. Sections are loaded whether
// or not their widget is enabled.
type data struct {
	today       fitness.DailySummary
	weekly      *fitness.WeeklyStats
	glucose     glucose.Summary
	adherence   medication.Adherence
	activeMeds  []medication.Medication
	upcoming    []appointment.Appointment
	memberships []challenge.Membership
	careTeam    []profile.Provider
}

// Dashboard builds the view for userID.
func (s *Service) Dashboard(ctx context.Context, userID string) (View, error) {
	p, err := s.src.Profiles.Get(ctx, userID)
	if err != nil {
		return View{}, err
	}
	widgets := p.Dashboard.Widgets
	if widgets == nil {
		widgets = []string{}
	}

	d, err := s.load(ctx, userID, p.Dashboard)
	if err != nil {
		return View{}, err
	}
	d.careTeam = p.CareTeam
	unread, err := s.src.Notifications.UnreadCount(ctx, userID)
	if err != nil {
		return View{}, err
	}

	now := s.now()
	view := View{
		Profile: ProfileCard{
			Name:                p.Personal.DisplayName(),
			AvatarURL:           p.AvatarURL,
			OnboardingCompleted: p.Onboarding.Completed,
		},
		Widgets:             widgets,
		UnreadNotifications: unread,
		Insights:            Insights(now, d.today, d.glucose, d.adherence, d.upcoming, d.memberships),
		GeneratedAt:         now,
	}
	for _, w := range widgets {
		switch w {
		case profile.WidgetFitness:
			view.Fitness = &FitnessWidget{Today: d.today, Week: *d.weekly}
		case profile.WidgetGlucose:
			summary := d.glucose
			view.Glucose = &summary
		case profile.WidgetMedications:
			view.Medications = &MedicationsWidget{Active: nonNil(d.activeMeds), Adherence: d.adherence}
		case profile.WidgetCareTeam:
			view.CareTeam = &CareTeamWidget{Providers: nonNil(d.careTeam)}
		case profile.WidgetAppointments:
			view.Appointments = &AppointmentsWidget{Upcoming: nonNil(d.upcoming)}
		case profile.WidgetChallenges:
			view.Challenges = &ChallengesWidget{Memberships: nonNil(d.memberships)}
		}
	}

	s.log.WithContext(ctx).
		WithField("widgets", len(widgets)).
		WithField("insights", len(view.Insights)).
		Debug("dashboard built")
	return view, nil
}

func (s *Service) load(ctx context.Context, userID string, layout profile.Dashboard) (data, error) {
	var d data
	var err error

	if d.today, err = s.src.Fitness.DailySummary(ctx, userID, time.Time{}); err != nil {
		return d, err
	}
	if layout.Enabled(profile.WidgetFitness) {
		week, err := s.src.Fitness.WeeklyStats(ctx, userID, time.Time{})
		if err != nil {
			return d, err
		}
		d.weekly = &week
	}
	if d.glucose, err = s.src.Glucose.Summary(ctx, userID, SummaryDays); err != nil {
		return d, err
	}
	if d.adherence, err = s.src.Medications.Adherence(ctx, userID, SummaryDays); err != nil {
		return d, err
	}
	if layout.Enabled(profile.WidgetMedications) {
		if d.activeMeds, err = s.src.Medications.List(ctx, userID, true); err != nil {
			return d, err
		}
	}
	upcoming, err := s.src.Appointments.List(ctx, userID, true)
	if err != nil {
		return d, err
	}
	if len(upcoming) > UpcomingAppointments {
		upcoming = upcoming[:UpcomingAppointments]
	}
	d.upcoming = upcoming
	if d.memberships, err = s.src.Challenges.Mine(ctx, userID); err != nil {
		return d, err
	}
	return d, nil
}

// Insights applies the hint rules. upcoming must be sorted by start time.
func Insights(now time.Time, today fitness.DailySummary, gl glucose.Summary, adh medication.Adherence, upcoming []appointment.Appointment, memberships []challenge.Membership) []Insight {
	out := []Insight{}

	if goal := today.Goals.DailySteps; goal > 0 && today.Progress.Steps < lowStepsPercent {
		out = append(out, Insight{
			Kind:    InsightLowSteps,
			Message: fmt.Sprintf("You are at %d of %d steps today. A short walk would help.", today.Totals.Steps, goal),
		})
	}
	if goal := today.Goals.DailyWaterML; goal > 0 && today.Totals.WaterML < goal {
		out = append(out, Insight{
			Kind:    InsightLowWater,
			Message: fmt.Sprintf("Drink %d ml more water to reach today's goal.", goal-today.Totals.WaterML),
		})
	}
	if gl.Count > 0 {
		switch {
		case gl.Average > highGlucoseMgDL:
			out = append(out, Insight{
				Kind:    InsightHighGlucose,
				Message: fmt.Sprintf("Your %d-day average glucose is %.1f mg/dL, above the target range.", gl.Days, gl.Average),
			})
		case gl.Average < lowGlucoseMgDL:
			out = append(out, Insight{
				Kind:    InsightLowGlucose,
				Message: fmt.Sprintf("Your %d-day average glucose is %.1f mg/dL, below the target range.", gl.Days, gl.Average),
			})
		}
	}
	if adh.Taken+adh.Skipped > 0 && adh.Percent < lowAdherencePercent {
		out = append(out, Insight{
			Kind:    InsightLowAdherence,
			Message: fmt.Sprintf("Medication adherence over the last %d days is %.1f%%.", adh.Days, adh.Percent),
		})
	}
	for _, a := range upcoming {
		if a.StartsAt.After(now) && a.StartsAt.Sub(now) <= appointmentSoon {
			out = append(out, Insight{
				Kind:    InsightAppointmentSoon,
				Message: fmt.Sprintf("Appointment with %s at %s UTC.", a.ProviderName, a.StartsAt.UTC().Format("Jan 2 15:04")),
			})
			break
		}
	}
	for _, m := range memberships {
		done := m.Participant.CompletedAt
		if done != nil && now.Sub(*done) <= recentCompletion {
			out = append(out, Insight{
				Kind:    InsightChallengeDone,
				Message: fmt.Sprintf("You completed the %q challenge.", m.Challenge.Title),
			})
		}
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
