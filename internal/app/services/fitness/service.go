// Package fitness records activity logs against user goals and aggregates
// them into daily and weekly views. Days are calendar days in UTC.
package fitness

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	// MaxRangeDays bounds ListLogs.
	MaxRangeDays = 366
	// DefaultRangeDays is used when ListLogs gets no start date.
	DefaultRangeDays = 30

	maxNotesLen = 500
	dateLayout  = "2006-01-02"
)

// ActivityRecorder receives logged quantities so joined challenges can advance.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, userID, metric string, amount int, at time.Time) (int, error)
}

type Service struct {
	store    storage.FitnessStore
	recorder ActivityRecorder
	log      *logging.Logger
	now      func() time.Time
}

// New constructs the service. recorder may be nil.
func New(store storage.FitnessStore, recorder ActivityRecorder, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("fitness")
	}
	return &Service{
		store:    store,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetGoals returns the user's goals or the defaults when none were saved.
func (s *Service) GetGoals(ctx context.Context, userID string) (fitness.Goals, error) {
	goals, err := s.store.GetGoals(ctx, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return fitness.DefaultGoals(userID), nil
	}
	if err != nil {
		return fitness.Goals{}, errors.Internal("load goals", err)
	}
	return goals, nil
}

func (s *Service) SetGoals(ctx context.Context, userID string, goals fitness.Goals) (fitness.Goals, error) {
	if err := ValidateGoals(goals); err != nil {
		return fitness.Goals{}, err
	}
	goals.UserID = userID
	goals.UpdatedAt = s.now()
	saved, err := s.store.UpsertGoals(ctx, goals)
	if err != nil {
		return fitness.Goals{}, errors.Internal("save goals", err)
	}
	return saved, nil
}

// ValidateGoals rejects negative targets.
func ValidateGoals(g fitness.Goals) error {
	return checkRanges([]quantity{
		{"daily_steps", g.DailySteps, fitness.MaxSteps},
		{"daily_calories", g.DailyCalories, fitness.MaxCalories},
		{"weekly_workout_minutes", g.WeeklyWorkoutMinutes, fitness.MaxWeeklyWorkoutMinutes},
		{"daily_water_ml", g.DailyWaterML, fitness.MaxWaterML},
	})
}

type quantity struct {
	field string
	value int
	max   int
}

func checkRanges(qs []quantity) error {
	for _, q := range qs {
		if q.value < 0 || q.value > q.max {
			return errors.Validation(q.field, fmt.Sprintf("must be between 0 and %d", q.max))
		}
	}
	return nil
}

// LogActivity stores a log entry and advances the user's running challenges.
func (s *Service) LogActivity(ctx context.Context, userID string, entry fitness.Log) (fitness.Log, error) {
	today := Day(s.now())
	if entry.Date.IsZero() {
		entry.Date = today
	}
	entry.Date = Day(entry.Date)
	if entry.Date.After(today) {
		return fitness.Log{}, errors.Validation("date", "must not be in the future")
	}

	entry.ActivityType = strings.ToLower(strings.TrimSpace(entry.ActivityType))
	if entry.ActivityType == "" {
		entry.ActivityType = fitness.ActivityDaily
	}
	if !validActivity(entry.ActivityType) {
		return fitness.Log{}, errors.Validation("activity_type", "unknown activity type")
	}
	err := checkRanges([]quantity{
		{"steps", entry.Steps, fitness.MaxSteps},
		{"calories", entry.Calories, fitness.MaxCalories},
		{"workout_minutes", entry.WorkoutMinutes, fitness.MaxWorkoutMinutes},
		{"water_ml", entry.WaterML, fitness.MaxWaterML},
	})
	if err != nil {
		return fitness.Log{}, err
	}
	if entry.Steps == 0 && entry.Calories == 0 && entry.WorkoutMinutes == 0 && entry.WaterML == 0 {
		return fitness.Log{}, errors.Validation("quantities", "at least one quantity must be positive")
	}
	entry.Notes = strings.TrimSpace(entry.Notes)
	if len(entry.Notes) > maxNotesLen {
		return fitness.Log{}, errors.Validation("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}
	entry.ID = ""
	entry.UserID = userID

	created, err := s.store.CreateFitnessLog(ctx, entry)
	if err != nil {
		return fitness.Log{}, errors.Internal("create fitness log", err)
	}

	if s.recorder != nil {
		for metric, amount := range map[string]int{
			challenge.MetricSteps:          created.Steps,
			challenge.MetricCalories:       created.Calories,
			challenge.MetricWorkoutMinutes: created.WorkoutMinutes,
			challenge.MetricWaterML:        created.WaterML,
		} {
			if amount <= 0 {
				continue
			}
			if _, err := s.recorder.RecordActivity(ctx, userID, metric, amount, created.Date); err != nil {
				s.log.WithContext(ctx).WithError(err).WithField("metric", metric).Warn("challenge progress not recorded")
			}
		}
	}
	return created, nil
}

// ListLogs returns logs dated within [from, to], newest first. Zero dates
// default to the last DefaultRangeDays days.
func (s *Service) ListLogs(ctx context.Context, userID string, from, to time.Time) ([]fitness.Log, error) {
	if to.IsZero() {
		to = s.now()
	}
	to = Day(to)
	if from.IsZero() {
		from = to.AddDate(0, 0, -(DefaultRangeDays - 1))
	}
	from = Day(from)
	if to.Before(from) {
		return nil, errors.Validation("from", "must not be after to")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > MaxRangeDays {
		return nil, errors.Validation("to", fmt.Sprintf("range must not exceed %d days", MaxRangeDays))
	}
	logs, err := s.store.ListFitnessLogs(ctx, userID, from, to)
	if err != nil {
		return nil, errors.Internal("list fitness logs", err)
	}
	return logs, nil
}

// DeleteLog removes one of the user's logs. Challenge progress already
// credited by the log is kept.
func (s *Service) DeleteLog(ctx context.Context, userID, id string) error {
	entry, err := s.store.GetFitnessLog(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && entry.UserID != userID) {
		return errors.NotFound("fitness log", id)
	}
	if err != nil {
		return errors.Internal("load fitness log", err)
	}
	if err := s.store.DeleteFitnessLog(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("fitness log", id)
		}
		return errors.Internal("delete fitness log", err)
	}
	return nil
}

// DailySummary totals one day against the user's goals. A zero date means today.
func (s *Service) DailySummary(ctx context.Context, userID string, date time.Time) (fitness.DailySummary, error) {
	if date.IsZero() {
		date = s.now()
	}
	date = Day(date)
	goals, err := s.GetGoals(ctx, userID)
	if err != nil {
		return fitness.DailySummary{}, err
	}
	logs, err := s.store.ListFitnessLogs(ctx, userID, date, date)
	if err != nil {
		return fitness.DailySummary{}, errors.Internal("list fitness logs", err)
	}

	totals := fitness.DailyTotals{Date: date.Format(dateLayout)}
	for _, l := range logs {
		totals.Add(l)
	}
	if logs == nil {
		logs = []fitness.Log{}
	}
	return fitness.DailySummary{
		Totals: totals,
		Goals:  goals,
		Progress: fitness.Progress{
			Steps:          Percent(totals.Steps, goals.DailySteps),
			Calories:       Percent(totals.Calories, goals.DailyCalories),
			WorkoutMinutes: Percent(totals.WorkoutMinutes, DailyWorkoutGoal(goals)),
			WaterML:        Percent(totals.WaterML, goals.DailyWaterML),
		},
		Logs: logs,
	}, nil
}

// WeeklyStats aggregates the seven days ending on end (default today).
func (s *Service) WeeklyStats(ctx context.Context, userID string, end time.Time) (fitness.WeeklyStats, error) {
	if end.IsZero() {
		end = s.now()
	}
	end = Day(end)
	if end.After(Day(s.now())) {
		return fitness.WeeklyStats{}, errors.Validation("end", "must not be in the future")
	}
	start := end.AddDate(0, 0, -6)

	goals, err := s.GetGoals(ctx, userID)
	if err != nil {
		return fitness.WeeklyStats{}, err
	}
	logs, err := s.store.ListFitnessLogs(ctx, userID, start, end)
	if err != nil {
		return fitness.WeeklyStats{}, errors.Internal("list fitness logs", err)
	}
	return Aggregate(start, logs, goals), nil
}

// Aggregate builds weekly stats for the seven days starting at start.
func Aggregate(start time.Time, logs []fitness.Log, goals fitness.Goals) fitness.WeeklyStats {
	start = Day(start)
	days := make([]fitness.DailyTotals, 7)
	index := make(map[string]int, 7)
	for i := range days {
		key := start.AddDate(0, 0, i).Format(dateLayout)
		days[i].Date = key
		index[key] = i
	}
	for _, l := range logs {
		if i, ok := index[Day(l.Date).Format(dateLayout)]; ok {
			days[i].Add(l)
		}
	}

	stats := fitness.WeeklyStats{
		Start: days[0].Date,
		End:   days[6].Date,
		Days:  days,
		Goals: goals,
	}
	for _, d := range days {
		stats.Totals.Add(fitness.Log{Steps: d.Steps, Calories: d.Calories, WorkoutMinutes: d.WorkoutMinutes, WaterML: d.WaterML})
		if d.Steps > 0 || d.Calories > 0 || d.WorkoutMinutes > 0 || d.WaterML > 0 {
			stats.ActiveDays++
		}
	}
	stats.Averages = fitness.Averages{
		Steps:          round1(float64(stats.Totals.Steps) / 7),
		Calories:       round1(float64(stats.Totals.Calories) / 7),
		WorkoutMinutes: round1(float64(stats.Totals.WorkoutMinutes) / 7),
		WaterML:        round1(float64(stats.Totals.WaterML) / 7),
	}
	stats.GoalProgress = fitness.Progress{
		Steps:          Percent(stats.Totals.Steps, goals.DailySteps*7),
		Calories:       Percent(stats.Totals.Calories, goals.DailyCalories*7),
		WorkoutMinutes: Percent(stats.Totals.WorkoutMinutes, goals.WeeklyWorkoutMinutes),
		WaterML:        Percent(stats.Totals.WaterML, goals.DailyWaterML*7),
	}
	return stats
}

// DailyWorkoutGoal spreads the weekly workout goal over seven days, rounding up.
func DailyWorkoutGoal(g fitness.Goals) int {
	return (g.WeeklyWorkoutMinutes + 6) / 7
}

// Percent returns value/goal as a percentage capped at 100 with one decimal.
// A zero goal yields 0.
func Percent(value, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	p := float64(value) / float64(goal) * 100
	if p > 100 {
		p = 100
	}
	return round1(p)
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func validActivity(kind string) bool {
	switch kind {
	case fitness.ActivityDaily, fitness.ActivityWalking, fitness.ActivityRunning, fitness.ActivityCycling,
		fitness.ActivitySwimming, fitness.ActivityStrength, fitness.ActivityYoga, fitness.ActivityOther:
		return true
	}
	return false
}
