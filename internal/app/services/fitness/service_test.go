package fitness

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/storage/memory"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

type recorded struct {
	metric string
	amount int
	at     time.Time
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) RecordActivity(_ context.Context, _ string, metric string, amount int, at time.Time) (int, error) {
	f.calls = append(f.calls, recorded{metric, amount, at})
	return 1, nil
}

var today = time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	svc := New(memory.New(), rec, logging.Discard())
	svc.now = func() time.Time { return today }
	return svc, rec
}

func date(day int) time.Time {
	return time.Date(2026, 5, day, 0, 0, 0, 0, time.UTC)
}

func TestGoalsDefaultAndSave(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	goals, err := svc.GetGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, fitness.DefaultGoals("u1"), goals)

	_, err = svc.SetGoals(ctx, "u1", fitness.Goals{DailySteps: -1})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	_, err = svc.SetGoals(ctx, "u1", fitness.Goals{DailySteps: 8000, WeeklyWorkoutMinutes: fitness.MaxWeeklyWorkoutMinutes + 1})
	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, "weekly_workout_minutes", se.Details["field"])

	saved, err := svc.SetGoals(ctx, "u1", fitness.Goals{UserID: "other", DailySteps: 8000, DailyCalories: 1800, WeeklyWorkoutMinutes: 210, DailyWaterML: 2500})
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID)

	goals, err = svc.GetGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 8000, goals.DailySteps)
}

func TestLogActivityValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry fitness.Log
		field string
	}{
		{"future date", fitness.Log{Date: date(11), Steps: 10}, "date"},
		{"negative", fitness.Log{Steps: -5, WaterML: 10}, "steps"},
		{"too many steps", fitness.Log{Steps: fitness.MaxSteps + 1}, "steps"},
		{"too many calories", fitness.Log{Calories: fitness.MaxCalories * 1000}, "calories"},
		{"longer than a day", fitness.Log{WorkoutMinutes: fitness.MaxWorkoutMinutes + 1}, "workout_minutes"},
		{"too much water", fitness.Log{WaterML: fitness.MaxWaterML + 1}, "water_ml"},
		{"all zero", fitness.Log{}, "quantities"},
		{"unknown activity", fitness.Log{ActivityType: "skydiving", Steps: 1}, "activity_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.LogActivity(ctx, "u1", tt.entry)
			se := errors.GetServiceError(err)
			require.NotNil(t, se, "got %v", err)
			assert.Equal(t, tt.field, se.Details["field"])
		})
	}
}

func TestLogActivityDefaultsAndChallengeProgress(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	entry, err := svc.LogActivity(ctx, "u1", fitness.Log{ActivityType: " Walking ", Steps: 4200, WaterML: 500})
	require.NoError(t, err)
	assert.Equal(t, date(10), entry.Date)
	assert.Equal(t, fitness.ActivityWalking, entry.ActivityType)
	assert.Equal(t, "u1", entry.UserID)

	sort.Slice(rec.calls, func(i, j int) bool { return rec.calls[i].metric < rec.calls[j].metric })
	assert.Equal(t, []recorded{
		{"steps", 4200, date(10)},
		{"water_ml", 500, date(10)},
	}, rec.calls)

	entry, err = svc.LogActivity(ctx, "u1", fitness.Log{Date: time.Date(2026, 5, 3, 22, 0, 0, 0, time.UTC), Calories: 300})
	require.NoError(t, err)
	assert.Equal(t, date(3), entry.Date)
	assert.Equal(t, fitness.ActivityDaily, entry.ActivityType)
}

func TestListLogsRange(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, d := range []int{1, 5, 10} {
		_, err := svc.LogActivity(ctx, "u1", fitness.Log{Date: date(d), Steps: d * 100})
		require.NoError(t, err)
	}

	logs, err := svc.ListLogs(ctx, "u1", date(5), date(10))
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, date(10), logs[0].Date, "newest first")

	logs, err = svc.ListLogs(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	_, err = svc.ListLogs(ctx, "u1", date(10), date(5))
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = svc.ListLogs(ctx, "u1", date(10).AddDate(-1, 0, -1), date(10))
	assert.True(t, errors.IsCode(err, errors.CodeValidation), "367 days")

	_, err = svc.ListLogs(ctx, "u1", date(10).AddDate(-1, 0, 0), date(10))
	assert.NoError(t, err, "366 days")
}

func TestDeleteLogOwnership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	entry, err := svc.LogActivity(ctx, "u1", fitness.Log{Steps: 10})
	require.NoError(t, err)

	assert.True(t, errors.IsCode(svc.DeleteLog(ctx, "u2", entry.ID), errors.CodeNotFound))
	require.NoError(t, svc.DeleteLog(ctx, "u1", entry.ID))
	assert.True(t, errors.IsCode(svc.DeleteLog(ctx, "u1", entry.ID), errors.CodeNotFound))
}

func TestDailySummary(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.SetGoals(ctx, "u1", fitness.Goals{DailySteps: 10000, DailyCalories: 2000, WeeklyWorkoutMinutes: 140, DailyWaterML: 2000})
	require.NoError(t, err)
	for _, l := range []fitness.Log{
		{Steps: 3000, WorkoutMinutes: 10},
		{Steps: 2000, WaterML: 2500},
		{Date: date(9), Steps: 99999},
	} {
		_, err := svc.LogActivity(ctx, "u1", l)
		require.NoError(t, err)
	}

	sum, err := svc.DailySummary(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-10", sum.Totals.Date)
	assert.Equal(t, 5000, sum.Totals.Steps)
	assert.Len(t, sum.Logs, 2)
	assert.Equal(t, 50.0, sum.Progress.Steps)
	assert.Equal(t, 50.0, sum.Progress.WorkoutMinutes, "10 of 20 daily minutes")
	assert.Equal(t, 100.0, sum.Progress.WaterML, "capped")
	assert.Equal(t, 0.0, sum.Progress.Calories)

	empty, err := svc.DailySummary(ctx, "u2", date(1))
	require.NoError(t, err)
	assert.NotNil(t, empty.Logs)
	assert.Equal(t, fitness.DefaultDailySteps, empty.Goals.DailySteps)
}

func TestWeeklyStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, l := range []fitness.Log{
		{Date: date(4), Steps: 7000, WorkoutMinutes: 30},
		{Date: date(6), Steps: 3000, Calories: 100},
		{Date: date(6), Steps: 4000},
		{Date: date(10), WaterML: 1000, WorkoutMinutes: 45},
		{Date: date(3), Steps: 50000},
	} {
		_, err := svc.LogActivity(ctx, "u1", l)
		require.NoError(t, err)
	}

	stats, err := svc.WeeklyStats(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04", stats.Start)
	assert.Equal(t, "2026-05-10", stats.End)
	require.Len(t, stats.Days, 7)
	assert.Equal(t, 7000, stats.Days[0].Steps)
	assert.Equal(t, 0, stats.Days[1].Steps, "gap day is a zero row")
	assert.Equal(t, "2026-05-05", stats.Days[1].Date)
	assert.Equal(t, 7000, stats.Days[2].Steps)
	assert.Equal(t, 14000, stats.Totals.Steps)
	assert.Equal(t, 75, stats.Totals.WorkoutMinutes)
	assert.Equal(t, 3, stats.ActiveDays)
	assert.Equal(t, 2000.0, stats.Averages.Steps)
	assert.Equal(t, 10.7, stats.Averages.WorkoutMinutes)
	assert.Equal(t, 20.0, stats.GoalProgress.Steps, "14000 of 70000")
	assert.Equal(t, 50.0, stats.GoalProgress.WorkoutMinutes, "75 of 150")
	assert.Equal(t, 7.1, stats.GoalProgress.WaterML, "1000 of 14000")

	_, err = svc.WeeklyStats(ctx, "u1", date(11))
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(10, 0))
	assert.Equal(t, 33.3, Percent(1, 3))
	assert.Equal(t, 100.0, Percent(5, 4))
}
