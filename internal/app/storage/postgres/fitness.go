package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
)

type goalsRow struct {
	UserID               string    `db:"user_id"`
	DailySteps           int       `db:"daily_steps"`
	DailyCalories        int       `db:"daily_calories"`
	WeeklyWorkoutMinutes int       `db:"weekly_workout_minutes"`
	DailyWaterML         int       `db:"daily_water_ml"`
	UpdatedAt            time.Time `db:"updated_at"`
}

type fitnessLogRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	LogDate        time.Time `db:"log_date"`
	ActivityType   string    `db:"activity_type"`
	Steps          int       `db:"steps"`
	Calories       int       `db:"calories"`
	WorkoutMinutes int       `db:"workout_minutes"`
	WaterML        int       `db:"water_ml"`
	Notes          string    `db:"notes"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r fitnessLogRow) toDomain() fitness.Log {
	d := r.LogDate.UTC()
	return fitness.Log{
		ID:             r.ID,
		UserID:         r.UserID,
		Date:           time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		ActivityType:   r.ActivityType,
		Steps:          r.Steps,
		Calories:       r.Calories,
		WorkoutMinutes: r.WorkoutMinutes,
		WaterML:        r.WaterML,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

const fitnessLogColumns = `id, user_id, log_date, activity_type, steps, calories, workout_minutes, water_ml, notes, created_at`

// --- FitnessStore -----------------------------------------------------------

func (s *Store) GetGoals(ctx context.Context, userID string) (fitness.Goals, error) {
	var row goalsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, daily_steps, daily_calories, weekly_workout_minutes, daily_water_ml, updated_at
		FROM fitness_goals
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fitness.Goals{}, mapError(err)
	}
	return fitness.Goals{
		UserID:               row.UserID,
		DailySteps:           row.DailySteps,
		DailyCalories:        row.DailyCalories,
		WeeklyWorkoutMinutes: row.WeeklyWorkoutMinutes,
		DailyWaterML:         row.DailyWaterML,
		UpdatedAt:            row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) UpsertGoals(ctx context.Context, goals fitness.Goals) (fitness.Goals, error) {
	goals.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fitness_goals (user_id, daily_steps, daily_calories, weekly_workout_minutes, daily_water_ml, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET daily_steps = EXCLUDED.daily_steps,
		    daily_calories = EXCLUDED.daily_calories,
		    weekly_workout_minutes = EXCLUDED.weekly_workout_minutes,
		    daily_water_ml = EXCLUDED.daily_water_ml,
		    updated_at = EXCLUDED.updated_at
	`, goals.UserID, goals.DailySteps, goals.DailyCalories, goals.WeeklyWorkoutMinutes, goals.DailyWaterML, goals.UpdatedAt)
	if err != nil {
		return fitness.Goals{}, mapError(err)
	}
	return goals, nil
}

func (s *Store) CreateFitnessLog(ctx context.Context, log fitness.Log) (fitness.Log, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fitness_logs (`+fitnessLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, log.ID, log.UserID, log.Date, log.ActivityType, log.Steps, log.Calories, log.WorkoutMinutes, log.WaterML, log.Notes, log.CreatedAt)
	if err != nil {
		return fitness.Log{}, mapError(err)
	}
	return log, nil
}

func (s *Store) GetFitnessLog(ctx context.Context, id string) (fitness.Log, error) {
	var row fitnessLogRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+fitnessLogColumns+` FROM fitness_logs WHERE id = $1`, id); err != nil {
		return fitness.Log{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListFitnessLogs(ctx context.Context, userID string, from, to time.Time) ([]fitness.Log, error) {
	var rows []fitnessLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+fitnessLogColumns+`
		FROM fitness_logs
		WHERE user_id = $1 AND log_date BETWEEN $2 AND $3
		ORDER BY log_date DESC, created_at DESC
	`, userID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]fitness.Log, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteFitnessLog(ctx context.Context, id string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM fitness_logs WHERE id = $1`, id))
}
