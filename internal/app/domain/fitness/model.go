package fitness

import "time"

// Activity types accepted on a log entry.
const (
	ActivityDaily    = "daily"
	ActivityWalking  = "walking"
	ActivityRunning  = "running"
	ActivityCycling  = "cycling"
	ActivitySwimming = "swimming"
	ActivityStrength = "strength"
	ActivityYoga     = "yoga"
	ActivityOther    = "other"
)

// Goal defaults applied when a user never set goals.
const (
	DefaultDailySteps           = 10000
	DefaultDailyCalories        = 2000
	DefaultWeeklyWorkoutMinutes = 150
	DefaultDailyWaterML         = 2000
)

// Upper bounds on a single log entry and on goals.
const (
	MaxSteps                = 200_000
	MaxCalories             = 20_000
	MaxWorkoutMinutes       = 1_440
	MaxWaterML              = 20_000
	MaxWeeklyWorkoutMinutes = 10_080
)

// Goals are a user's daily and weekly targets.
type Goals struct {
	UserID               string    `json:"user_id"`
	DailySteps           int       `json:"daily_steps"`
	DailyCalories        int       `json:"daily_calories"`
	WeeklyWorkoutMinutes int       `json:"weekly_workout_minutes"`
	DailyWaterML         int       `json:"daily_water_ml"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultGoals returns the goals used until a user saves their own.
func DefaultGoals(userID string) Goals {
	return Goals{
		UserID:               userID,
		DailySteps:           DefaultDailySteps,
		DailyCalories:        DefaultDailyCalories,
		WeeklyWorkoutMinutes: DefaultWeeklyWorkoutMinutes,
		DailyWaterML:         DefaultDailyWaterML,
	}
}

// Log is one recorded activity or daily roll-up. Date is midnight UTC.
type Log struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Date           time.Time `json:"date"`
	ActivityType   string    `json:"activity_type"`
	Steps          int       `json:"steps"`
	Calories       int       `json:"calories"`
	WorkoutMinutes int       `json:"workout_minutes"`
	WaterML        int       `json:"water_ml"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DailyTotals sums every log of one day.
type DailyTotals struct {
	Date           string `json:"date"`
	Steps          int    `json:"steps"`
	Calories       int    `json:"calories"`
	WorkoutMinutes int    `json:"workout_minutes"`
	WaterML        int    `json:"water_ml"`
}

// Add accumulates a log into the totals.
func (d *DailyTotals) Add(l Log) {
	d.Steps += l.Steps
	d.Calories += l.Calories
	d.WorkoutMinutes += l.WorkoutMinutes
	d.WaterML += l.WaterML
}

// Progress expresses totals as percentages of goals, capped at 100.
type Progress struct {
	Steps          float64 `json:"steps"`
	Calories       float64 `json:"calories"`
	WorkoutMinutes float64 `json:"workout_minutes"`
	WaterML        float64 `json:"water_ml"`
}

// DailySummary is one day's totals against the user's goals.
type DailySummary struct {
	Totals   DailyTotals `json:"totals"`
	Goals    Goals       `json:"goals"`
	Progress Progress    `json:"progress"`
	Logs     []Log       `json:"logs"`
}

// Averages are per-day means over a window.
type Averages struct {
	Steps          float64 `json:"steps"`
	Calories       float64 `json:"calories"`
	WorkoutMinutes float64 `json:"workout_minutes"`
	WaterML        float64 `json:"water_ml"`
}

// WeeklyStats covers seven consecutive days ending on End.
type WeeklyStats struct {
	Start        string        `json:"start"`
	End          string        `json:"end"`
	Days         []DailyTotals `json:"days"`
	Totals       DailyTotals   `json:"totals"`
	Averages     Averages      `json:"averages"`
	ActiveDays   int           `json:"active_days"`
	Goals        Goals         `json:"goals"`
	GoalProgress Progress      `json:"goal_progress"`
}
