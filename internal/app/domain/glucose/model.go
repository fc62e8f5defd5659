package glucose

import "time"

// Measurement contexts.
const (
	ContextFasting    = "fasting"
	ContextBeforeMeal = "before_meal"
	ContextAfterMeal  = "after_meal"
	ContextBedtime    = "bedtime"
	ContextRandom     = "random"
)

// Target range and accepted bounds in mg/dL.
const (
	TargetLowMgDL  = 70
	TargetHighMgDL = 180
	MinMgDL        = 20
	MaxMgDL        = 600
)

// Reading is a single blood glucose measurement.
type Reading struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ValueMgDL  float64   `json:"value_mg_dl"`
	MeasuredAt time.Time `json:"measured_at"`
	Context    string    `json:"context"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InRange reports whether the reading is within the target range.
func (r Reading) InRange() bool {
	return r.ValueMgDL >= TargetLowMgDL && r.ValueMgDL <= TargetHighMgDL
}

// Summary aggregates readings over a trailing window of days.
type Summary struct {
	Days           int      `json:"days"`
	Count          int      `json:"count"`
	Average        float64  `json:"average"`
	Min            float64  `json:"min"`
	Max            float64  `json:"max"`
	InRangePercent float64  `json:"in_range_percent"`
	Latest         *Reading `json:"latest,omitempty"`
}
