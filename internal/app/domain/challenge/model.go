package challenge

import "time"

// Metrics a challenge can track. They match fitness log quantities.
const (
	MetricSteps          = "steps"
	MetricCalories       = "calories"
	MetricWorkoutMinutes = "workout_minutes"
	MetricWaterML        = "water_ml"
)

// Bounds on user-supplied quantities.
const (
	MaxTarget         = 100_000_000
	MaxProgressAmount = 200_000
)

// Challenge is a gamified goal users can join.
type Challenge struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Metric      string    `json:"metric"`
	Target      int       `json:"target"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActiveAt reports whether t falls inside the challenge window. EndDate is
// inclusive of the whole day.
func (c Challenge) ActiveAt(t time.Time) bool {
	return !t.Before(c.StartDate) && t.Before(c.EndDate.AddDate(0, 0, 1))
}

// Ended reports whether the challenge window closed before t.
func (c Challenge) Ended(t time.Time) bool {
	return !t.Before(c.EndDate.AddDate(0, 0, 1))
}

// Participant is a user's membership and progress in a challenge.
type Participant struct {
	ChallengeID string     `json:"challenge_id"`
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Progress    int        `json:"progress"`
	JoinedAt    time.Time  `json:"joined_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Membership pairs a challenge with the caller's participation.
type Membership struct {
	Challenge   Challenge   `json:"challenge"`
	Participant Participant `json:"participant"`
	Percent     float64     `json:"percent"`
}

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Progress    int     `json:"progress"`
	Percent     float64 `json:"percent"`
	Completed   bool    `json:"completed"`
}

// Leaderboard is the ranked view of a challenge.
type Leaderboard struct {
	ChallengeID  string             `json:"challenge_id"`
	Participants int                `json:"participants"`
	Entries      []LeaderboardEntry `json:"entries"`
	GeneratedAt  time.Time          `json:"generated_at"`
}
