package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
)

type challengeRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Metric      string    `db:"metric"`
	Target      int       `db:"target"`
	StartDate   time.Time `db:"start_date"`
	EndDate     time.Time `db:"end_date"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r challengeRow) toDomain() challenge.Challenge {
	return challenge.Challenge{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Metric:      r.Metric,
		Target:      r.Target,
		StartDate:   dateUTC(r.StartDate),
		EndDate:     dateUTC(r.EndDate),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type participantRow struct {
	ChallengeID string       `db:"challenge_id"`
	UserID      string       `db:"user_id"`
	DisplayName string       `db:"display_name"`
	Progress    int          `db:"progress"`
	JoinedAt    time.Time    `db:"joined_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r participantRow) toDomain() challenge.Participant {
	return challenge.Participant{
		ChallengeID: r.ChallengeID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Progress:    r.Progress,
		JoinedAt:    r.JoinedAt.UTC(),
		CompletedAt: timePtr(r.CompletedAt),
	}
}

const (
	challengeColumns   = `id, title, description, metric, target, start_date, end_date, created_by, created_at`
	participantColumns = `challenge_id, user_id, display_name, progress, joined_at, completed_at`
)

// dateUTC drops the zone lib/pq attaches to DATE columns.
func dateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// --- ChallengeStore ---------------------------------------------------------

func (s *Store) CreateChallenge(ctx context.Context, c challenge.Challenge) (challenge.Challenge, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Title, c.Description, c.Metric, c.Target, c.StartDate, c.EndDate, c.CreatedBy, c.CreatedAt)
	if err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	return c, nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (challenge.Challenge, error) {
	var row challengeRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id); err != nil {
		return challenge.Challenge{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]challenge.Challenge, error) {
	var rows []challengeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+challengeColumns+` FROM challenges ORDER BY start_date, id`); err != nil {
		return nil, mapError(err)
	}
	result := make([]challenge.Challenge, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) AddParticipant(ctx context.Context, p challenge.Participant) (challenge.Participant, error) {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ChallengeID, p.UserID, p.DisplayName, p.Progress, p.JoinedAt, nullTime(p.CompletedAt))
	if err != nil {
		return challenge.Participant{}, mapError(err)
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, challengeID, userID string) (challenge.Participant, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+participantColumns+`
		FROM challenge_participants
		WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID)
	if err != nil {
		return challenge.Participant{}, mapError(err)
	}
	return row.toDomain(), nil
}

// AddProgress increments progress in place and stamps completed_at the first
// time progress reaches target.
func (s *Store) AddProgress(ctx context.Context, challengeID, userID string, amount, target int, at time.Time) (challenge.Participant, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE challenge_participants
		SET progress = progress + $3,
		    completed_at = COALESCE(completed_at, CASE WHEN progress + $3 >= $4 THEN $5::timestamptz END)
		WHERE challenge_id = $1 AND user_id = $2
		RETURNING `+participantColumns,
		challengeID, userID, amount, target, at.UTC())
	if err != nil {
		return challenge.Participant{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) RemoveParticipant(ctx context.Context, challengeID, userID string) error {
	return expectRows(s.db.ExecContext(ctx, `
		DELETE FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID))
}

func (s *Store) ListParticipants(ctx context.Context, challengeID string) ([]challenge.Participant, error) {
	return s.selectParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM challenge_participants
		WHERE challenge_id = $1
		ORDER BY joined_at
	`, challengeID)
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]challenge.Participant, error) {
	return s.selectParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM challenge_participants
		WHERE user_id = $1
		ORDER BY joined_at
	`, userID)
}

func (s *Store) selectParticipants(ctx context.Context, query string, args ...any) ([]challenge.Participant, error) {
	var rows []participantRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]challenge.Participant, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}
