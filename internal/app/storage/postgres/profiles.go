package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/VitalSync/health_layer/internal/app/domain/profile"
)

const profileSelect = `
	SELECT user_id, personal, care_team, dashboard, onboarding, avatar_url, created_at, updated_at
	FROM profiles
	WHERE user_id = $1`

type profileRow struct {
	UserID     string    `db:"user_id"`
	Personal   []byte    `db:"personal"`
	CareTeam   []byte    `db:"care_team"`
	Dashboard  []byte    `db:"dashboard"`
	Onboarding []byte    `db:"onboarding"`
	AvatarURL  string    `db:"avatar_url"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r profileRow) toDomain() (profile.Profile, error) {
	p := profile.Profile{
		UserID:    r.UserID,
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	parts := []struct {
		raw []byte
		dst any
	}{
		{r.Personal, &p.Personal},
		{r.CareTeam, &p.CareTeam},
		{r.Dashboard, &p.Dashboard},
		{r.Onboarding, &p.Onboarding},
	}
	for _, part := range parts {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return profile.Profile{}, fmt.Errorf("decode profile %s: %w", r.UserID, err)
		}
	}
	return p, nil
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	var row profileRow
	if err := s.db.GetContext(ctx, &row, profileSelect, userID); err != nil {
		return profile.Profile{}, mapError(err)
	}
	return row.toDomain()
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(*profile.Profile, bool) error) (profile.Profile, error) {
	var saved profile.Profile
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockKey(ctx, tx, "profile:"+userID); err != nil {
			return err
		}
		p := profile.Profile{UserID: userID}
		found := true
		var row profileRow
		err := tx.GetContext(ctx, &row, profileSelect, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			found = false
		case err != nil:
			return mapError(err)
		default:
			if p, err = row.toDomain(); err != nil {
				return err
			}
		}
		if err := fn(&p, found); err != nil {
			return err
		}
		p.UserID = userID
		saved, err = upsertProfile(ctx, tx, p)
		return err
	})
	if err != nil {
		return profile.Profile{}, err
	}
	return saved, nil
}

func upsertProfile(ctx context.Context, q sqlx.QueryerContext, p profile.Profile) (profile.Profile, error) {
	personal, err := json.Marshal(p.Personal)
	if err != nil {
		return profile.Profile{}, err
	}
	careTeam, err := json.Marshal(nonNilProviders(p.CareTeam))
	if err != nil {
		return profile.Profile{}, err
	}
	dashboard, err := json.Marshal(p.Dashboard)
	if err != nil {
		return profile.Profile{}, err
	}
	onboarding, err := json.Marshal(p.Onboarding)
	if err != nil {
		return profile.Profile{}, err
	}

	ts := now()
	var createdAt time.Time
	err = sqlx.GetContext(ctx, q, &createdAt, `
		INSERT INTO profiles (user_id, personal, care_team, dashboard, onboarding, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET personal = EXCLUDED.personal,
		    care_team = EXCLUDED.care_team,
		    dashboard = EXCLUDED.dashboard,
		    onboarding = EXCLUDED.onboarding,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, p.UserID, personal, careTeam, dashboard, onboarding, p.AvatarURL, ts)
	if err != nil {
		return profile.Profile{}, mapError(err)
	}
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = ts
	return p, nil
}

func nonNilProviders(in []profile.Provider) []profile.Provider {
	if in == nil {
		return []profile.Provider{}
	}
	return in
}
