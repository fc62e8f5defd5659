package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) toDomain() account.User {
	return account.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, email, name, password_hash, role, created_at, updated_at`

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, user account.User) (account.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return account.User{}, mapError(err)
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user account.User) (account.User, error) {
	existing, err := s.GetUser(ctx, user.ID)
	if err != nil {
		return account.User{}, err
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now()

	err = expectRows(s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, role = $5, updated_at = $6
		WHERE id = $1
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.UpdatedAt))
	if err != nil {
		return account.User{}, err
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (account.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return account.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (account.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email); err != nil {
		return account.User{}, mapError(err)
	}
	return row.toDomain(), nil
}

// --- SessionStore -----------------------------------------------------------

type sessionRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	TokenHash  string    `db:"token_hash"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
}

func (s *Store) CreateSession(ctx context.Context, sess account.Session) (account.Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	ts := now()
	sess.CreatedAt = ts
	sess.LastSeenAt = ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt, sess.CreatedAt, sess.LastSeenAt)
	if err != nil {
		return account.Session{}, mapError(err)
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (account.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, token_hash, expires_at, created_at, last_seen_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return account.Session{}, mapError(err)
	}
	return account.Session{
		ID:         row.ID,
		UserID:     row.UserID,
		TokenHash:  row.TokenHash,
		ExpiresAt:  row.ExpiresAt.UTC(),
		CreatedAt:  row.CreatedAt.UTC(),
		LastSeenAt: row.LastSeenAt.UTC(),
	}, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	return expectRows(s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at))
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash))
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID, keepTokenHash string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1 AND token_hash <> $2`, userID, keepTokenHash)
	if err != nil {
		return 0, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
