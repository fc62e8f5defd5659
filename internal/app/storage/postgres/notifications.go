package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/notification"
)

type notificationRow struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	Type      string       `db:"type"`
	Title     string       `db:"title"`
	Message   string       `db:"message"`
	Read      bool         `db:"read"`
	DedupeKey string       `db:"dedupe_key"`
	CreatedAt time.Time    `db:"created_at"`
	ReadAt    sql.NullTime `db:"read_at"`
}

func (r notificationRow) toDomain() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.Read,
		DedupeKey: r.DedupeKey,
		CreatedAt: r.CreatedAt.UTC(),
		ReadAt:    timePtr(r.ReadAt),
	}
}

const notificationColumns = `id, user_id, type, title, message, read, dedupe_key, created_at, read_at`

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.DedupeKey, n.CreatedAt, nullTime(n.ReadAt))
	if err != nil {
		return notification.Notification{}, mapError(err)
	}
	return n, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id); err != nil {
		return notification.Notification{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (s *Store) MarkRead(ctx context.Context, id string, at time.Time) (notification.Notification, error) {
	var row notificationRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
		RETURNING `+notificationColumns, id, at)
	if err != nil {
		return notification.Notification{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT read
	`, userID, at)
	if err != nil {
		return 0, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return expectRows(s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id))
}
