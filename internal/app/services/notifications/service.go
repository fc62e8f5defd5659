// Package notifications stores in-app notifications and fans new ones out to
// realtime subscribers.
package notifications

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/metrics"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
	"github.com/VitalSync/health_layer/internal/realtime"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	maxTitleLen   = 200
	maxMessageLen = 2000

	// EventType tags realtime frames carrying a notification.
	EventType = "notification"
)

// Publisher pushes events to a user's live connections.
type Publisher interface {
	Publish(userID string, ev realtime.Event) int
}

type Service struct {
	store     storage.NotificationStore
	publisher Publisher
	log       *logging.Logger
	now       func() time.Time
}

// New constructs the service. publisher may be nil.
func New(store storage.NotificationStore, publisher Publisher, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("notifications")
	}
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify creates a notification. When dedupeKey is set and the user already
// has a notification with that key, nothing is created and created is false.
func (s *Service) Notify(ctx context.Context, userID, kind, title, message, dedupeKey string) (n notification.Notification, created bool, err error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	switch {
	case strings.TrimSpace(userID) == "":
		return n, false, errors.Validation("user_id", "is required")
	case !validType(kind):
		return n, false, errors.Validation("type", "unknown notification type")
	case title == "":
		return n, false, errors.Validation("title", "is required")
	case len(title) > maxTitleLen:
		return n, false, errors.Validation("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	case len(message) > maxMessageLen:
		return n, false, errors.Validation("message", fmt.Sprintf("must be at most %d characters", maxMessageLen))
	}

	n, err = s.store.CreateNotification(ctx, notification.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		DedupeKey: dedupeKey,
		CreatedAt: s.now(),
	})
	if stderrors.Is(err, storage.ErrDuplicate) {
		return notification.Notification{}, false, nil
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return notification.Notification{}, false, errors.NotFound("user", userID)
	}
	if err != nil {
		return notification.Notification{}, false, errors.Internal("create notification", err)
	}

	metrics.RecordNotification(kind)
	if s.publisher != nil {
		delivered := s.publisher.Publish(userID, realtime.Event{Type: EventType, Data: n})
		s.log.WithField("notification_id", n.ID).
			WithField("type", kind).
			WithField("delivered", delivered).
			Debug("notification published")
	}
	return n, true, nil
}

// List returns the user's notifications newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, errors.Validation("limit", fmt.Sprintf("must be between 1 and %d", MaxListLimit))
	}
	items, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, errors.Internal("list notifications", err)
	}
	return items, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, errors.Internal("count notifications", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read. Marking twice keeps
// the first ReadAt.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (notification.Notification, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return notification.Notification{}, err
	}
	n, err := s.store.MarkRead(ctx, id, s.now())
	if stderrors.Is(err, storage.ErrNotFound) {
		return notification.Notification{}, errors.NotFound("notification", id)
	}
	if err != nil {
		return notification.Notification{}, errors.Internal("mark notification read", err)
	}
	return n, nil
}

// MarkAllRead returns how many notifications changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.store.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, errors.Internal("mark notifications read", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	err := s.store.DeleteNotification(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("notification", id)
	}
	if err != nil {
		return errors.Internal("delete notification", err)
	}
	return nil
}

// owned loads a notification and hides other users' records as not found.
func (s *Service) owned(ctx context.Context, userID, id string) (notification.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && n.UserID != userID) {
		return notification.Notification{}, errors.NotFound("notification", id)
	}
	if err != nil {
		return notification.Notification{}, errors.Internal("load notification", err)
	}
	return n, nil
}

func validType(kind string) bool {
	switch kind {
	case notification.TypeMedicationReminder, notification.TypeAppointmentReminder,
		notification.TypeChallenge, notification.TypeSystem:
		return true
	}
	return false
}
