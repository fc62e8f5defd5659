// Package challenges manages gamified challenges, participation, progress and
// leaderboards.
package challenges

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/cache"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100

	cacheName = "leaderboard"
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, message, dedupeKey string) (notification.Notification, bool, error)
}

// Service implements challenge operations.
type Service struct {
	store    storage.ChallengeStore
	users    storage.AccountStore
	profiles storage.ProfileStore
	cache    cache.Cache
	cacheTTL time.Duration
	notifier Notifier
	log      *logging.Logger

	now func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCache caches leaderboards for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithNotifier notifies users when they complete a challenge.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the service. users and profiles resolve display names and may be nil.
func New(store storage.ChallengeStore, users storage.AccountStore, profiles storage.ProfileStore, log *logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.NewDefault("challenges")
	}
	s := &Service{
		store:    store,
		users:    users,
		profiles: profiles,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new challenge. Only admins may create challenges.
func (s *Service) Create(ctx context.Context, userID, role string, c challenge.Challenge) (challenge.Challenge, error) {
	if role != account.RoleAdmin {
		return challenge.Challenge{}, errors.Forbidden("only admins can create challenges")
	}
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.Metric = strings.ToLower(strings.TrimSpace(c.Metric))
	if c.Title == "" {
		return challenge.Challenge{}, errors.Validation("title", "is required")
	}
	if !validMetric(c.Metric) {
		return challenge.Challenge{}, errors.Validation("metric", "must be one of steps, calories, workout_minutes, water_ml")
	}
	if c.Target <= 0 || c.Target > challenge.MaxTarget {
		return challenge.Challenge{}, errors.Validation("target", fmt.Sprintf("must be between 1 and %d", challenge.MaxTarget))
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return challenge.Challenge{}, errors.Validation("start_date", "start_date and end_date are required")
	}
	c.StartDate = day(c.StartDate)
	c.EndDate = day(c.EndDate)
	if !c.EndDate.After(c.StartDate) {
		return challenge.Challenge{}, errors.Validation("end_date", "must be after start_date")
	}
	c.ID = ""
	c.CreatedBy = userID

	created, err := s.store.CreateChallenge(ctx, c)
	if err != nil {
		return challenge.Challenge{}, errors.Internal("create challenge", err)
	}
	s.log.WithContext(ctx).
		WithField("challenge_id", created.ID).
		WithField("metric", created.Metric).
		Info("challenge created")
	return created, nil
}

// List returns challenges ordered by start date. activeOnly hides challenges
// that have already ended.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]challenge.Challenge, error) {
	all, err := s.store.ListChallenges(ctx)
	if err != nil {
		return nil, errors.Internal("list challenges", err)
	}
	now := s.now()
	out := make([]challenge.Challenge, 0, len(all))
	for _, c := range all {
		if activeOnly && c.Ended(now) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (challenge.Challenge, error) {
	c, err := s.store.GetChallenge(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return challenge.Challenge{}, errors.NotFound("challenge", id)
	}
	if err != nil {
		return challenge.Challenge{}, errors.Internal("load challenge", err)
	}
	return c, nil
}

// Mine returns the user's memberships with completion percentages.
func (s *Service) Mine(ctx context.Context, userID string) ([]challenge.Membership, error) {
	parts, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, errors.Internal("list memberships", err)
	}
	out := make([]challenge.Membership, 0, len(parts))
	for _, p := range parts {
		c, err := s.store.GetChallenge(ctx, p.ChallengeID)
		if stderrors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Internal("load challenge", err)
		}
		out = append(out, challenge.Membership{Challenge: c, Participant: p, Percent: percent(p.Progress, c.Target)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Challenge.EndDate.Before(out[j].Challenge.EndDate)
	})
	return out, nil
}

// Join adds the user to a challenge that has not ended.
func (s *Service) Join(ctx context.Context, userID, challengeID string) (challenge.Participant, error) {
	c, err := s.Get(ctx, challengeID)
	if err != nil {
		return challenge.Participant{}, err
	}
	if c.Ended(s.now()) {
		return challenge.Participant{}, errors.Validation("challenge_id", "challenge has ended")
	}

	p, err := s.store.AddParticipant(ctx, challenge.Participant{
		ChallengeID: challengeID,
		UserID:      userID,
		DisplayName: s.displayName(ctx, userID),
		JoinedAt:    s.now(),
	})
	switch {
	case stderrors.Is(err, storage.ErrDuplicate):
		return challenge.Participant{}, errors.Conflict("already joined this challenge")
	case stderrors.Is(err, storage.ErrNotFound):
		return challenge.Participant{}, errors.NotFound("challenge", challengeID)
	case err != nil:
		return challenge.Participant{}, errors.Internal("join challenge", err)
	}
	s.invalidate(ctx, challengeID)
	s.log.WithContext(ctx).WithField("challenge_id", challengeID).Info("challenge joined")
	return p, nil
}

// Leave removes the user's participation and progress.
func (s *Service) Leave(ctx context.Context, userID, challengeID string) error {
	err := s.store.RemoveParticipant(ctx, challengeID, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("participation", challengeID)
	}
	if err != nil {
		return errors.Internal("leave challenge", err)
	}
	s.invalidate(ctx, challengeID)
	return nil
}

// AddProgress adds amount to the user's progress in a running challenge.
func (s *Service) AddProgress(ctx context.Context, userID, challengeID string, amount int) (challenge.Participant, error) {
	if amount <= 0 || amount > challenge.MaxProgressAmount {
		return challenge.Participant{}, errors.Validation("amount", fmt.Sprintf("must be between 1 and %d", challenge.MaxProgressAmount))
	}
	c, err := s.Get(ctx, challengeID)
	if err != nil {
		return challenge.Participant{}, err
	}
	now := s.now()
	if !c.ActiveAt(now) {
		return challenge.Participant{}, errors.Validation("challenge_id", "challenge is not running")
	}
	return s.advance(ctx, c, userID, amount, now)
}

// RecordActivity advances every running challenge the user joined that tracks
// metric. at is the activity date. It returns how many challenges changed.
func (s *Service) RecordActivity(ctx context.Context, userID, metric string, amount int, at time.Time) (int, error) {
	if amount <= 0 {
		return 0, nil
	}
	parts, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return 0, errors.Internal("list memberships", err)
	}
	updated := 0
	for _, p := range parts {
		c, err := s.store.GetChallenge(ctx, p.ChallengeID)
		if stderrors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, errors.Internal("load challenge", err)
		}
		if c.Metric != metric || !c.ActiveAt(at) {
			continue
		}
		if _, err := s.advance(ctx, c, userID, amount, s.now()); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// advance increments progress in the store. Only the increment that crosses
// the target notifies.
func (s *Service) advance(ctx context.Context, c challenge.Challenge, userID string, amount int, now time.Time) (challenge.Participant, error) {
	updated, err := s.store.AddProgress(ctx, c.ID, userID, amount, c.Target, now)
	if stderrors.Is(err, storage.ErrNotFound) {
		return challenge.Participant{}, errors.NotFound("participation", c.ID)
	}
	if err != nil {
		return challenge.Participant{}, errors.Internal("update progress", err)
	}
	s.invalidate(ctx, c.ID)

	justCompleted := updated.CompletedAt != nil && updated.Progress-amount < c.Target

	if justCompleted {
		s.log.WithContext(ctx).WithField("challenge_id", c.ID).Info("challenge completed")
		if s.notifier != nil {
			_, _, err := s.notifier.Notify(ctx, userID, notification.TypeChallenge,
				"Challenge completed",
				fmt.Sprintf("You completed %q. Nice work!", c.Title),
				"challenge:"+c.ID+":completed")
			if err != nil {
				s.log.WithContext(ctx).WithError(err).Warn("notify challenge completion")
			}
		}
	}
	return updated, nil
}

// Leaderboard ranks participants by progress, then earlier completion, then
// earlier join. Entries with equal progress and completion time share a rank.
func (s *Service) Leaderboard(ctx context.Context, challengeID string, limit int) (challenge.Leaderboard, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 1 || limit > MaxLeaderboardLimit {
		return challenge.Leaderboard{}, errors.Validation("limit", fmt.Sprintf("must be between 1 and %d", MaxLeaderboardLimit))
	}
	c, err := s.Get(ctx, challengeID)
	if err != nil {
		return challenge.Leaderboard{}, err
	}

	gen := s.generation(ctx, challengeID)
	board, ok := s.cached(ctx, challengeID, gen)
	if !ok {
		parts, err := s.store.ListParticipants(ctx, challengeID)
		if err != nil {
			return challenge.Leaderboard{}, errors.Internal("list participants", err)
		}
		board = challenge.Leaderboard{
			ChallengeID:  challengeID,
			Participants: len(parts),
			Entries:      Rank(parts, c.Target),
			GeneratedAt:  s.now(),
		}
		s.save(ctx, board, gen)
	}

	if len(board.Entries) > limit {
		board.Entries = board.Entries[:limit]
	}
	return board, nil
}

// Rank orders participants and assigns competition ranks (1, 1, 3).
func Rank(parts []challenge.Participant, target int) []challenge.LeaderboardEntry {
	sorted := append([]challenge.Participant(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if c := compareCompletion(a.CompletedAt, b.CompletedAt); c != 0 {
			return c < 0
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})

	entries := make([]challenge.LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 {
			prev := sorted[i-1]
			if prev.Progress == p.Progress && compareCompletion(prev.CompletedAt, p.CompletedAt) == 0 {
				rank = entries[i-1].Rank
			}
		}
		entries[i] = challenge.LeaderboardEntry{
			Rank:        rank,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Progress:    p.Progress,
			Percent:     percent(p.Progress, target),
			Completed:   p.CompletedAt != nil,
		}
	}
	return entries
}

// compareCompletion orders earlier completions first and incomplete last.
func compareCompletion(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}

// Boards are cached under a generation token. Writers rotate the token after
// changing the store, so a board computed from an older snapshot is saved
// under a key no reader will look up again.
func cacheKey(challengeID, gen string) string {
	return "leaderboard:" + challengeID + ":" + gen
}

func generationKey(challengeID string) string {
	return "leaderboard:" + challengeID + ":gen"
}

func (s *Service) generation(ctx context.Context, challengeID string) string {
	if s.cache == nil {
		return ""
	}
	raw, ok, err := s.cache.Get(ctx, generationKey(challengeID))
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard generation read failed")
		return ""
	}
	if ok {
		return string(raw)
	}
	gen := uuid.NewString()
	if err := s.cache.Set(ctx, generationKey(challengeID), []byte(gen), 0); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard generation write failed")
		return ""
	}
	return gen
}

func (s *Service) cached(ctx context.Context, challengeID, gen string) (challenge.Leaderboard, bool) {
	if s.cache == nil || gen == "" {
		return challenge.Leaderboard{}, false
	}
	var board challenge.Leaderboard
	ok, err := cache.GetJSON(ctx, s.cache, cacheName, cacheKey(challengeID, gen), &board)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard cache read failed")
		return challenge.Leaderboard{}, false
	}
	return board, ok
}

func (s *Service) save(ctx context.Context, board challenge.Leaderboard, gen string) {
	if s.cache == nil || gen == "" {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cacheKey(board.ChallengeID, gen), board, s.cacheTTL); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, challengeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, generationKey(challengeID), []byte(uuid.NewString()), 0); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("leaderboard cache invalidation failed")
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	if s.profiles != nil {
		if p, err := s.profiles.GetProfile(ctx, userID); err == nil {
			if name := p.Personal.DisplayName(); name != "" {
				return name
			}
		}
	}
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, userID); err == nil && u.Name != "" {
			return u.Name
		}
	}
	return "Participant"
}

func validMetric(metric string) bool {
	switch metric {
	case challenge.MetricSteps, challenge.MetricCalories, challenge.MetricWorkoutMinutes, challenge.MetricWaterML:
		return true
	}
	return false
}

func percent(progress, target int) float64 {
	if target <= 0 {
		return 0
	}
	p := float64(progress) / float64(target) * 100
	if p > 100 {
		p = 100
	}
	return math.Round(p*10) / 10
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
