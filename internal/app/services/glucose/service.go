// Package glucose records blood glucose readings and summarises them.
package glucose

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	DefaultSummaryDays = 7
	MaxSummaryDays     = 90
	MaxRangeDays       = 366

	maxNotesLen = 500
)

type Service struct {
	store storage.GlucoseStore
	log   *logging.Logger
	now   func() time.Time
}

func New(store storage.GlucoseStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("glucose")
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record stores a reading. MeasuredAt defaults to now and Context to random.
func (s *Service) Record(ctx context.Context, userID string, r glucose.Reading) (glucose.Reading, error) {
	now := s.now()
	if r.MeasuredAt.IsZero() {
		r.MeasuredAt = now
	}
	r.MeasuredAt = r.MeasuredAt.UTC()
	// small allowance for client clock skew
	if r.MeasuredAt.After(now.Add(time.Minute)) {
		return glucose.Reading{}, errors.Validation("measured_at", "must not be in the future")
	}
	if r.ValueMgDL < glucose.MinMgDL || r.ValueMgDL > glucose.MaxMgDL || math.IsNaN(r.ValueMgDL) {
		return glucose.Reading{}, errors.Validation("value_mg_dl", fmt.Sprintf("must be between %d and %d", glucose.MinMgDL, glucose.MaxMgDL))
	}
	r.Context = strings.ToLower(strings.TrimSpace(r.Context))
	if r.Context == "" {
		r.Context = glucose.ContextRandom
	}
	if !validContext(r.Context) {
		return glucose.Reading{}, errors.Validation("context", "must be one of fasting, before_meal, after_meal, bedtime, random")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > maxNotesLen {
		return glucose.Reading{}, errors.Validation("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}
	r.ID = ""
	r.UserID = userID

	created, err := s.store.CreateReading(ctx, r)
	if err != nil {
		return glucose.Reading{}, errors.Internal("create reading", err)
	}
	if !created.InRange() {
		s.log.WithContext(ctx).WithField("reading_id", created.ID).Info("out of range glucose reading recorded")
	}
	return created, nil
}

// List returns readings measured within [from, to], newest first. Zero bounds
// default to the last seven days.
func (s *Service) List(ctx context.Context, userID string, from, to time.Time) ([]glucose.Reading, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -DefaultSummaryDays)
	}
	if to.Before(from) {
		return nil, errors.Validation("from", "must not be after to")
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return nil, errors.Validation("to", fmt.Sprintf("range must not exceed %d days", MaxRangeDays))
	}
	readings, err := s.store.ListReadings(ctx, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.Internal("list readings", err)
	}
	return readings, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	r, err := s.store.GetReading(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && r.UserID != userID) {
		return errors.NotFound("reading", id)
	}
	if err != nil {
		return errors.Internal("load reading", err)
	}
	if err := s.store.DeleteReading(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("reading", id)
		}
		return errors.Internal("delete reading", err)
	}
	return nil
}

// Summary aggregates the trailing days (1..90, default 7) up to now.
func (s *Service) Summary(ctx context.Context, userID string, days int) (glucose.Summary, error) {
	if days == 0 {
		days = DefaultSummaryDays
	}
	if days < 1 || days > MaxSummaryDays {
		return glucose.Summary{}, errors.Validation("days", fmt.Sprintf("must be between 1 and %d", MaxSummaryDays))
	}
	now := s.now()
	readings, err := s.store.ListReadings(ctx, userID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return glucose.Summary{}, errors.Internal("list readings", err)
	}
	return Summarize(days, readings), nil
}

// Summarize computes statistics over readings sorted newest first.
func Summarize(days int, readings []glucose.Reading) glucose.Summary {
	sum := glucose.Summary{Days: days, Count: len(readings)}
	if len(readings) == 0 {
		return sum
	}
	latest := readings[0]
	sum.Min, sum.Max = readings[0].ValueMgDL, readings[0].ValueMgDL
	total, inRange := 0.0, 0
	for _, r := range readings {
		total += r.ValueMgDL
		if r.ValueMgDL < sum.Min {
			sum.Min = r.ValueMgDL
		}
		if r.ValueMgDL > sum.Max {
			sum.Max = r.ValueMgDL
		}
		if r.InRange() {
			inRange++
		}
		if r.MeasuredAt.After(latest.MeasuredAt) {
			latest = r
		}
	}
	sum.Average = round1(total / float64(len(readings)))
	sum.InRangePercent = round1(float64(inRange) / float64(len(readings)) * 100)
	sum.Latest = &latest
	return sum
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func validContext(c string) bool {
	switch c {
	case glucose.ContextFasting, glucose.ContextBeforeMeal, glucose.ContextAfterMeal,
		glucose.ContextBedtime, glucose.ContextRandom:
		return true
	}
	return false
}
