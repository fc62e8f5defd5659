// Package medications manages a user's medication list, dose records and
// adherence.
package medications

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	DefaultAdherenceDays = 7
	MaxAdherenceDays     = 90

	maxNameLen  = 200
	maxTimes    = 12
	timeLayout  = "15:04"
	maxNotesLen = 1000
)

// Input is the writable part of a medication. A nil Active keeps the current
// value on update and means active on create.
type Input struct {
	Name      string     `json:"name"`
	Dosage    string     `json:"dosage"`
	Frequency string     `json:"frequency"`
	Times     []string   `json:"times"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Notes     string     `json:"notes"`
	Active    *bool      `json:"active"`
}

type Service struct {
	store storage.MedicationStore
	log   *logging.Logger
	now   func() time.Time
}

func New(store storage.MedicationStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("medications")
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Create(ctx context.Context, userID string, in Input) (medication.Medication, error) {
	med := medication.Medication{UserID: userID, Active: true}
	if err := apply(&med, in); err != nil {
		return medication.Medication{}, err
	}
	created, err := s.store.CreateMedication(ctx, med)
	if err != nil {
		return medication.Medication{}, errors.Internal("create medication", err)
	}
	s.log.WithContext(ctx).WithField("medication_id", created.ID).Info("medication added")
	return created, nil
}

// Validate checks an input without storing it.
func Validate(in Input) error {
	var med medication.Medication
	return apply(&med, in)
}

// List returns the user's medications by name. activeOnly keeps active
// medications whose date window covers today.
func (s *Service) List(ctx context.Context, userID string, activeOnly bool) ([]medication.Medication, error) {
	meds, err := s.store.ListMedications(ctx, userID)
	if err != nil {
		return nil, errors.Internal("list medications", err)
	}
	if !activeOnly {
		return meds, nil
	}
	today := day(s.now())
	out := make([]medication.Medication, 0, len(meds))
	for _, m := range meds {
		if m.Active && m.CoversDay(today) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (medication.Medication, error) {
	med, err := s.store.GetMedication(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) || (err == nil && med.UserID != userID) {
		return medication.Medication{}, errors.NotFound("medication", id)
	}
	if err != nil {
		return medication.Medication{}, errors.Internal("load medication", err)
	}
	return med, nil
}

// Update replaces the writable fields of a medication.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (medication.Medication, error) {
	med, err := s.Get(ctx, userID, id)
	if err != nil {
		return medication.Medication{}, err
	}
	if err := apply(&med, in); err != nil {
		return medication.Medication{}, err
	}
	updated, err := s.store.UpdateMedication(ctx, med)
	if stderrors.Is(err, storage.ErrNotFound) {
		return medication.Medication{}, errors.NotFound("medication", id)
	}
	if err != nil {
		return medication.Medication{}, errors.Internal("update medication", err)
	}
	return updated, nil
}

// Delete removes the medication together with its dose history.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := s.store.DeleteMedication(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("medication", id)
	}
	if err != nil {
		return errors.Internal("delete medication", err)
	}
	return nil
}

// RecordDose stores whether a scheduled dose was taken. scheduledFor defaults to now.
func (s *Service) RecordDose(ctx context.Context, userID, medicationID, status string, scheduledFor time.Time) (medication.Dose, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != medication.DoseTaken && status != medication.DoseSkipped {
		return medication.Dose{}, errors.Validation("status", "must be taken or skipped")
	}
	if _, err := s.Get(ctx, userID, medicationID); err != nil {
		return medication.Dose{}, err
	}
	now := s.now()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	scheduledFor = scheduledFor.UTC()
	if scheduledFor.After(now.Add(24 * time.Hour)) {
		return medication.Dose{}, errors.Validation("scheduled_for", "must not be more than a day ahead")
	}

	dose, err := s.store.CreateDose(ctx, medication.Dose{
		MedicationID: medicationID,
		UserID:       userID,
		Status:       status,
		ScheduledFor: scheduledFor,
		RecordedAt:   now,
	})
	if stderrors.Is(err, storage.ErrNotFound) {
		return medication.Dose{}, errors.NotFound("medication", medicationID)
	}
	if err != nil {
		return medication.Dose{}, errors.Internal("record dose", err)
	}
	return dose, nil
}

// Adherence reports taken / (taken + skipped) over the trailing days
// (1..90, default 7). With no recorded doses the percentage is 0.
func (s *Service) Adherence(ctx context.Context, userID string, days int) (medication.Adherence, error) {
	if days == 0 {
		days = DefaultAdherenceDays
	}
	if days < 1 || days > MaxAdherenceDays {
		return medication.Adherence{}, errors.Validation("days", fmt.Sprintf("must be between 1 and %d", MaxAdherenceDays))
	}
	now := s.now()
	doses, err := s.store.ListDoses(ctx, userID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return medication.Adherence{}, errors.Internal("list doses", err)
	}
	meds, err := s.store.ListMedications(ctx, userID)
	if err != nil {
		return medication.Adherence{}, errors.Internal("list medications", err)
	}
	return Compute(days, meds, doses), nil
}

// Compute aggregates doses per medication, ordered like meds.
func Compute(days int, meds []medication.Medication, doses []medication.Dose) medication.Adherence {
	report := medication.Adherence{Days: days, PerMedication: []medication.MedicationAdherence{}}
	per := make(map[string]*medication.MedicationAdherence, len(meds))
	order := make([]string, 0, len(meds))
	for _, m := range meds {
		per[m.ID] = &medication.MedicationAdherence{MedicationID: m.ID, Name: m.Name}
		order = append(order, m.ID)
	}
	for _, d := range doses {
		entry, ok := per[d.MedicationID]
		if !ok {
			continue
		}
		if d.Status == medication.DoseTaken {
			entry.Taken++
			report.Taken++
		} else {
			entry.Skipped++
			report.Skipped++
		}
	}
	for _, id := range order {
		entry := per[id]
		if entry.Taken+entry.Skipped == 0 {
			continue
		}
		entry.Percent = ratio(entry.Taken, entry.Skipped)
		report.PerMedication = append(report.PerMedication, *entry)
	}
	report.Percent = ratio(report.Taken, report.Skipped)
	return report
}

func ratio(taken, skipped int) float64 {
	if taken+skipped == 0 {
		return 0
	}
	return math.Round(float64(taken)/float64(taken+skipped)*1000) / 10
}

func apply(med *medication.Medication, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return errors.Validation("name", "is required")
	}
	if len(name) > maxNameLen {
		return errors.Validation("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	freq := strings.ToLower(strings.TrimSpace(in.Frequency))
	if freq == "" {
		freq = medication.FrequencyDaily
	}
	if !validFrequency(freq) {
		return errors.Validation("frequency", "must be one of daily, twice_daily, three_times_daily, weekly, as_needed")
	}
	times, err := NormalizeTimes(in.Times)
	if err != nil {
		return err
	}
	var start, end *time.Time
	if in.StartDate != nil {
		d := day(*in.StartDate)
		start = &d
	}
	if in.EndDate != nil {
		d := day(*in.EndDate)
		end = &d
	}
	if start != nil && end != nil && end.Before(*start) {
		return errors.Validation("end_date", "must not be before start_date")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLen {
		return errors.Validation("notes", fmt.Sprintf("must be at most %d characters", maxNotesLen))
	}

	med.Name = name
	med.Dosage = strings.TrimSpace(in.Dosage)
	med.Frequency = freq
	med.Times = times
	med.StartDate = start
	med.EndDate = end
	med.Notes = notes
	if in.Active != nil {
		med.Active = *in.Active
	}
	return nil
}

// NormalizeTimes parses "H:MM" or "HH:MM" values and returns them as sorted,
// unique "HH:MM" strings.
func NormalizeTimes(raw []string) ([]string, error) {
	if len(raw) > maxTimes {
		return nil, errors.Validation("times", fmt.Sprintf("at most %d times allowed", maxTimes))
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		t, err := time.Parse(timeLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, errors.InvalidFormat("times", "HH:MM")
		}
		key := t.Format(timeLayout)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func validFrequency(f string) bool {
	switch f {
	case medication.FrequencyDaily, medication.FrequencyTwiceDaily, medication.FrequencyThreeTimesDaily,
		medication.FrequencyWeekly, medication.FrequencyAsNeeded:
		return true
	}
	return false
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
