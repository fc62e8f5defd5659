// Package profiles persists the onboarding quiz: personal details, care team,
// dashboard layout, quiz progress and the avatar.
package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/app/metrics"
	fitnesssvc "github.com/VitalSync/health_layer/internal/app/services/fitness"
	"github.com/VitalSync/health_layer/internal/app/services/medications"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/blob"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

// DefaultMaxAvatarBytes bounds avatar uploads when no limit is configured.
const DefaultMaxAvatarBytes = 5 << 20

// AvatarTypes are the accepted avatar content types.
var AvatarTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

var genders = map[string]bool{
	"": true, "female": true, "male": true, "non_binary": true, "other": true, "prefer_not_to_say": true,
}

// GoalSetter saves fitness goals.
type GoalSetter interface {
	SetGoals(ctx context.Context, userID string, goals fitness.Goals) (fitness.Goals, error)
}

// MedicationManager creates and lists medications.
type MedicationManager interface {
	Create(ctx context.Context, userID string, in medications.Input) (medication.Medication, error)
	List(ctx context.Context, userID string, activeOnly bool) ([]medication.Medication, error)
}

// Submission is the final submit of the onboarding quiz. Nil sections are left
// unchanged.
type Submission struct {
	Personal    *profile.Personal   `json:"personal,omitempty"`
	Goals       *fitness.Goals      `json:"goals,omitempty"`
	CareTeam    []profile.Provider  `json:"care_team,omitempty"`
	Medications []medications.Input `json:"medications,omitempty"`
	Dashboard   *profile.Dashboard  `json:"dashboard,omitempty"`
}

type Service struct {
	store          storage.ProfileStore
	goals          GoalSetter
	meds           MedicationManager
	blobs          blob.Store
	maxAvatarBytes int64
	log            *logging.Logger
	now            func() time.Time
}

// New constructs the service. blobs may be nil, which disables avatar upload.
func New(store storage.ProfileStore, goals GoalSetter, meds MedicationManager, blobs blob.Store, maxAvatarBytes int64, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("profile")
	}
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = DefaultMaxAvatarBytes
	}
	return &Service{
		store:          store,
		goals:          goals,
		meds:           meds,
		blobs:          blobs,
		maxAvatarBytes: maxAvatarBytes,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Default is the profile of a user who never started the quiz.
func Default(userID string) profile.Profile {
	return profile.Profile{
		UserID:    userID,
		CareTeam:  []profile.Provider{},
		Dashboard: profile.Dashboard{Widgets: append([]string(nil), profile.DefaultWidgets...)},
	}
}

// Get returns the stored profile or Default.
func (s *Service) Get(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return Default(userID), nil
	}
	if err != nil {
		return profile.Profile{}, errors.Internal("load profile", err)
	}
	if p.CareTeam == nil {
		p.CareTeam = []profile.Provider{}
	}
	return p, nil
}

// SubmitOnboarding validates every section before writing any of them, then
// stores the profile, goals and new medications and completes the quiz.
// Medications whose name the user already has are skipped.
func (s *Service) SubmitOnboarding(ctx context.Context, userID string, sub Submission) (profile.Profile, error) {
	var personal profile.Personal
	if sub.Personal != nil {
		var err error
		if personal, err = NormalizePersonal(*sub.Personal, s.now()); err != nil {
			return profile.Profile{}, err
		}
	}
	if sub.Goals != nil {
		if err := fitnesssvc.ValidateGoals(*sub.Goals); err != nil {
			return profile.Profile{}, err
		}
	}
	team, err := normalizeCareTeam(sub.CareTeam)
	if err != nil {
		return profile.Profile{}, err
	}
	for i, in := range sub.Medications {
		if err := medications.Validate(in); err != nil {
			if se := errors.GetServiceError(err); se != nil {
				return profile.Profile{}, se.WithDetails("index", i)
			}
			return profile.Profile{}, err
		}
	}
	var widgets []string
	if sub.Dashboard != nil {
		if widgets, err = NormalizeWidgets(sub.Dashboard.Widgets); err != nil {
			return profile.Profile{}, err
		}
	}

	saved, err := s.mutate(ctx, userID, func(p *profile.Profile) error {
		if sub.Personal != nil {
			p.Personal = personal
		}
		if sub.CareTeam != nil {
			p.CareTeam = team
		}
		if sub.Dashboard != nil {
			p.Dashboard.Widgets = widgets
		}
		p.Onboarding = profile.Onboarding{Step: profile.MaxOnboardingStep, Completed: true, UpdatedAt: s.now()}
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}

	if sub.Goals != nil && s.goals != nil {
		if _, err := s.goals.SetGoals(ctx, userID, *sub.Goals); err != nil {
			return profile.Profile{}, err
		}
	}
	if len(sub.Medications) > 0 && s.meds != nil {
		if err := s.addMedications(ctx, userID, sub.Medications); err != nil {
			return profile.Profile{}, err
		}
	}

	s.log.WithContext(ctx).
		WithField("care_team", len(saved.CareTeam)).
		WithField("medications", len(sub.Medications)).
		Info("onboarding completed")
	return saved, nil
}

func (s *Service) addMedications(ctx context.Context, userID string, inputs []medications.Input) error {
	existing, err := s.meds.List(ctx, userID, false)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, m := range existing {
		have[strings.ToLower(m.Name)] = true
	}
	for _, in := range inputs {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if have[key] {
			continue
		}
		if _, err := s.meds.Create(ctx, userID, in); err != nil {
			return err
		}
		have[key] = true
	}
	return nil
}

// SaveProgress stores the quiz step and the client's draft for it.
func (s *Service) SaveProgress(ctx context.Context, userID string, step int, draft json.RawMessage) (profile.Onboarding, error) {
	if step < 0 || step > profile.MaxOnboardingStep {
		return profile.Onboarding{}, errors.Validation("step", fmt.Sprintf("must be between 0 and %d", profile.MaxOnboardingStep))
	}
	draft = bytes.TrimSpace(draft)
	if len(draft) > profile.MaxDraftBytes {
		return profile.Onboarding{}, errors.PayloadTooLarge(profile.MaxDraftBytes)
	}
	if len(draft) > 0 && !json.Valid(draft) {
		return profile.Onboarding{}, errors.InvalidFormat("draft", "JSON")
	}
	if bytes.Equal(draft, []byte("null")) {
		draft = nil
	}

	saved, err := s.mutate(ctx, userID, func(p *profile.Profile) error {
		p.Onboarding.Step = step
		p.Onboarding.Draft = append(json.RawMessage(nil), draft...)
		if len(draft) == 0 {
			p.Onboarding.Draft = nil
		}
		p.Onboarding.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return profile.Onboarding{}, err
	}
	return saved.Onboarding, nil
}

func (s *Service) UpdatePersonal(ctx context.Context, userID string, personal profile.Personal) (profile.Profile, error) {
	normalized, err := NormalizePersonal(personal, s.now())
	if err != nil {
		return profile.Profile{}, err
	}
	return s.mutate(ctx, userID, func(p *profile.Profile) error {
		p.Personal = normalized
		return nil
	})
}

// UpdateDashboard replaces the widget layout.
func (s *Service) UpdateDashboard(ctx context.Context, userID string, widgets []string) (profile.Profile, error) {
	normalized, err := NormalizeWidgets(widgets)
	if err != nil {
		return profile.Profile{}, err
	}
	return s.mutate(ctx, userID, func(p *profile.Profile) error {
		p.Dashboard.Widgets = normalized
		return nil
	})
}

func (s *Service) ListProviders(ctx context.Context, userID string) ([]profile.Provider, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.CareTeam, nil
}

// AddProvider appends a provider. A primary provider demotes the current one.
func (s *Service) AddProvider(ctx context.Context, userID string, provider profile.Provider) (profile.Provider, error) {
	normalized, err := normalizeProvider(provider)
	if err != nil {
		return profile.Provider{}, err
	}
	normalized.ID = uuid.NewString()
	_, err = s.mutate(ctx, userID, func(p *profile.Profile) error {
		if len(p.CareTeam) >= maxCareTeam {
			return errors.Validation("care_team", fmt.Sprintf("at most %d providers allowed", maxCareTeam))
		}
		if normalized.Primary {
			for i := range p.CareTeam {
				p.CareTeam[i].Primary = false
			}
		}
		p.CareTeam = append(p.CareTeam, normalized)
		return nil
	})
	if err != nil {
		return profile.Provider{}, err
	}
	return normalized, nil
}

func (s *Service) RemoveProvider(ctx context.Context, userID, providerID string) error {
	_, err := s.mutate(ctx, userID, func(p *profile.Profile) error {
		for i, existing := range p.CareTeam {
			if existing.ID == providerID {
				p.CareTeam = append(p.CareTeam[:i], p.CareTeam[i+1:]...)
				return nil
			}
		}
		return errors.NotFound("provider", providerID)
	})
	return err
}

// UploadAvatar stores an image and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, body io.Reader) (profile.Profile, error) {
	if s.blobs == nil {
		return profile.Profile{}, errors.Unavailable("avatar upload is not configured")
	}
	backend := s.blobs.Backend()
	upload, err := blob.ReadLimited(body, s.maxAvatarBytes)
	if stderrors.Is(err, blob.ErrTooLarge) {
		metrics.RecordUpload(backend, false)
		return profile.Profile{}, errors.PayloadTooLarge(s.maxAvatarBytes)
	}
	if err != nil {
		metrics.RecordUpload(backend, false)
		return profile.Profile{}, errors.BadRequest("could not read upload")
	}
	if len(upload.Data) == 0 {
		metrics.RecordUpload(backend, false)
		return profile.Profile{}, errors.Validation("avatar", "file is empty")
	}
	if !blob.IsAllowed(upload.MIME, AvatarTypes...) {
		metrics.RecordUpload(backend, false)
		return profile.Profile{}, errors.UnsupportedMedia(upload.MIME)
	}

	key := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), upload.Extension)
	url, err := s.blobs.Put(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), upload.MIME)
	if err != nil {
		metrics.RecordUpload(backend, false)
		return profile.Profile{}, errors.Internal("store avatar", err)
	}
	metrics.RecordUpload(backend, true)

	p, err := s.mutate(ctx, userID, func(p *profile.Profile) error {
		p.AvatarURL = url
		return nil
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.WithContext(ctx).WithError(delErr).Warn("remove orphaned avatar")
		}
		return profile.Profile{}, err
	}
	return p, nil
}

// mutate applies fn to the stored profile, or to Default when there is none,
// while the store holds the profile for this user.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*profile.Profile) error) (profile.Profile, error) {
	var fnErr error
	saved, err := s.store.UpdateProfile(ctx, userID, func(p *profile.Profile, found bool) error {
		if !found {
			*p = Default(userID)
		}
		if p.CareTeam == nil {
			p.CareTeam = []profile.Provider{}
		}
		fnErr = fn(p)
		return fnErr
	})
	if fnErr != nil {
		return profile.Profile{}, fnErr
	}
	if err != nil {
		return profile.Profile{}, errors.Internal("save profile", err)
	}
	return saved, nil
}
