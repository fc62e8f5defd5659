package profiles

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/errors"
)

const (
	maxNameLen    = 100
	maxConditions = 30
	maxCareTeam   = 20
)

// NormalizePersonal trims and validates the personal details step.
func NormalizePersonal(in profile.Personal, now time.Time) (profile.Personal, error) {
	out := profile.Personal{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Gender:       strings.ToLower(strings.TrimSpace(in.Gender)),
		HeightCM:     in.HeightCM,
		WeightKG:     in.WeightKG,
		DiabetesType: strings.TrimSpace(in.DiabetesType),
	}
	if len(out.FirstName) > maxNameLen || len(out.LastName) > maxNameLen {
		return profile.Personal{}, errors.Validation("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	if !genders[out.Gender] {
		return profile.Personal{}, errors.Validation("gender", "must be one of female, male, non_binary, other, prefer_not_to_say")
	}
	if out.HeightCM != 0 && (out.HeightCM < 50 || out.HeightCM > 272) {
		return profile.Personal{}, errors.Validation("height_cm", "must be between 50 and 272")
	}
	if out.WeightKG != 0 && (out.WeightKG < 2 || out.WeightKG > 650) {
		return profile.Personal{}, errors.Validation("weight_kg", "must be between 2 and 650")
	}
	if in.DateOfBirth != nil {
		dob := in.DateOfBirth.UTC()
		dob = time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
		if dob.After(now) {
			return profile.Personal{}, errors.Validation("date_of_birth", "must not be in the future")
		}
		out.DateOfBirth = &dob
	}
	if len(in.Conditions) > maxConditions {
		return profile.Personal{}, errors.Validation("conditions", fmt.Sprintf("at most %d conditions allowed", maxConditions))
	}
	seen := make(map[string]bool, len(in.Conditions))
	for _, c := range in.Conditions {
		c = strings.TrimSpace(c)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		if len(c) > maxNameLen {
			return profile.Personal{}, errors.Validation("conditions", fmt.Sprintf("entries must be at most %d characters", maxNameLen))
		}
		seen[strings.ToLower(c)] = true
		out.Conditions = append(out.Conditions, c)
	}
	return out, nil
}

// NormalizeWidgets keeps the first occurrence of each known widget in order.
func NormalizeWidgets(widgets []string) ([]string, error) {
	known := make(map[string]bool, len(profile.KnownWidgets))
	for _, w := range profile.KnownWidgets {
		known[w] = true
	}
	out := make([]string, 0, len(widgets))
	seen := make(map[string]bool, len(widgets))
	for _, w := range widgets {
		w = strings.TrimSpace(w)
		if !known[w] {
			return nil, errors.Validation("widgets", fmt.Sprintf("unknown widget %q", w)).
				WithDetails("allowed", profile.KnownWidgets)
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out, nil
}

func normalizeProvider(in profile.Provider) (profile.Provider, error) {
	out := profile.Provider{
		ID:        strings.TrimSpace(in.ID),
		Name:      strings.TrimSpace(in.Name),
		Specialty: strings.TrimSpace(in.Specialty),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Primary:   in.Primary,
	}
	if out.Name == "" {
		return profile.Provider{}, errors.Validation("name", "provider name is required")
	}
	if len(out.Name) > maxNameLen || len(out.Specialty) > maxNameLen {
		return profile.Provider{}, errors.Validation("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}
	if out.Email != "" && !strings.Contains(out.Email, "@") {
		return profile.Provider{}, errors.Validation("email", "must be a valid email address")
	}
	return out, nil
}

// normalizeCareTeam validates the quiz's care team step and assigns ids.
// When several providers are marked primary only the first keeps the flag.
func normalizeCareTeam(in []profile.Provider) ([]profile.Provider, error) {
	if len(in) > maxCareTeam {
		return nil, errors.Validation("care_team", fmt.Sprintf("at most %d providers allowed", maxCareTeam))
	}
	out := make([]profile.Provider, 0, len(in))
	primary := false
	for i, p := range in {
		normalized, err := normalizeProvider(p)
		if err != nil {
			if se := errors.GetServiceError(err); se != nil {
				return nil, se.WithDetails("index", i)
			}
			return nil, err
		}
		if normalized.ID == "" {
			normalized.ID = uuid.NewString()
		}
		if normalized.Primary {
			if primary {
				normalized.Primary = false
			}
			primary = true
		}
		out = append(out, normalized)
	}
	return out, nil
}
