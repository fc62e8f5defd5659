package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/domain/appointment"
	"github.com/VitalSync/health_layer/internal/app/domain/challenge"
	"github.com/VitalSync/health_layer/internal/app/domain/fitness"
	"github.com/VitalSync/health_layer/internal/app/domain/glucose"
	"github.com/VitalSync/health_layer/internal/app/domain/medication"
	"github.com/VitalSync/health_layer/internal/app/domain/notification"
	"github.com/VitalSync/health_layer/internal/app/domain/profile"
	"github.com/VitalSync/health_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu            sync.RWMutex
	users         map[string]account.User
	usersByEmail  map[string]string
	sessions      map[string]account.Session // token hash -> session
	profiles      map[string]profile.Profile
	goals         map[string]fitness.Goals
	fitnessLogs   map[string]fitness.Log
	readings      map[string]glucose.Reading
	medications   map[string]medication.Medication
	doses         map[string]medication.Dose
	appointments  map[string]appointment.Appointment
	challenges    map[string]challenge.Challenge
	participants  map[string]map[string]challenge.Participant // challenge -> user -> participant
	notifications map[string]notification.Notification
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.FitnessStore = (*Store)(nil)
var _ storage.GlucoseStore = (*Store)(nil)
var _ storage.MedicationStore = (*Store)(nil)
var _ storage.AppointmentStore = (*Store)(nil)
var _ storage.ChallengeStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]account.User),
		usersByEmail:  make(map[string]string),
		sessions:      make(map[string]account.Session),
		profiles:      make(map[string]profile.Profile),
		goals:         make(map[string]fitness.Goals),
		fitnessLogs:   make(map[string]fitness.Log),
		readings:      make(map[string]glucose.Reading),
		medications:   make(map[string]medication.Medication),
		doses:         make(map[string]medication.Dose),
		appointments:  make(map[string]appointment.Appointment),
		challenges:    make(map[string]challenge.Challenge),
		participants:  make(map[string]map[string]challenge.Participant),
		notifications: make(map[string]notification.Notification),
	}
}

func newID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}

// AccountStore -----------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, user account.User) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return account.User{}, storage.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = newID()
	} else if _, exists := s.users[user.ID]; exists {
		return account.User{}, storage.ErrDuplicate
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	s.users[user.ID] = user
	s.usersByEmail[email] = user.ID
	return user, nil
}

func (s *Store) UpdateUser(_ context.Context, user account.User) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return account.User{}, storage.ErrNotFound
	}
	newEmail := strings.ToLower(user.Email)
	oldEmail := strings.ToLower(existing.Email)
	if newEmail != oldEmail {
		if _, taken := s.usersByEmail[newEmail]; taken {
			return account.User{}, storage.ErrDuplicate
		}
		delete(s.usersByEmail, oldEmail)
		s.usersByEmail[newEmail] = user.ID
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now()
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(_ context.Context, id string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return account.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return account.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

// SessionStore -----------------------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess account.Session) (account.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.TokenHash]; exists {
		return account.Session{}, storage.ErrDuplicate
	}
	if sess.ID == "" {
		sess.ID = newID()
	}
	ts := now()
	sess.CreatedAt = ts
	sess.LastSeenAt = ts
	s.sessions[sess.TokenHash] = sess
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (account.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return account.Session{}, storage.ErrNotFound
	}
	return sess, nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, sess := range s.sessions {
		if sess.ID == id {
			sess.LastSeenAt = at
			s.sessions[hash] = sess
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID, keepTokenHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, sess := range s.sessions {
		if sess.UserID == userID && hash != keepTokenHash {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

// ProfileStore -----------------------------------------------------------------

func (s *Store) GetProfile(_ context.Context, userID string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, fn func(*profile.Profile, bool) error) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.profiles[userID]
	p := profile.Profile{UserID: userID}
	if found {
		p = cloneProfile(existing)
	}
	if err := fn(&p, found); err != nil {
		return profile.Profile{}, err
	}
	p.UserID = userID
	ts := now()
	p.CreatedAt = ts
	if found {
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = ts
	s.profiles[userID] = cloneProfile(p)
	return p, nil
}

// FitnessStore -----------------------------------------------------------------

func (s *Store) GetGoals(_ context.Context, userID string) (fitness.Goals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[userID]
	if !ok {
		return fitness.Goals{}, storage.ErrNotFound
	}
	return g, nil
}

func (s *Store) UpsertGoals(_ context.Context, goals fitness.Goals) (fitness.Goals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals.UpdatedAt = now()
	s.goals[goals.UserID] = goals
	return goals, nil
}

func (s *Store) CreateFitnessLog(_ context.Context, log fitness.Log) (fitness.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == "" {
		log.ID = newID()
	} else if _, exists := s.fitnessLogs[log.ID]; exists {
		return fitness.Log{}, storage.ErrDuplicate
	}
	log.CreatedAt = now()
	s.fitnessLogs[log.ID] = log
	return log, nil
}

func (s *Store) GetFitnessLog(_ context.Context, id string) (fitness.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.fitnessLogs[id]
	if !ok {
		return fitness.Log{}, storage.ErrNotFound
	}
	return log, nil
}

func (s *Store) ListFitnessLogs(_ context.Context, userID string, from, to time.Time) ([]fitness.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]fitness.Log, 0)
	for _, log := range s.fitnessLogs {
		if log.UserID != userID || log.Date.Before(from) || log.Date.After(to) {
			continue
		}
		result = append(result, log)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteFitnessLog(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fitnessLogs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.fitnessLogs, id)
	return nil
}

// GlucoseStore -----------------------------------------------------------------

func (s *Store) CreateReading(_ context.Context, r glucose.Reading) (glucose.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = now()
	s.readings[r.ID] = r
	return r, nil
}

func (s *Store) GetReading(_ context.Context, id string) (glucose.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[id]
	if !ok {
		return glucose.Reading{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListReadings(_ context.Context, userID string, from, to time.Time) ([]glucose.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]glucose.Reading, 0)
	for _, r := range s.readings {
		if r.UserID != userID || r.MeasuredAt.Before(from) || r.MeasuredAt.After(to) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MeasuredAt.After(result[j].MeasuredAt)
	})
	return result, nil
}

func (s *Store) DeleteReading(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.readings[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.readings, id)
	return nil
}

// MedicationStore --------------------------------------------------------------

func (s *Store) CreateMedication(_ context.Context, med medication.Medication) (medication.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if med.ID == "" {
		med.ID = newID()
	} else if _, exists := s.medications[med.ID]; exists {
		return medication.Medication{}, storage.ErrDuplicate
	}
	ts := now()
	med.CreatedAt = ts
	med.UpdatedAt = ts
	med.Times = append([]string(nil), med.Times...)
	s.medications[med.ID] = med
	return cloneMedication(med), nil
}

func (s *Store) UpdateMedication(_ context.Context, med medication.Medication) (medication.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.medications[med.ID]
	if !ok {
		return medication.Medication{}, storage.ErrNotFound
	}
	med.UserID = existing.UserID
	med.CreatedAt = existing.CreatedAt
	med.UpdatedAt = now()
	med.Times = append([]string(nil), med.Times...)
	s.medications[med.ID] = med
	return cloneMedication(med), nil
}

func (s *Store) GetMedication(_ context.Context, id string) (medication.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	med, ok := s.medications[id]
	if !ok {
		return medication.Medication{}, storage.ErrNotFound
	}
	return cloneMedication(med), nil
}

func (s *Store) ListMedications(_ context.Context, userID string) ([]medication.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]medication.Medication, 0)
	for _, med := range s.medications {
		if med.UserID == userID {
			result = append(result, cloneMedication(med))
		}
	}
	sortMedications(result)
	return result, nil
}

func (s *Store) ListActiveMedications(_ context.Context) ([]medication.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]medication.Medication, 0)
	for _, med := range s.medications {
		if med.Active {
			result = append(result, cloneMedication(med))
		}
	}
	sortMedications(result)
	return result, nil
}

func (s *Store) DeleteMedication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.medications[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.medications, id)
	for doseID, dose := range s.doses {
		if dose.MedicationID == id {
			delete(s.doses, doseID)
		}
	}
	return nil
}

func (s *Store) CreateDose(_ context.Context, dose medication.Dose) (medication.Dose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.medications[dose.MedicationID]; !ok {
		return medication.Dose{}, storage.ErrNotFound
	}
	if dose.ID == "" {
		dose.ID = newID()
	}
	dose.RecordedAt = now()
	s.doses[dose.ID] = dose
	return dose, nil
}

func (s *Store) ListDoses(_ context.Context, userID string, from, to time.Time) ([]medication.Dose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]medication.Dose, 0)
	for _, dose := range s.doses {
		if dose.UserID != userID || dose.ScheduledFor.Before(from) || dose.ScheduledFor.After(to) {
			continue
		}
		result = append(result, dose)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})
	return result, nil
}

// AppointmentStore -------------------------------------------------------------

func (s *Store) CreateAppointment(_ context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if appt.ID == "" {
		appt.ID = newID()
	} else if _, exists := s.appointments[appt.ID]; exists {
		return appointment.Appointment{}, storage.ErrDuplicate
	}
	if s.overlapsLocked(appt) {
		return appointment.Appointment{}, storage.ErrConflict
	}
	ts := now()
	appt.CreatedAt = ts
	appt.UpdatedAt = ts
	s.appointments[appt.ID] = appt
	return appt, nil
}

func (s *Store) UpdateAppointment(_ context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.appointments[appt.ID]
	if !ok {
		return appointment.Appointment{}, storage.ErrNotFound
	}
	appt.UserID = existing.UserID
	if s.overlapsLocked(appt) {
		return appointment.Appointment{}, storage.ErrConflict
	}
	appt.CreatedAt = existing.CreatedAt
	appt.UpdatedAt = now()
	s.appointments[appt.ID] = appt
	return appt, nil
}

// overlapsLocked reports whether a scheduled appt intersects another scheduled
// appointment of the same user. Callers hold s.mu.
func (s *Store) overlapsLocked(appt appointment.Appointment) bool {
	if appt.Status != appointment.StatusScheduled {
		return false
	}
	for _, other := range s.appointments {
		if other.ID == appt.ID || other.UserID != appt.UserID || other.Status != appointment.StatusScheduled {
			continue
		}
		if appt.Overlaps(other) {
			return true
		}
	}
	return false
}

func (s *Store) GetAppointment(_ context.Context, id string) (appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.appointments[id]
	if !ok {
		return appointment.Appointment{}, storage.ErrNotFound
	}
	return appt, nil
}

func (s *Store) ListAppointments(_ context.Context, userID string) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]appointment.Appointment, 0)
	for _, appt := range s.appointments {
		if appt.UserID == userID {
			result = append(result, appt)
		}
	}
	sortAppointments(result)
	return result, nil
}

func (s *Store) ListScheduledBetween(_ context.Context, from, to time.Time) ([]appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]appointment.Appointment, 0)
	for _, appt := range s.appointments {
		if appt.Status != appointment.StatusScheduled {
			continue
		}
		if appt.StartsAt.Before(from) || !appt.StartsAt.Before(to) {
			continue
		}
		result = append(result, appt)
	}
	sortAppointments(result)
	return result, nil
}

func (s *Store) DeleteAppointment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.appointments, id)
	return nil
}

// ChallengeStore ---------------------------------------------------------------

func (s *Store) CreateChallenge(_ context.Context, c challenge.Challenge) (challenge.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = newID()
	} else if _, exists := s.challenges[c.ID]; exists {
		return challenge.Challenge{}, storage.ErrDuplicate
	}
	c.CreatedAt = now()
	s.challenges[c.ID] = c
	return c, nil
}

func (s *Store) GetChallenge(_ context.Context, id string) (challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return challenge.Challenge{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListChallenges(_ context.Context) ([]challenge.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]challenge.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) AddParticipant(_ context.Context, p challenge.Participant) (challenge.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[p.ChallengeID]; !ok {
		return challenge.Participant{}, storage.ErrNotFound
	}
	members, ok := s.participants[p.ChallengeID]
	if !ok {
		members = make(map[string]challenge.Participant)
		s.participants[p.ChallengeID] = members
	}
	if _, exists := members[p.UserID]; exists {
		return challenge.Participant{}, storage.ErrDuplicate
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now()
	}
	members[p.UserID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, challengeID, userID string) (challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[challengeID][userID]
	if !ok {
		return challenge.Participant{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) AddProgress(_ context.Context, challengeID, userID string, amount, target int, at time.Time) (challenge.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[challengeID][userID]
	if !ok {
		return challenge.Participant{}, storage.ErrNotFound
	}
	p.Progress += amount
	if p.CompletedAt == nil && p.Progress >= target {
		completed := at
		p.CompletedAt = &completed
	}
	s.participants[challengeID][userID] = p
	return p, nil
}

func (s *Store) RemoveParticipant(_ context.Context, challengeID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[challengeID][userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.participants[challengeID], userID)
	return nil
}

func (s *Store) ListParticipants(_ context.Context, challengeID string) ([]challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.participants[challengeID]
	result := make([]challenge.Participant, 0, len(members))
	for _, p := range members {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (s *Store) ListMemberships(_ context.Context, userID string) ([]challenge.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]challenge.Participant, 0)
	for _, members := range s.participants {
		if p, ok := members[userID]; ok {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

// NotificationStore ------------------------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.DedupeKey != "" {
		for _, existing := range s.notifications {
			if existing.UserID == n.UserID && existing.DedupeKey == n.DedupeKey {
				return notification.Notification{}, storage.ErrDuplicate
			}
		}
	}
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, storage.ErrNotFound
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]notification.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkRead(_ context.Context, id string, at time.Time) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return notification.Notification{}, storage.ErrNotFound
	}
	if !n.Read {
		n.Read = true
		readAt := at
		n.ReadAt = &readAt
		s.notifications[id] = n
	}
	return n, nil
}

func (s *Store) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for id, n := range s.notifications {
		if n.UserID != userID || n.Read {
			continue
		}
		n.Read = true
		readAt := at
		n.ReadAt = &readAt
		s.notifications[id] = n
		updated++
	}
	return updated, nil
}

func (s *Store) DeleteNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

// helpers ----------------------------------------------------------------------

func cloneProfile(p profile.Profile) profile.Profile {
	p.Personal.Conditions = append([]string(nil), p.Personal.Conditions...)
	p.CareTeam = append([]profile.Provider(nil), p.CareTeam...)
	p.Dashboard.Widgets = append([]string(nil), p.Dashboard.Widgets...)
	if p.Onboarding.Draft != nil {
		p.Onboarding.Draft = append([]byte(nil), p.Onboarding.Draft...)
	}
	return p
}

func cloneMedication(med medication.Medication) medication.Medication {
	med.Times = append([]string(nil), med.Times...)
	return med
}

func sortMedications(meds []medication.Medication) {
	sort.Slice(meds, func(i, j int) bool {
		if meds[i].Name != meds[j].Name {
			return strings.ToLower(meds[i].Name) < strings.ToLower(meds[j].Name)
		}
		return meds[i].ID < meds[j].ID
	})
}

func sortAppointments(appts []appointment.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].StartsAt.Equal(appts[j].StartsAt) {
			return appts[i].StartsAt.Before(appts[j].StartsAt)
		}
		return appts[i].ID < appts[j].ID
	})
}
