// Package auth registers users, issues session-backed JWTs and validates them.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/VitalSync/health_layer/internal/app/domain/account"
	"github.com/VitalSync/health_layer/internal/app/metrics"
	"github.com/VitalSync/health_layer/internal/app/storage"
	"github.com/VitalSync/health_layer/internal/config"
	"github.com/VitalSync/health_layer/internal/errors"
	"github.com/VitalSync/health_layer/internal/logging"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
	// maxPasswordBytes is bcrypt's input limit.
	maxPasswordBytes = 72
)

var errInvalidCredentials = errors.Unauthorized("invalid email or password")

// Result is returned by Register and Login.
type Result struct {
	User      account.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Service manages accounts and sessions.
type Service struct {
	users    storage.AccountStore
	sessions storage.SessionStore
	cfg      config.AuthConfig
	secret   []byte
	log      *logging.Logger

	now        func() time.Time
	bcryptCost int
	compare    func(hash, password []byte) error

	dummyOnce sync.Once
	dummy     []byte
}

// New constructs an auth service. The secret must be at least 32 bytes.
func New(users storage.AccountStore, sessions storage.SessionStore, cfg config.AuthConfig, log *logging.Logger) (*Service, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("auth: jwt secret must be at least 32 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "vitalsync"
	}
	if log == nil {
		log = logging.NewDefault("auth")
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		cfg:        cfg,
		secret:     []byte(cfg.JWTSecret),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		bcryptCost: bcrypt.DefaultCost,
		compare:    bcrypt.CompareHashAndPassword,
	}, nil
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, email, password, name string) (Result, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := validateEmail(email); err != nil {
		return Result{}, err
	}
	if err := validatePassword("password", password); err != nil {
		return Result{}, err
	}
	if name == "" {
		return Result{}, errors.Validation("name", "is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Result{}, errors.Internal("hash password", err)
	}

	role := account.RoleUser
	if s.cfg.IsAdminEmail(email) {
		role = account.RoleAdmin
	}

	user, err := s.users.CreateUser(ctx, account.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
	})
	if stderrors.Is(err, storage.ErrDuplicate) {
		metrics.RecordAuthEvent("register", false)
		return Result{}, errors.Conflict("email already registered")
	}
	if err != nil {
		return Result{}, errors.Internal("create user", err)
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordAuthEvent("register", true)
	s.log.WithField("user_id", user.ID).WithField("role", user.Role).Info("user registered")
	return result, nil
}

// Login verifies credentials. Unknown emails and wrong passwords fail alike.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if stderrors.Is(err, storage.ErrNotFound) {
		_ = s.compare(s.dummyHash(), []byte(password))
		s.failLogin(ctx, "unknown_email")
		return Result{}, errInvalidCredentials
	}
	if err != nil {
		return Result{}, errors.Internal("load user", err)
	}
	if s.compare([]byte(user.PasswordHash), []byte(password)) != nil {
		s.failLogin(ctx, "wrong_password")
		return Result{}, errInvalidCredentials
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordAuthEvent("login", true)
	return result, nil
}

// dummyHash stands in for the password hash of an unknown email so that login
// failures cost one bcrypt comparison either way.
func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.bcryptCost)
	})
	return s.dummy
}

func (s *Service) failLogin(ctx context.Context, reason string) {
	metrics.RecordAuthEvent("login", false)
	s.log.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"reason": reason})
}

// Logout deletes the session behind token. Unknown sessions are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.sessions.DeleteSession(ctx, HashToken(token))
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return errors.Internal("delete session", err)
	}
	metrics.RecordAuthEvent("logout", true)
	return nil
}

// ValidateToken checks signature, algorithm, issuer and expiry, then requires
// a live session for the token.
func (s *Service) ValidateToken(ctx context.Context, token string) (*account.Claims, error) {
	claims := &account.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		metrics.RecordAuthEvent("validate", false)
		return nil, errors.InvalidToken(err)
	}

	sess, err := s.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if stderrors.Is(err, storage.ErrNotFound) {
		metrics.RecordAuthEvent("validate", false)
		return nil, errors.InvalidToken(nil).WithDetails("reason", "session revoked")
	}
	if err != nil {
		return nil, errors.Internal("load session", err)
	}
	now := s.now()
	if !sess.ExpiresAt.After(now) || sess.UserID != claims.UserID {
		metrics.RecordAuthEvent("validate", false)
		return nil, errors.InvalidToken(nil).WithDetails("reason", "session expired")
	}
	if err := s.sessions.TouchSession(ctx, sess.ID, now); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("touch session")
	}
	return claims, nil
}

// Me returns the user behind userID.
func (s *Service) Me(ctx context.Context, userID string) (account.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if stderrors.Is(err, storage.ErrNotFound) {
		return account.User{}, errors.NotFound("user", userID)
	}
	if err != nil {
		return account.User{}, errors.Internal("load user", err)
	}
	return user, nil
}

// ChangePassword replaces the password and revokes every other session of the
// user. currentToken identifies the session that stays signed in.
func (s *Service) ChangePassword(ctx context.Context, userID, currentToken, current, next string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if s.compare([]byte(user.PasswordHash), []byte(current)) != nil {
		s.log.LogSecurityEvent(ctx, "password_change_failed", map[string]interface{}{"user_id": userID})
		return errors.Unauthorized("current password is incorrect")
	}
	if err := validatePassword("new_password", next); err != nil {
		return err
	}
	if current == next {
		return errors.Validation("new_password", "must differ from the current password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return errors.Internal("hash password", err)
	}
	user.PasswordHash = string(hash)
	if _, err := s.users.UpdateUser(ctx, user); err != nil {
		return errors.Internal("update user", err)
	}

	revoked, err := s.sessions.DeleteUserSessions(ctx, userID, HashToken(currentToken))
	if err != nil {
		return errors.Internal("revoke sessions", err)
	}
	s.log.WithContext(ctx).WithField("revoked_sessions", revoked).Info("password changed")
	return nil
}

// PurgeExpiredSessions removes sessions that expired before now.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) issue(ctx context.Context, user account.User) (Result, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := &account.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Result{}, errors.Internal("sign token", err)
	}

	if _, err := s.sessions.CreateSession(ctx, account.Session{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
	}); err != nil {
		return Result{}, errors.Internal("create session", err)
	}
	return Result{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// HashToken returns the hex sha256 of a token, the form sessions are stored in.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if email == "" || at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return errors.Validation("email", "must be a valid email address")
	}
	return nil
}

func validatePassword(field, password string) error {
	if len(password) < MinPasswordLength {
		return errors.Validation(field, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return errors.Validation(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
