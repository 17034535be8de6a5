// Package session holds the signed-in principal in client-local storage.
package session

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CurrentKey is the storage key of the signed-in principal. Absence means signed out.
const CurrentKey = "trainhub_current_v1"

// ErrMissingEmail indicates an attempt to sign in without an identity.
var ErrMissingEmail = errors.New("session: principal email required")

// Principal is the signed-in identity plus the bearer token the server issued for it.
type Principal struct {
	Name      string    `yaml:"name" json:"name"`
	Email     string    `yaml:"email" json:"email"`
	Token     string    `yaml:"token,omitempty" json:"-"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty" json:"-"`
}

// Session reads and writes the current principal.
type Session struct {
	storage Storage
	clock   func() time.Time
	logger  *zap.Logger
}

// Config configures a Session.
type Config struct {
	Storage Storage
	Clock   func() time.Time
	Logger  *zap.Logger
}

// New constructs a Session. A nil storage keeps the principal in memory.
func New(cfg Config) *Session {
	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{storage: storage, clock: clock, logger: logger}
}

// Current returns the signed-in principal. Unreadable storage and expired sessions read as signed out.
func (s *Session) Current() (Principal, bool) {
	principal, ok, err := s.storage.Load(CurrentKey)
	if err != nil {
		s.logger.Warn("session unreadable", zap.Error(err))
		return Principal{}, false
	}
	if !ok || principal.Email == "" {
		return Principal{}, false
	}
	if !principal.ExpiresAt.IsZero() && !s.clock().Before(principal.ExpiresAt) {
		s.logger.Info("session expired", zap.String("email", principal.Email))
		return Principal{}, false
	}
	return principal, true
}

// SignIn persists principal as the current one.
func (s *Session) SignIn(principal Principal) error {
	principal.Email = strings.ToLower(strings.TrimSpace(principal.Email))
	if principal.Email == "" {
		return ErrMissingEmail
	}
	principal.Name = strings.TrimSpace(principal.Name)
	return s.storage.Store(CurrentKey, principal)
}

// SignOut forgets the current principal.
func (s *Session) SignOut() error {
	return s.storage.Delete(CurrentKey)
}

// Token returns the bearer token of the current principal, or "".
func (s *Session) Token() string {
	principal, ok := s.Current()
	if !ok {
		return ""
	}
	return principal.Token
}
