package client

import (
	"context"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/trainhub/internal/session"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"go.uber.org/zap"
)

// Auth signs principals in and out. Input is validated before any request is sent.
type Auth struct {
	api     *API
	session *session.Session
	clock   func() time.Time
	logger  *zap.Logger
}

// NewAuth constructs an Auth.
func NewAuth(api *API, current *session.Session, logger *zap.Logger) *Auth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auth{api: api, session: current, clock: time.Now, logger: logger}
}

// Signup creates an account and signs it in.
func (a *Auth) Signup(ctx context.Context, name, email, password string) (session.Principal, error) {
	name = strings.TrimSpace(name)
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateSignup(name, email, password); err != nil {
		return session.Principal{}, err
	}
	grant, err := a.api.Signup(ctx, name, email, password)
	if err != nil {
		return session.Principal{}, err
	}
	return a.adopt(grant)
}

// Login signs an existing account in.
func (a *Auth) Login(ctx context.Context, email, password string) (session.Principal, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateLogin(email, password); err != nil {
		return session.Principal{}, err
	}
	grant, err := a.api.Login(ctx, email, password)
	if err != nil {
		return session.Principal{}, err
	}
	return a.adopt(grant)
}

// Logout clears the persisted principal.
func (a *Auth) Logout() error {
	return a.session.SignOut()
}

// Current returns the signed-in principal.
func (a *Auth) Current() (session.Principal, bool) {
	return a.session.Current()
}

func (a *Auth) adopt(grant Grant) (session.Principal, error) {
	principal := session.Principal{
		Name:  grant.User.Name,
		Email: grant.User.Email,
		Token: grant.Token,
	}
	if grant.ExpiresIn > 0 {
		principal.ExpiresAt = a.clock().Add(time.Duration(grant.ExpiresIn) * time.Second).UTC()
	}
	if err := a.session.SignIn(principal); err != nil {
		return session.Principal{}, err
	}
	a.logger.Debug("signed in", zap.String("email", principal.Email))
	return principal, nil
}
