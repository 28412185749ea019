package exchange

import (
	"context"
	"log/slog"
	"sync"
	"time"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// DefaultRefreshMargin is the remaining lifetime below which a token is
// refreshed before use
const DefaultRefreshMargin = 2 * time.Minute

// Manager owns the spreadsheet access token lifecycle independent of UI
// state. It is the only writer of the token besides the login flow.
type Manager struct {
	mu        sync.Mutex
	exchanger *Exchanger
	cred      *ServiceCredential
	token     AccessToken
	margin    time.Duration
	now       func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithRefreshMargin sets the proactive refresh margin
func WithRefreshMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		m.margin = margin
	}
}

// WithManagerClock sets the time source (tests)
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new token manager
func NewManager(exchanger *Exchanger, options ...ManagerOption) *Manager {
	m := &Manager{
		exchanger: exchanger,
		margin:    DefaultRefreshMargin,
		now:       time.Now,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// SetServiceCredential installs the unwrapped service credential. The token
// it will be exchanged for always carries service-credential provenance.
func (m *Manager) SetServiceCredential(cred *ServiceCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.token = AccessToken{}
}

// HasServiceCredential reports whether a service credential is held in memory
func (m *Manager) HasServiceCredential() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred != nil
}

// Clear drops the in-memory credential and token. Called first during
// sign-out teardown, before any persisted state is touched.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.token = AccessToken{}
}

// Current returns the current token without refreshing
func (m *Manager) Current() AccessToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Token returns a token that is fresh for at least the refresh margin,
// re-exchanging synchronously when needed. The caller's request waits for
// the exchange rather than racing an expiring token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token.Token != "" && m.now().Add(m.margin).Before(m.token.ExpiresAt) {
		return m.token.Token, nil
	}

	// Identity-sourced tokens cannot be refreshed here; the provider
	// refreshes them and pushes the result through ApplyIdentityToken.
	if m.token.Provenance == ProvenanceIdentity && m.token.Token != "" {
		return m.token.Token, nil
	}

	if m.cred == nil {
		return "", clinicerr.Unauthorized("no token and no service credential")
	}

	token, err := m.exchanger.Exchange(ctx, m.cred)
	if err != nil {
		return "", err
	}
	m.token = token
	slog.Info("Exchanged service credential for access token", "expires_at", token.ExpiresAt)
	return token.Token, nil
}

// HandleUnauthorized performs exactly one reactive re-exchange after a 401.
// When no service credential is held the caller receives Unauthorized and
// decides the recovery path; this layer never forces a sign-out.
func (m *Manager) HandleUnauthorized(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return "", clinicerr.Unauthorized("access token rejected and no service credential to re-exchange")
	}

	token, err := m.exchanger.Exchange(ctx, m.cred)
	if err != nil {
		// A failing reactive exchange propagates as Unauthorized, not as a
		// retry loop
		return "", clinicerr.Wrap(err, clinicerr.ErrCodeUnauthorized, "re-exchange after 401 failed")
	}
	m.token = token
	return token.Token, nil
}

// ApplyIdentityToken installs an identity-sourced token (admin path). It is
// refused while a service credential is held: a staff session's token
// provenance is the credential exchange and never an identity refresh.
// Returns whether the token was applied.
func (m *Manager) ApplyIdentityToken(token string, expiresAt time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred != nil || m.token.Provenance == ProvenanceServiceCredential {
		slog.Info("Ignored identity token push for service-credential session")
		return false
	}

	m.token = AccessToken{
		Token:      token,
		ExpiresAt:  expiresAt,
		Provenance: ProvenanceIdentity,
	}
	return true
}
