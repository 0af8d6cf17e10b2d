// Package session owns the in-memory authentication state machine. A
// Manager is an explicitly constructed, injected object: one per gateway
// process, a fresh one per test.
package session

import (
	"sync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/credstore"
	"github.com/agriview/console-gateway/internal/domain"
)

// State is the current phase of the session machine.
type State int

const (
	// StateUnknown exists only between construction and Bootstrap.
	StateUnknown State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Manager guards the session state and the credential store behind one
// mutex; transitions are observable by all callers as soon as the call
// returns.
type Manager struct {
	mu    sync.Mutex
	store credstore.Store
	log   *zap.Logger

	state State
	user  *domain.CachedUser
	epoch string
}

// NewManager creates an unbootstrapped manager over the given store.
func NewManager(store credstore.Store, log *zap.Logger) *Manager {
	return &Manager{store: store, log: log, state: StateUnknown}
}

// Bootstrap performs the single startup read of the credential store. A
// present, unexpired credential with a matching user record restores the
// session; an expired or half-present credential clears the store and
// resolves to unauthenticated.
func (m *Manager) Bootstrap() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, hasToken := m.store.Token()
	user, hasUser := m.store.User()

	switch {
	case !hasToken && !hasUser:
		m.state = StateUnauthenticated
	case hasToken && hasUser && !m.store.IsExpired():
		m.state = StateAuthenticated
		m.user = user
		m.epoch = ulid.Make().String()
		m.log.Info("session restored",
			zap.String("user", user.UserName),
			zap.String("role", string(user.Role)))
	default:
		// Expired token, or an orphaned half of the credential pair.
		m.store.Clear()
		m.state = StateUnauthenticated
		if hasToken && token != "" {
			m.log.Info("stored credential expired, cleared")
		}
	}
	return m.state
}

// Login persists the credential pair and enters the authenticated state.
// From the caller's point of view it always succeeds; a persistence failure
// only costs restart durability and is logged. Navigation is the caller's
// business.
func (m *Manager) Login(user *domain.CachedUser, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.store.SetCredential(token, user) {
		m.log.Warn("credential persistence failed, session is memory-only",
			zap.String("user", user.UserName))
	}
	m.state = StateAuthenticated
	m.user = user
	m.epoch = ulid.Make().String()
	m.log.Info("session established",
		zap.String("user", user.UserName),
		zap.String("role", string(user.Role)))
}

// Logout clears the store and the in-memory state. Idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminate("logout")
}

// ForceExpire terminates the session after the transport observed a rejected
// credential. Same effect as Logout; kept separate so the trigger shows up
// in logs.
func (m *Manager) ForceExpire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminate("credential rejected upstream")
}

func (m *Manager) terminate(reason string) {
	wasAuthenticated := m.state == StateAuthenticated
	m.store.Clear()
	m.state = StateUnauthenticated
	m.user = nil
	m.epoch = ""
	if wasAuthenticated {
		m.log.Info("session terminated", zap.String("reason", reason))
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether Bootstrap has not completed yet.
func (m *Manager) Loading() bool {
	return m.State() == StateUnknown
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// CurrentUser returns the signed-in user, if any.
func (m *Manager) CurrentUser() (*domain.CachedUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return nil, false
	}
	return m.user, true
}

// Epoch identifies the current authenticated session. Empty when signed out.
// Work started under one epoch must be discarded if the epoch has moved on
// by the time it finishes.
func (m *Manager) Epoch() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}
