// Package session owns the client's bearer token and current identity: at
// most one live session per running client. Transitions are Unauthenticated →
// Validating → Authenticated, plus a cross-cutting drop back to
// Unauthenticated whenever any collaborator call reports an expired token.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"securevote/client/internal/api"
	identitydomain "securevote/client/internal/identity/domain"
)

// State is the session lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateValidating      State = "validating"
	StateAuthenticated   State = "authenticated"
)

// ExpiredMessage is shown when a persisted or live session turns out to be
// stale. Wording is fixed; screens display it verbatim.
const ExpiredMessage = "Session expired. Please login again."

// ErrExpired reports that the session is gone and the user must log in again.
var ErrExpired = errors.New("session expired")

// AuthAPI is the minimal auth service surface needed by the manager.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (*identitydomain.Identity, error)
}

// TokenStore is the durable single-slot token store. It answers "was there a
// prior session"; it is never a source of truth for identity.
type TokenStore interface {
	// Load returns the persisted token, or "" when no prior session exists.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Manager drives the session state machine. Safe for concurrent use; a
// state-changing call arriving while another is in flight is dropped without
// issuing a collaborator call.
type Manager struct {
	api   AuthAPI
	store TokenStore

	mu       sync.Mutex
	state    State
	inFlight bool
	token    string
	identity *identitydomain.Identity
}

// NewManager returns a Manager in StateUnauthenticated.
func NewManager(authAPI AuthAPI, store TokenStore) *Manager {
	return &Manager{api: authAPI, store: store, state: StateUnauthenticated}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the current bearer token, or "" when unauthenticated.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Identity returns the current identity, or nil when unauthenticated.
func (m *Manager) Identity() *identitydomain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// begin sets the in-flight guard. Returns false when another state-changing
// call is already running, in which case the caller must do nothing.
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight {
		return false
	}
	m.inFlight = true
	return true
}

func (m *Manager) end() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

// Login authenticates with the auth service, then fetches the identity. On
// success the token is persisted and the session is Authenticated; on failure
// the session stays (or becomes) Unauthenticated. Invalid credentials surface
// as api.ErrInvalidCredentials. A Login issued while another state-changing
// call is in flight is dropped.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if !m.begin() {
		return nil
	}
	defer m.end()

	token, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.clear(ctx, false)
		return err
	}

	m.mu.Lock()
	m.token = token
	m.identity = nil
	m.state = StateValidating
	m.mu.Unlock()

	ident, err := m.api.CurrentUser(ctx, token)
	if err != nil {
		m.clear(ctx, true)
		return err
	}

	m.mu.Lock()
	m.identity = ident
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.Save(ctx, token); err != nil {
		// The live session is valid either way; only resuming is affected.
		log.Printf("session: persist token: %v", err)
	}
	return nil
}

// Resume validates a token persisted by a previous run. No persisted token
// leaves the session Unauthenticated with no error. A persisted token that
// the service rejects (or that is already past its exp claim) is discarded
// and ErrExpired is returned; the caller shows ExpiredMessage.
func (m *Manager) Resume(ctx context.Context) error {
	if !m.begin() {
		return nil
	}
	defer m.end()

	token, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	// A token past its exp claim cannot validate; skip the doomed round trip.
	if exp, err := TokenExpiry(token); err == nil && exp.Before(time.Now()) {
		m.clear(ctx, true)
		return ErrExpired
	}

	m.mu.Lock()
	m.token = token
	m.state = StateValidating
	m.mu.Unlock()

	ident, err := m.api.CurrentUser(ctx, token)
	if err != nil {
		m.clear(ctx, true)
		if errors.Is(err, api.ErrExpiredToken) {
			return ErrExpired
		}
		return err
	}

	m.mu.Lock()
	m.identity = ident
	m.state = StateAuthenticated
	m.mu.Unlock()
	return nil
}

// RefreshIdentity re-fetches the identity without touching the token. Used
// after MFA enrollment flips server-side flags. Failure is non-fatal: the
// prior identity stays valid until the next hard validation, so errors are
// logged, not surfaced.
func (m *Manager) RefreshIdentity(ctx context.Context) {
	m.mu.Lock()
	token := m.token
	authenticated := m.state == StateAuthenticated
	m.mu.Unlock()
	if !authenticated {
		return
	}

	ident, err := m.api.CurrentUser(ctx, token)
	if err != nil {
		log.Printf("session: refresh identity: %v", err)
		return
	}

	m.mu.Lock()
	if m.state == StateAuthenticated {
		m.identity = ident
	}
	m.mu.Unlock()
}

// Logout clears the token and identity unconditionally. Always succeeds and
// is idempotent; a store failure only affects resuming and is logged.
func (m *Manager) Logout(ctx context.Context) {
	m.clear(ctx, true)
}

// ForceExpire is the cross-cutting Authenticated → Unauthenticated
// transition: called when any collaborator call, anywhere in the client,
// reported an expired token. The persisted token is discarded.
func (m *Manager) ForceExpire(ctx context.Context) {
	m.clear(ctx, true)
}

func (m *Manager) clear(ctx context.Context, clearStore bool) {
	m.mu.Lock()
	m.token = ""
	m.identity = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()
	if clearStore {
		if err := m.store.Clear(ctx); err != nil {
			log.Printf("session: clear persisted token: %v", err)
		}
	}
}
