// Package app is the single top-level orchestrator of the voter client. It
// owns the session manager, the election catalog, and the current MFA
// enrollment and ballot session instances, and decides which screen is
// visible. The screen is one tagged View value, never a set of independent
// show-flags, so invalid combinations cannot be represented.
package app

import (
	"context"
	"errors"
	"sync"

	"securevote/client/internal/api"
	"securevote/client/internal/authgate"
	"securevote/client/internal/catalog"
	identitydomain "securevote/client/internal/identity/domain"
	"securevote/client/internal/mfaenroll"
	receiptdomain "securevote/client/internal/receipt/domain"
	"securevote/client/internal/session"
	"securevote/client/internal/telemetry"
	"securevote/client/internal/voting"
	votingdomain "securevote/client/internal/voting/domain"
)

// ViewKind names a screen.
type ViewKind string

const (
	ViewLogin       ViewKind = "login"
	ViewRegister    ViewKind = "register"
	ViewMFARequired ViewKind = "mfa_required"
	ViewMFAEnroll   ViewKind = "mfa_enroll"
	ViewElections   ViewKind = "elections"
	ViewVoting      ViewKind = "voting"
	ViewReceipts    ViewKind = "receipts"
)

// View is the currently visible screen plus an optional notice to render with
// it (e.g. the session-expired message on the login screen).
type View struct {
	Kind   ViewKind
	Notice string
}

// ErrUnknownElection reports an election ID that is not in the catalog.
var ErrUnknownElection = errors.New("unknown election")

// API is the full service surface the app hands to its components. Satisfied
// by api.Client.
type API interface {
	Register(ctx context.Context, email, password string) (*identitydomain.Identity, error)
	Login(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (*identitydomain.Identity, error)
	SetupMFA(ctx context.Context, token string) (*api.Provisioning, error)
	VerifyMFA(ctx context.Context, token, code string) (string, error)
	ListElections(ctx context.Context, token string) ([]votingdomain.Election, error)
	VoterStatus(ctx context.Context, token, electionID string) (*votingdomain.VoterStatus, error)
	CastVote(ctx context.Context, token, electionID, candidateID, mfaCode string) (*votingdomain.VoteResult, error)
	ElectionResults(ctx context.Context, token, electionID string) (*api.ElectionResults, error)
}

// ReceiptStore records successful casts and lists them back. Satisfied by
// receipt.Recorder; may be nil to disable receipts.
type ReceiptStore interface {
	RecordVote(ctx context.Context, election votingdomain.Election, candidate votingdomain.Candidate, result votingdomain.VoteResult) error
	List(ctx context.Context) ([]*receiptdomain.Receipt, error)
}

// App wires the state machines together and applies the routing rules: an
// identity without MFA is redirected to enrollment instead of elections, and
// an expired token anywhere forces a global logout that discards in-progress
// enrollment and ballot instances.
type App struct {
	api      API
	sessions *session.Manager
	catalog  *catalog.Catalog
	receipts ReceiptStore
	emitter  telemetry.EventEmitter

	mu         sync.Mutex
	view       View
	enrollment *mfaenroll.Enrollment
	ballot     *voting.Session
}

// New returns an App showing the login screen. emitter may be nil.
func New(client API, sessions *session.Manager, receipts ReceiptStore, emitter telemetry.EventEmitter) *App {
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	return &App{
		api:      client,
		sessions: sessions,
		catalog:  catalog.New(client, sessions),
		receipts: receipts,
		emitter:  emitter,
		view:     View{Kind: ViewLogin},
	}
}

// View returns the currently visible screen.
func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Sessions exposes the session manager for read access (state, identity).
func (a *App) Sessions() *session.Manager { return a.sessions }

// Enrollment returns the in-progress MFA enrollment, or nil.
func (a *App) Enrollment() *mfaenroll.Enrollment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enrollment
}

// Ballot returns the in-progress ballot session, or nil.
func (a *App) Ballot() *voting.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ballot
}

func (a *App) setView(v View) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

// expire is the global reaction to an expired token: force the session out,
// discard in-progress enrollment and ballot instances, and land on the login
// screen with the fixed expiry message.
func (a *App) expire(ctx context.Context) {
	a.sessions.ForceExpire(ctx)
	a.mu.Lock()
	a.enrollment = nil
	a.ballot = nil
	a.view = View{Kind: ViewLogin, Notice: session.ExpiredMessage}
	a.mu.Unlock()
}

// checkExpired applies the expiry rule to any collaborator error. Returns the
// error unchanged so callers can keep surfacing it.
func (a *App) checkExpired(ctx context.Context, err error) error {
	if errors.Is(err, api.ErrExpiredToken) || errors.Is(err, session.ErrExpired) {
		a.expire(ctx)
	}
	return err
}

// routeAuthenticated shows the screen an authenticated identity lands on:
// elections when MFA is enabled, otherwise the MFA-required redirect.
func (a *App) routeAuthenticated() {
	if authgate.CanBrowseElections(a.sessions.Identity()) {
		a.setView(View{Kind: ViewElections})
		return
	}
	a.setView(View{Kind: ViewMFARequired})
}

// Start resumes a persisted session, if any, and routes accordingly. A stale
// persisted token lands on login with the expiry notice; no persisted token
// lands on login silently.
func (a *App) Start(ctx context.Context) error {
	err := a.sessions.Resume(ctx)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			a.setView(View{Kind: ViewLogin, Notice: session.ExpiredMessage})
			return nil
		}
		return err
	}
	if a.sessions.State() == session.StateAuthenticated {
		a.routeAuthenticated()
	} else {
		a.setView(View{Kind: ViewLogin})
	}
	return nil
}

// OpenRegister switches to the registration screen. Only reachable while
// unauthenticated.
func (a *App) OpenRegister() {
	if a.sessions.State() == session.StateUnauthenticated {
		a.setView(View{Kind: ViewRegister})
	}
}

// OpenLogin switches back to the login screen while unauthenticated.
func (a *App) OpenLogin() {
	if a.sessions.State() == session.StateUnauthenticated {
		a.setView(View{Kind: ViewLogin})
	}
}

// Register creates a new identity. On success the user still has to log in;
// the view returns to login with a confirmation notice.
func (a *App) Register(ctx context.Context, email, password string) error {
	ident, err := a.api.Register(ctx, email, password)
	if err != nil {
		return err
	}
	telemetry.EmitAsync(a.emitter, ctx, &telemetry.Event{Name: "register", UserID: ident.ID})
	a.setView(View{Kind: ViewLogin, Notice: "Account created. Please login."})
	return nil
}

// Login authenticates and routes to elections or the MFA-required redirect.
func (a *App) Login(ctx context.Context, email, password string) error {
	if err := a.sessions.Login(ctx, email, password); err != nil {
		return err
	}
	if a.sessions.State() != session.StateAuthenticated {
		// Dropped while another call was in flight.
		return nil
	}
	if ident := a.sessions.Identity(); ident != nil {
		telemetry.EmitAsync(a.emitter, ctx, &telemetry.Event{Name: "login", UserID: ident.ID})
	}
	a.routeAuthenticated()
	return nil
}

// Logout ends the session and discards any in-progress instances.
func (a *App) Logout(ctx context.Context) {
	a.sessions.Logout(ctx)
	a.mu.Lock()
	a.enrollment = nil
	a.ballot = nil
	a.view = View{Kind: ViewLogin}
	a.mu.Unlock()
}

// OpenElections shows the election list. An identity without MFA is
// redirected to the MFA-required screen instead of seeing a dead control.
func (a *App) OpenElections(ctx context.Context) ([]votingdomain.Election, error) {
	if !authgate.CanBrowseElections(a.sessions.Identity()) {
		a.setView(View{Kind: ViewMFARequired})
		return nil, nil
	}
	elections, err := a.catalog.List(ctx)
	if err != nil {
		return nil, a.checkExpired(ctx, err)
	}
	a.setView(View{Kind: ViewElections})
	return elections, nil
}

// RefreshElections re-fetches the election list (user-triggered).
func (a *App) RefreshElections(ctx context.Context) ([]votingdomain.Election, error) {
	if !authgate.CanBrowseElections(a.sessions.Identity()) {
		a.setView(View{Kind: ViewMFARequired})
		return nil, nil
	}
	elections, err := a.catalog.Refresh(ctx)
	if err != nil {
		return elections, a.checkExpired(ctx, err)
	}
	return elections, nil
}

// BeginEnrollment starts a fresh MFA enrollment and requests provisioning
// material. Allowed regardless of current MFA state.
func (a *App) BeginEnrollment(ctx context.Context) error {
	if !authgate.CanManageMFA(a.sessions.Identity()) {
		a.setView(View{Kind: ViewLogin})
		return nil
	}
	enrollment := mfaenroll.New(a.api, a.sessions)
	a.mu.Lock()
	a.enrollment = enrollment
	a.view = View{Kind: ViewMFAEnroll}
	a.mu.Unlock()
	return a.checkExpired(ctx, enrollment.Begin(ctx))
}

// ConfirmScanned advances the current enrollment past the QR screen.
func (a *App) ConfirmScanned() {
	if enrollment := a.Enrollment(); enrollment != nil {
		enrollment.ConfirmScanned()
	}
}

// SubmitMFACode verifies a code for the current enrollment. On success the
// identity is refreshed and the user lands on elections.
func (a *App) SubmitMFACode(ctx context.Context, code string) error {
	enrollment := a.Enrollment()
	if enrollment == nil {
		return nil
	}
	if err := enrollment.SubmitCode(ctx, code); err != nil {
		return a.checkExpired(ctx, err)
	}
	if enrollment.State() == mfaenroll.StateEnabled {
		if ident := a.sessions.Identity(); ident != nil {
			telemetry.EmitAsync(a.emitter, ctx, &telemetry.Event{Name: "mfa_enabled", UserID: ident.ID})
		}
		a.mu.Lock()
		a.enrollment = nil
		a.mu.Unlock()
		a.routeAuthenticated()
	}
	return nil
}

// EnterVoting opens a fresh ballot session for the election and fetches the
// voter status. An identity without MFA is redirected to the MFA-required
// screen. Re-entering an election always starts over from scratch.
func (a *App) EnterVoting(ctx context.Context, electionID string) error {
	if !authgate.CanEnterVotingSession(a.sessions.Identity()) {
		a.setView(View{Kind: ViewMFARequired})
		return nil
	}
	election := a.catalog.ElectionByID(electionID)
	if election == nil {
		return ErrUnknownElection
	}
	var recorder voting.Recorder
	if a.receipts != nil {
		recorder = a.receipts
	}
	ballot := voting.NewSession(a.api, a.sessions, recorder, *election)
	a.mu.Lock()
	a.ballot = ballot
	a.view = View{Kind: ViewVoting}
	a.mu.Unlock()
	return a.checkExpired(ctx, ballot.Begin(ctx))
}

// LeaveVoting abandons the current ballot session and returns to elections.
// The half-completed attempt is discarded, never resumed.
func (a *App) LeaveVoting() {
	a.mu.Lock()
	a.ballot = nil
	a.mu.Unlock()
	a.routeAuthenticated()
}

// SelectCandidate forwards a selection to the current ballot session.
func (a *App) SelectCandidate(candidateID string) error {
	if ballot := a.Ballot(); ballot != nil {
		return ballot.SelectCandidate(candidateID)
	}
	return nil
}

// ConfirmSelection forwards the confirm checkpoint to the current ballot.
func (a *App) ConfirmSelection() {
	if ballot := a.Ballot(); ballot != nil {
		ballot.ConfirmSelection()
	}
}

// BackToSelection returns the current ballot to candidate selection.
func (a *App) BackToSelection() {
	if ballot := a.Ballot(); ballot != nil {
		ballot.Back()
	}
}

// CastBallot submits the current ballot with a fresh MFA code.
func (a *App) CastBallot(ctx context.Context, code string) error {
	ballot := a.Ballot()
	if ballot == nil {
		return nil
	}
	if err := ballot.Cast(ctx, code); err != nil {
		return a.checkExpired(ctx, err)
	}
	if result := ballot.Result(); result != nil {
		event := &telemetry.Event{Name: "vote_cast", ElectionID: ballot.Election().ID, Detail: result.Message}
		if ident := a.sessions.Identity(); ident != nil {
			event.UserID = ident.ID
		}
		telemetry.EmitAsync(a.emitter, ctx, event)
	}
	return nil
}

// Receipts lists locally stored vote receipts.
func (a *App) Receipts(ctx context.Context) ([]*receiptdomain.Receipt, error) {
	if a.receipts == nil {
		return nil, nil
	}
	receipts, err := a.receipts.List(ctx)
	if err != nil {
		return nil, err
	}
	a.setView(View{Kind: ViewReceipts})
	return receipts, nil
}

// Results fetches the read-only results view for an election. The service
// decides who may see it; a 403 message is surfaced verbatim.
func (a *App) Results(ctx context.Context, electionID string) (*api.ElectionResults, error) {
	results, err := a.api.ElectionResults(ctx, a.sessions.Token(), electionID)
	if err != nil {
		return nil, a.checkExpired(ctx, err)
	}
	return results, nil
}
