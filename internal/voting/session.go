// Package voting holds the per-election ballot protocol: eligibility check,
// candidate selection, confirmation with a fresh MFA code, and a single
// guarded submission. One Session per (identity, election); abandoning a
// session discards it and re-entering the election starts a new one in
// Loading. All real gating (eligibility, one vote per identity, code
// correctness) is authoritative on the remote service; the machine here
// avoids pointless round trips and gives immediate feedback.
package voting

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"securevote/client/internal/api"
	"securevote/client/internal/otpcode"
	votingdomain "securevote/client/internal/voting/domain"
)

// State is the ballot protocol state.
type State string

const (
	StateLoading            State = "loading"
	StateIneligible         State = "ineligible" // terminal
	StateSelectingCandidate State = "selecting_candidate"
	StateConfirmingVote     State = "confirming_vote"
	StateSubmitting         State = "submitting"
	StateSucceeded          State = "succeeded" // terminal
)

// ErrCodeFormat rejects a cast whose MFA code is not exactly 6 decimal
// digits. No collaborator call is made.
var ErrCodeFormat = errors.New("code must be exactly 6 digits")

// ErrUnknownCandidate rejects a selection that is not on this election's
// ballot.
var ErrUnknownCandidate = errors.New("candidate is not on this ballot")

// API is the voting-service surface needed by a ballot session.
type API interface {
	VoterStatus(ctx context.Context, token, electionID string) (*votingdomain.VoterStatus, error)
	CastVote(ctx context.Context, token, electionID, candidateID, mfaCode string) (*votingdomain.VoteResult, error)
}

// TokenSource supplies the bearer token. Satisfied by session.Manager.
type TokenSource interface {
	Token() string
}

// Recorder persists a local receipt after a successful cast. Best-effort:
// the vote already succeeded, so a recording failure is logged, never
// surfaced.
type Recorder interface {
	RecordVote(ctx context.Context, election votingdomain.Election, candidate votingdomain.Candidate, result votingdomain.VoteResult) error
}

// Session is one ballot attempt for one election. Distinct elections get
// independent instances and may be in flight concurrently.
type Session struct {
	api      API
	tokens   TokenSource
	recorder Recorder // may be nil
	election votingdomain.Election

	// attemptID names this attempt in logs; it is client-local and never
	// sent to the service.
	attemptID string

	mu          sync.Mutex
	state       State
	inFlight    bool
	status      *votingdomain.VoterStatus
	candidateID string
	failure     string // user-displayable message for the last failed cast
	result      *votingdomain.VoteResult
}

// NewSession returns a Session in StateLoading for the given election.
func NewSession(votingAPI API, tokens TokenSource, recorder Recorder, election votingdomain.Election) *Session {
	return &Session{
		api:       votingAPI,
		tokens:    tokens,
		recorder:  recorder,
		election:  election,
		attemptID: uuid.NewString(),
		state:     StateLoading,
	}
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Election returns the election this session is for.
func (s *Session) Election() votingdomain.Election { return s.election }

// Status returns the eligibility snapshot fetched in Loading, or nil.
func (s *Session) Status() *votingdomain.VoterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CandidateID returns the currently selected candidate, or "".
func (s *Session) CandidateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidateID
}

// Candidate returns the selected candidate's ballot entry, or nil.
func (s *Session) Candidate() *votingdomain.Candidate {
	s.mu.Lock()
	id := s.candidateID
	s.mu.Unlock()
	if id == "" {
		return nil
	}
	return s.election.CandidateByID(id)
}

// Failure returns the user-displayable message for the last failed cast,
// or "".
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Result returns the terminal vote result after Succeeded, or nil.
func (s *Session) Result() *votingdomain.VoteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Begin fetches the voter status for this election: Loading → Ineligible when
// the service says the identity cannot vote (already voted, closed, not
// eligible), Loading → SelectingCandidate otherwise. The status message is
// kept verbatim for display. On a fetch failure the session stays in Loading
// and the user retries by calling Begin again. Dropped outside Loading or
// while a fetch is in flight.
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight || s.state != StateLoading {
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	status, err := s.api.VoterStatus(ctx, s.tokens.Token(), s.election.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return err
	}
	s.status = status
	if !status.CanVote {
		s.state = StateIneligible
		return nil
	}
	s.state = StateSelectingCandidate
	return nil
}

// SelectCandidate sets the current selection and clears any prior cast
// failure. Only valid in SelectingCandidate; the selection is freely
// revisable while there. A candidate not on this ballot is rejected.
func (s *Session) SelectCandidate(candidateID string) error {
	if s.election.CandidateByID(candidateID) == nil {
		return ErrUnknownCandidate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelectingCandidate {
		return nil
	}
	s.candidateID = candidateID
	s.failure = ""
	return nil
}

// ConfirmSelection advances SelectingCandidate → ConfirmingVote. Guarded on a
// candidate being selected; no network call. Dropped otherwise.
func (s *Session) ConfirmSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSelectingCandidate && s.candidateID != "" {
		s.state = StateConfirmingVote
	}
}

// Back returns ConfirmingVote → SelectingCandidate, clearing the cast failure
// but preserving the candidate as the default selection. The MFA code is
// never stored, so there is nothing else to clear. Always allowed from
// ConfirmingVote; dropped elsewhere.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConfirmingVote && !s.inFlight {
		s.state = StateSelectingCandidate
		s.failure = ""
	}
}

// Cast submits the ballot: ConfirmingVote → Submitting → Succeeded, or back
// to ConfirmingVote with the failure set so the user can retype a code and
// resubmit or go Back to change candidate. A code that is not exactly 6
// decimal digits is rejected as ErrCodeFormat with no collaborator call. Only
// one cast is ever in flight per session; a duplicate submit while Submitting
// is dropped. When the service reports a terminal fact that contradicts the
// earlier status (eligible then AlreadyVoted), the cast failure wins.
func (s *Session) Cast(ctx context.Context, code string) error {
	s.mu.Lock()
	if s.inFlight || s.state != StateConfirmingVote {
		s.mu.Unlock()
		return nil
	}
	if !otpcode.Valid(code) {
		s.mu.Unlock()
		return ErrCodeFormat
	}
	candidateID := s.candidateID
	s.inFlight = true
	s.state = StateSubmitting
	s.failure = ""
	s.mu.Unlock()

	result, err := s.api.CastVote(ctx, s.tokens.Token(), s.election.ID, candidateID, code)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.state = StateConfirmingVote
		s.failure = api.Message(err)
		s.mu.Unlock()
		return err
	}
	s.state = StateSucceeded
	s.result = result
	s.mu.Unlock()

	if s.recorder != nil {
		candidate := s.election.CandidateByID(candidateID)
		if candidate == nil {
			candidate = &votingdomain.Candidate{ID: candidateID}
		}
		if err := s.recorder.RecordVote(ctx, s.election, *candidate, *result); err != nil {
			log.Printf("voting: attempt %s: record receipt: %v", s.attemptID, err)
		}
	}
	return nil
}
