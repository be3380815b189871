package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"securevote/client/internal/api"
	votingdomain "securevote/client/internal/voting/domain"
)

type fakeVotingAPI struct {
	mu          sync.Mutex
	statusCalls int
	castCalls   int

	status    *votingdomain.VoterStatus
	statusErr error

	result   *votingdomain.VoteResult
	castErr  error
	castGate chan struct{} // when set, CastVote blocks until closed
}

func (f *fakeVotingAPI) VoterStatus(ctx context.Context, token, electionID string) (*votingdomain.VoterStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeVotingAPI) CastVote(ctx context.Context, token, electionID, candidateID, mfaCode string) (*votingdomain.VoteResult, error) {
	f.mu.Lock()
	f.castCalls++
	gate := f.castGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.castErr != nil {
		return nil, f.castErr
	}
	return f.result, nil
}

func (f *fakeVotingAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.castCalls
}

type staticTokens struct{}

func (staticTokens) Token() string { return "tok" }

type fakeRecorder struct {
	mu      sync.Mutex
	records int
	err     error
	last    votingdomain.VoteResult
}

func (r *fakeRecorder) RecordVote(ctx context.Context, election votingdomain.Election, candidate votingdomain.Candidate, result votingdomain.VoteResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records++
	r.last = result
	return r.err
}

func (r *fakeRecorder) recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

func election() votingdomain.Election {
	return votingdomain.Election{
		ID:           "e1",
		Title:        "Board Election",
		IsActive:     true,
		IsVotingOpen: true,
		Candidates: []votingdomain.Candidate{
			{ID: "c1", Name: "Ada"},
			{ID: "c2", Name: "Grace"},
		},
	}
}

func eligible() *votingdomain.VoterStatus {
	return &votingdomain.VoterStatus{CanVote: true, HasVoted: false}
}

// toConfirming drives a fresh session to ConfirmingVote with candidate c1.
func toConfirming(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}
	s.ConfirmSelection()
	if s.State() != StateConfirmingVote {
		t.Fatalf("state = %s, want %s", s.State(), StateConfirmingVote)
	}
}

func TestBegin_EligibleReachesSelecting(t *testing.T) {
	votingAPI := &fakeVotingAPI{status: eligible()}
	s := NewSession(votingAPI, staticTokens{}, nil, election())

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.State() != StateSelectingCandidate {
		t.Errorf("state = %s, want %s", s.State(), StateSelectingCandidate)
	}
}

func TestBegin_IneligibleIsTerminal(t *testing.T) {
	votingAPI := &fakeVotingAPI{status: &votingdomain.VoterStatus{
		CanVote: false, HasVoted: true, Message: "You have already voted",
	}}
	s := NewSession(votingAPI, staticTokens{}, nil, election())

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.State() != StateIneligible {
		t.Fatalf("state = %s, want %s", s.State(), StateIneligible)
	}
	if got := s.Status().Message; got != "You have already voted" {
		t.Errorf("message = %q, want the service message verbatim", got)
	}

	// Terminal: no selection is possible.
	if err := s.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}
	if s.CandidateID() != "" {
		t.Error("selection must be dropped in Ineligible")
	}
}

func TestBegin_FailureStaysLoadingAndRetries(t *testing.T) {
	votingAPI := &fakeVotingAPI{statusErr: errors.New("dial tcp: connection refused")}
	s := NewSession(votingAPI, staticTokens{}, nil, election())

	if err := s.Begin(context.Background()); err == nil {
		t.Fatal("Begin should surface the transport error")
	}
	if s.State() != StateLoading {
		t.Fatalf("state = %s, want %s", s.State(), StateLoading)
	}

	votingAPI.statusErr = nil
	votingAPI.status = eligible()
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("retry Begin: %v", err)
	}
	if s.State() != StateSelectingCandidate {
		t.Errorf("state = %s, want %s", s.State(), StateSelectingCandidate)
	}
}

func TestSelectCandidate(t *testing.T) {
	votingAPI := &fakeVotingAPI{status: eligible()}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := s.SelectCandidate("ghost"); !errors.Is(err, ErrUnknownCandidate) {
		t.Errorf("off-ballot selection err = %v, want ErrUnknownCandidate", err)
	}

	// Freely revisable while selecting.
	if err := s.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate(c1): %v", err)
	}
	if err := s.SelectCandidate("c2"); err != nil {
		t.Fatalf("SelectCandidate(c2): %v", err)
	}
	if s.CandidateID() != "c2" {
		t.Errorf("candidate = %q, want c2", s.CandidateID())
	}
	if c := s.Candidate(); c == nil || c.Name != "Grace" {
		t.Errorf("Candidate() = %+v", c)
	}
}

func TestConfirmSelection_RequiresCandidate(t *testing.T) {
	votingAPI := &fakeVotingAPI{status: eligible()}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	s.ConfirmSelection()
	if s.State() != StateSelectingCandidate {
		t.Errorf("confirm without candidate must be dropped, state = %s", s.State())
	}

	if err := s.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}
	s.ConfirmSelection()
	if s.State() != StateConfirmingVote {
		t.Errorf("state = %s, want %s", s.State(), StateConfirmingVote)
	}
}

func TestCast_RejectsBadCodeFormat(t *testing.T) {
	votingAPI := &fakeVotingAPI{status: eligible()}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)

	for _, code := range []string{"", "12345", "1234567", "65432a"} {
		if err := s.Cast(context.Background(), code); !errors.Is(err, ErrCodeFormat) {
			t.Errorf("Cast(%q) = %v, want ErrCodeFormat", code, err)
		}
	}
	if _, casts := votingAPI.calls(); casts != 0 {
		t.Errorf("cast calls = %d, want 0 for malformed codes", casts)
	}
	if s.State() != StateConfirmingVote {
		t.Errorf("state = %s, want unchanged %s", s.State(), StateConfirmingVote)
	}
}

func TestCast_Succeeds(t *testing.T) {
	votingAPI := &fakeVotingAPI{
		status: eligible(),
		result: &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-42"},
	}
	recorder := &fakeRecorder{}
	s := NewSession(votingAPI, staticTokens{}, recorder, election())
	toConfirming(t, s)

	if err := s.Cast(context.Background(), "654321"); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if s.State() != StateSucceeded {
		t.Fatalf("state = %s, want %s", s.State(), StateSucceeded)
	}
	result := s.Result()
	if result == nil || !result.Success || result.VoteID != "v-42" || result.Message != "Vote recorded" {
		t.Errorf("result = %+v", result)
	}
	if recorder.recorded() != 1 {
		t.Errorf("receipts recorded = %d, want 1", recorder.recorded())
	}
}

func TestCast_FailureReturnsToConfirming(t *testing.T) {
	votingAPI := &fakeVotingAPI{
		status: eligible(),
		castErr: &api.Error{
			Status: 401, Detail: "Invalid MFA code", Kind: api.ErrInvalidCode,
		},
	}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)

	err := s.Cast(context.Background(), "000000")
	if !errors.Is(err, api.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if s.State() != StateConfirmingVote {
		t.Fatalf("state = %s, want %s for a user retry", s.State(), StateConfirmingVote)
	}
	if s.Failure() != "Invalid MFA code" {
		t.Errorf("failure = %q, want server detail", s.Failure())
	}

	// Resubmit with a fresh code succeeds.
	votingAPI.castErr = nil
	votingAPI.result = &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-43"}
	if err := s.Cast(context.Background(), "654321"); err != nil {
		t.Fatalf("resubmit Cast: %v", err)
	}
	if s.State() != StateSucceeded {
		t.Errorf("state = %s, want %s", s.State(), StateSucceeded)
	}
}

func TestCast_ServiceFactWinsOverStaleStatus(t *testing.T) {
	// Status said eligible, but the cast reports AlreadyVoted: the cast
	// failure wins and the session shows it in ConfirmingVote.
	votingAPI := &fakeVotingAPI{
		status: eligible(),
		castErr: &api.Error{
			Status: 403, Detail: "You have already voted in this election", Kind: api.ErrAlreadyVoted,
		},
	}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)

	err := s.Cast(context.Background(), "654321")
	if !errors.Is(err, api.ErrAlreadyVoted) {
		t.Fatalf("err = %v, want ErrAlreadyVoted", err)
	}
	if s.State() != StateConfirmingVote {
		t.Errorf("state = %s, want %s", s.State(), StateConfirmingVote)
	}
	if s.Failure() != "You have already voted in this election" {
		t.Errorf("failure = %q", s.Failure())
	}
}

func TestCast_DroppedWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	votingAPI := &fakeVotingAPI{
		status:   eligible(),
		result:   &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-42"},
		castGate: gate,
	}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Cast(context.Background(), "654321")
	}()
	for {
		if _, casts := votingAPI.calls(); casts == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Cast(context.Background(), "654321"); err != nil {
		t.Fatalf("duplicate cast should be dropped silently, got %v", err)
	}
	close(gate)
	<-done

	if _, casts := votingAPI.calls(); casts != 1 {
		t.Errorf("cast calls = %d, want exactly 1", casts)
	}
}

func TestBack_PreservesCandidateClearsFailure(t *testing.T) {
	votingAPI := &fakeVotingAPI{
		status:  eligible(),
		castErr: &api.Error{Status: 401, Detail: "Invalid MFA code", Kind: api.ErrInvalidCode},
	}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)
	_ = s.Cast(context.Background(), "000000")

	s.Back()
	if s.State() != StateSelectingCandidate {
		t.Fatalf("state = %s, want %s", s.State(), StateSelectingCandidate)
	}
	if s.CandidateID() != "c1" {
		t.Errorf("candidate = %q, want preserved c1", s.CandidateID())
	}
	if s.Failure() != "" {
		t.Errorf("failure = %q, want cleared", s.Failure())
	}
}

func TestCast_TerminalStateDrops(t *testing.T) {
	votingAPI := &fakeVotingAPI{
		status: eligible(),
		result: &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-42"},
	}
	s := NewSession(votingAPI, staticTokens{}, nil, election())
	toConfirming(t, s)
	if err := s.Cast(context.Background(), "654321"); err != nil {
		t.Fatalf("Cast: %v", err)
	}

	if err := s.Cast(context.Background(), "123456"); err != nil {
		t.Fatalf("cast after Succeeded should be dropped, got %v", err)
	}
	if _, casts := votingAPI.calls(); casts != 1 {
		t.Errorf("cast calls = %d, want 1", casts)
	}
}

func TestRecorderFailureIsNotSurfaced(t *testing.T) {
	votingAPI := &fakeVotingAPI{
		status: eligible(),
		result: &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-42"},
	}
	recorder := &fakeRecorder{err: errors.New("database is locked")}
	s := NewSession(votingAPI, staticTokens{}, recorder, election())
	toConfirming(t, s)

	if err := s.Cast(context.Background(), "654321"); err != nil {
		t.Fatalf("Cast must not surface a receipt failure, got %v", err)
	}
	if s.State() != StateSucceeded {
		t.Errorf("state = %s, want %s", s.State(), StateSucceeded)
	}
}
