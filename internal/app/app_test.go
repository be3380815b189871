package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"securevote/client/internal/api"
	identitydomain "securevote/client/internal/identity/domain"
	receiptdomain "securevote/client/internal/receipt/domain"
	"securevote/client/internal/session"
	"securevote/client/internal/voting"
	votingdomain "securevote/client/internal/voting/domain"
)

// fakeAPI implements the full service surface with programmable responses.
type fakeAPI struct {
	mu sync.Mutex

	identity *identitydomain.Identity
	loginErr error

	registerErr error

	provisioning *api.Provisioning
	verifyErr    error

	elections []votingdomain.Election
	listErr   error

	status    *votingdomain.VoterStatus
	statusErr error

	result  *votingdomain.VoteResult
	castErr error

	results    *api.ElectionResults
	resultsErr error
}

func (f *fakeAPI) Register(ctx context.Context, email, password string) (*identitydomain.Identity, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &identitydomain.Identity{ID: "u-new", Email: email, IsActive: true}, nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "tok", nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context, token string) (*identitydomain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident := *f.identity
	return &ident, nil
}

func (f *fakeAPI) setMFAEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity.MFAEnabled = enabled
}

func (f *fakeAPI) SetupMFA(ctx context.Context, token string) (*api.Provisioning, error) {
	return f.provisioning, nil
}

func (f *fakeAPI) VerifyMFA(ctx context.Context, token, code string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	f.setMFAEnabled(true)
	return "MFA enabled", nil
}

func (f *fakeAPI) ListElections(ctx context.Context, token string) ([]votingdomain.Election, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.elections, nil
}

func (f *fakeAPI) VoterStatus(ctx context.Context, token, electionID string) (*votingdomain.VoterStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeAPI) CastVote(ctx context.Context, token, electionID, candidateID, mfaCode string) (*votingdomain.VoteResult, error) {
	if f.castErr != nil {
		return nil, f.castErr
	}
	return f.result, nil
}

func (f *fakeAPI) ElectionResults(ctx context.Context, token, electionID string) (*api.ElectionResults, error) {
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.results, nil
}

type memStore struct {
	mu    sync.Mutex
	token string
}

func (s *memStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

type memReceipts struct {
	mu       sync.Mutex
	receipts []*receiptdomain.Receipt
}

func (m *memReceipts) RecordVote(ctx context.Context, election votingdomain.Election, candidate votingdomain.Candidate, result votingdomain.VoteResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, &receiptdomain.Receipt{
		ElectionID:    election.ID,
		ElectionTitle: election.Title,
		CandidateName: candidate.Name,
		VoteID:        result.VoteID,
		Message:       result.Message,
	})
	return nil
}

func (m *memReceipts) List(ctx context.Context) ([]*receiptdomain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts, nil
}

func (m *memReceipts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts)
}

func newFakeAPI(mfaEnabled bool) *fakeAPI {
	return &fakeAPI{
		identity: &identitydomain.Identity{ID: "u1", Email: "a@x.com", IsActive: true, MFAEnabled: mfaEnabled},
		provisioning: &api.Provisioning{
			OtpauthURL: "otpauth://totp/SecureVote:a@x.com?secret=JBSWY3DPEHPK3PXP&issuer=SecureVote",
			QR:         "data:image/png;base64,aGVsbG8=",
		},
		elections: []votingdomain.Election{{
			ID: "e1", Title: "Board Election", IsActive: true, IsVotingOpen: true,
			Candidates: []votingdomain.Candidate{{ID: "c1", Name: "Ada"}},
		}},
		status: &votingdomain.VoterStatus{CanVote: true},
		result: &votingdomain.VoteResult{Success: true, Message: "Vote recorded", VoteID: "v-42"},
	}
}

func newApp(client *fakeAPI) (*App, *memReceipts) {
	receipts := &memReceipts{}
	sessions := session.NewManager(client, &memStore{})
	return New(client, sessions, receipts, nil), receipts
}

func TestStart_NoPriorSession(t *testing.T) {
	a, _ := newApp(newFakeAPI(true))
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v := a.View(); v.Kind != ViewLogin || v.Notice != "" {
		t.Errorf("view = %+v, want silent login", v)
	}
}

func TestLogin_WithoutMFARedirectsToEnrollment(t *testing.T) {
	// Scenario: fresh identity logs in, MFA not yet enabled; opening elections
	// must redirect to the MFA entry point instead of showing a dead screen.
	a, _ := newApp(newFakeAPI(false))
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if v := a.View(); v.Kind != ViewMFARequired {
		t.Fatalf("view = %+v, want %s", v, ViewMFARequired)
	}

	elections, err := a.OpenElections(ctx)
	if err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if elections != nil {
		t.Error("elections must not be fetched for an identity without MFA")
	}
	if v := a.View(); v.Kind != ViewMFARequired {
		t.Errorf("view = %+v, want %s", v, ViewMFARequired)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	client := newFakeAPI(true)
	client.loginErr = &api.Error{Status: 400, Detail: "LOGIN_BAD_CREDENTIALS", Kind: api.ErrInvalidCredentials}
	a, _ := newApp(client)

	err := a.Login(context.Background(), "a@x.com", "wrong")
	if !errors.Is(err, api.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if v := a.View(); v.Kind != ViewLogin {
		t.Errorf("view = %+v, want login", v)
	}
}

func TestRegister(t *testing.T) {
	a, _ := newApp(newFakeAPI(false))
	a.OpenRegister()
	if v := a.View(); v.Kind != ViewRegister {
		t.Fatalf("view = %+v, want %s", v, ViewRegister)
	}

	if err := a.Register(context.Background(), "new@x.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	v := a.View()
	if v.Kind != ViewLogin || v.Notice == "" {
		t.Errorf("view = %+v, want login with confirmation notice", v)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	client := newFakeAPI(false)
	client.registerErr = &api.Error{Status: 400, Detail: "REGISTER_USER_ALREADY_EXISTS", Kind: api.ErrDuplicateEmail}
	a, _ := newApp(client)

	if err := a.Register(context.Background(), "a@x.com", "pw"); !errors.Is(err, api.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestEnrollment_EndToEnd(t *testing.T) {
	client := newFakeAPI(false)
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := a.BeginEnrollment(ctx); err != nil {
		t.Fatalf("BeginEnrollment: %v", err)
	}
	if v := a.View(); v.Kind != ViewMFAEnroll {
		t.Fatalf("view = %+v, want %s", v, ViewMFAEnroll)
	}
	if got := a.Enrollment().ManualSecret(); got != "JBSWY3DPEHPK3PXP" {
		t.Errorf("manual secret = %q", got)
	}

	a.ConfirmScanned()
	if err := a.SubmitMFACode(ctx, "123456"); err != nil {
		t.Fatalf("SubmitMFACode: %v", err)
	}

	// Enrollment finished: instance discarded, identity refreshed, elections open.
	if a.Enrollment() != nil {
		t.Error("finished enrollment must be discarded")
	}
	if ident := a.Sessions().Identity(); ident == nil || !ident.MFAEnabled {
		t.Errorf("identity = %+v, want MFAEnabled after refresh", ident)
	}
	if v := a.View(); v.Kind != ViewElections {
		t.Errorf("view = %+v, want %s", v, ViewElections)
	}
}

func TestEnrollment_InvalidCodeKeepsEnrollment(t *testing.T) {
	client := newFakeAPI(false)
	client.verifyErr = &api.Error{Status: 401, Detail: "Invalid TOTP", Kind: api.ErrInvalidCode}
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := a.BeginEnrollment(ctx); err != nil {
		t.Fatalf("BeginEnrollment: %v", err)
	}
	a.ConfirmScanned()

	if err := a.SubmitMFACode(ctx, "000000"); !errors.Is(err, api.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if a.Enrollment() == nil {
		t.Fatal("enrollment must survive a rejected code for retry")
	}
	if v := a.View(); v.Kind != ViewMFAEnroll {
		t.Errorf("view = %+v, want %s", v, ViewMFAEnroll)
	}
}

func TestVoting_EndToEnd(t *testing.T) {
	client := newFakeAPI(true)
	a, receipts := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := a.OpenElections(ctx); err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if err := a.EnterVoting(ctx, "e1"); err != nil {
		t.Fatalf("EnterVoting: %v", err)
	}
	if v := a.View(); v.Kind != ViewVoting {
		t.Fatalf("view = %+v, want %s", v, ViewVoting)
	}

	if err := a.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}
	a.ConfirmSelection()
	if err := a.CastBallot(ctx, "654321"); err != nil {
		t.Fatalf("CastBallot: %v", err)
	}
	if got := a.Ballot().State(); got != voting.StateSucceeded {
		t.Fatalf("ballot state = %s, want %s", got, voting.StateSucceeded)
	}
	if receipts.count() != 1 {
		t.Errorf("receipts = %d, want 1", receipts.count())
	}
}

func TestEnterVoting_UnknownElection(t *testing.T) {
	client := newFakeAPI(true)
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := a.OpenElections(ctx); err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if err := a.EnterVoting(ctx, "ghost"); !errors.Is(err, ErrUnknownElection) {
		t.Errorf("err = %v, want ErrUnknownElection", err)
	}
}

func TestLeaveVoting_DiscardsAttempt(t *testing.T) {
	client := newFakeAPI(true)
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := a.OpenElections(ctx); err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if err := a.EnterVoting(ctx, "e1"); err != nil {
		t.Fatalf("EnterVoting: %v", err)
	}
	if err := a.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}

	a.LeaveVoting()
	if a.Ballot() != nil {
		t.Error("abandoned ballot must be discarded")
	}
	if v := a.View(); v.Kind != ViewElections {
		t.Errorf("view = %+v, want %s", v, ViewElections)
	}

	// Re-entering starts over from Loading with no carried-over selection.
	if err := a.EnterVoting(ctx, "e1"); err != nil {
		t.Fatalf("re-enter: %v", err)
	}
	if got := a.Ballot().CandidateID(); got != "" {
		t.Errorf("candidate = %q, want fresh session", got)
	}
}

func TestExpiredTokenForcesGlobalLogout(t *testing.T) {
	client := newFakeAPI(true)
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := a.OpenElections(ctx); err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if err := a.EnterVoting(ctx, "e1"); err != nil {
		t.Fatalf("EnterVoting: %v", err)
	}

	// The next cast comes back 401: expired token wins over everything.
	client.castErr = &api.Error{Status: 401, Detail: "Unauthorized", Kind: api.ErrExpiredToken}
	if err := a.SelectCandidate("c1"); err != nil {
		t.Fatalf("SelectCandidate: %v", err)
	}
	a.ConfirmSelection()
	if err := a.CastBallot(ctx, "654321"); !errors.Is(err, api.ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}

	if a.Sessions().State() != session.StateUnauthenticated {
		t.Error("session must be forced out")
	}
	if a.Ballot() != nil || a.Enrollment() != nil {
		t.Error("in-progress instances must be discarded")
	}
	v := a.View()
	if v.Kind != ViewLogin || v.Notice != session.ExpiredMessage {
		t.Errorf("view = %+v, want login with %q", v, session.ExpiredMessage)
	}
}

func TestReceiptsView(t *testing.T) {
	client := newFakeAPI(true)
	a, receipts := newApp(client)
	ctx := context.Background()

	receipts.receipts = append(receipts.receipts, &receiptdomain.Receipt{ID: "r1", ElectionID: "e1"})
	got, err := a.Receipts(ctx)
	if err != nil {
		t.Fatalf("Receipts: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("receipts = %d, want 1", len(got))
	}
	if v := a.View(); v.Kind != ViewReceipts {
		t.Errorf("view = %+v, want %s", v, ViewReceipts)
	}
}

func TestResults(t *testing.T) {
	client := newFakeAPI(true)
	client.results = &api.ElectionResults{TotalVotes: 10}
	a, _ := newApp(client)

	results, err := a.Results(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if results.TotalVotes != 10 {
		t.Errorf("results = %+v", results)
	}
}

func TestLogout_DiscardsEverything(t *testing.T) {
	client := newFakeAPI(true)
	a, _ := newApp(client)
	ctx := context.Background()

	if err := a.Login(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := a.OpenElections(ctx); err != nil {
		t.Fatalf("OpenElections: %v", err)
	}
	if err := a.EnterVoting(ctx, "e1"); err != nil {
		t.Fatalf("EnterVoting: %v", err)
	}

	a.Logout(ctx)
	if a.Sessions().State() != session.StateUnauthenticated {
		t.Error("session must be cleared")
	}
	if a.Ballot() != nil {
		t.Error("ballot must be discarded on logout")
	}
	if v := a.View(); v.Kind != ViewLogin {
		t.Errorf("view = %+v, want login", v)
	}
}
