package domain

// VoterStatus is the per-(identity, election) eligibility snapshot. Transient:
// re-queried every time a voting session is entered, never cached across
// elections.
type VoterStatus struct {
	CanVote  bool
	HasVoted bool
	Message  string // human-readable, displayed verbatim
}

// VoteResult is the terminal artifact of a successful cast. Constructed only
// from a 2xx service response; failures are errors, never a VoteResult with
// Success false.
type VoteResult struct {
	Success bool
	Message string
	VoteID  string // opaque; stored for display and the local receipt trail only
}
