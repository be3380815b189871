package domain

import "time"

// Election is a ballot contest visible to the current session. Immutable once
// fetched within a browsing session; re-fetched only on explicit refresh.
type Election struct {
	ID           string
	Title        string
	Description  string // optional
	StartDate    time.Time
	EndDate      time.Time
	IsActive     bool
	IsVotingOpen bool
	Candidates   []Candidate // ordered as returned by the service
}

// Candidate is a choice within an election.
type Candidate struct {
	ID          string
	Name        string
	Party       string // optional
	Description string // optional
}

// CandidateByID returns the candidate with the given id, or nil if the
// election has no such candidate.
func (e *Election) CandidateByID(id string) *Candidate {
	for i := range e.Candidates {
		if e.Candidates[i].ID == id {
			return &e.Candidates[i]
		}
	}
	return nil
}
