package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	votingdomain "securevote/client/internal/voting/domain"
)

type candidateJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Party       string `json:"party"`
	Description string `json:"description"`
}

type electionJSON struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	IsActive     bool            `json:"is_active"`
	IsVotingOpen bool            `json:"is_voting_open"`
	Candidates   []candidateJSON `json:"candidates"`
}

func (e *electionJSON) toDomain() votingdomain.Election {
	out := votingdomain.Election{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		StartDate:    parseServiceTime(e.StartDate),
		EndDate:      parseServiceTime(e.EndDate),
		IsActive:     e.IsActive,
		IsVotingOpen: e.IsVotingOpen,
		Candidates:   make([]votingdomain.Candidate, 0, len(e.Candidates)),
	}
	for _, c := range e.Candidates {
		out.Candidates = append(out.Candidates, votingdomain.Candidate{
			ID:          c.ID,
			Name:        c.Name,
			Party:       c.Party,
			Description: c.Description,
		})
	}
	return out
}

// parseServiceTime parses the service's ISO 8601 timestamps, which may or may
// not carry a zone suffix. A value that parses with no layout yields the zero
// time; dates are display-only client-side.
func parseServiceTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ListElections returns every election the service exposes to this session,
// in service order. An empty list is a valid result. A 401 is ErrExpiredToken.
func (c *Client) ListElections(ctx context.Context, token string) ([]votingdomain.Election, error) {
	var body []electionJSON
	err := c.do(ctx, "voting.list_elections", http.MethodGet, "/voting/elections", token, "", nil, &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			return nil, withKind(err, ErrExpiredToken)
		}
		return nil, err
	}
	out := make([]votingdomain.Election, 0, len(body))
	for i := range body {
		out = append(out, body[i].toDomain())
	}
	return out, nil
}

// VoterStatus returns the eligibility snapshot for the identity behind token
// in the given election. Ineligibility is reported in the snapshot, not as an
// error; only transport, auth, and unknown-election failures error.
func (c *Client) VoterStatus(ctx context.Context, token, electionID string) (*votingdomain.VoterStatus, error) {
	var body struct {
		CanVote  bool   `json:"can_vote"`
		HasVoted bool   `json:"has_voted"`
		Message  string `json:"message"`
	}
	path := fmt.Sprintf("/voting/elections/%s/status", url.PathEscape(electionID))
	err := c.do(ctx, "voting.voter_status", http.MethodGet, path, token, "", nil, &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			return nil, withKind(err, ErrExpiredToken)
		}
		return nil, err
	}
	return &votingdomain.VoterStatus{CanVote: body.CanVote, HasVoted: body.HasVoted, Message: body.Message}, nil
}

// CastVote submits the final candidate choice plus a fresh MFA code. Failure
// classification follows the service's status and detail text: a 401 with the
// bad-code detail is ErrInvalidCode (any other 401 is ErrExpiredToken) and a
// 403 carries the voter-status message, classified by its wording.
func (c *Client) CastVote(ctx context.Context, token, electionID, candidateID, mfaCode string) (*votingdomain.VoteResult, error) {
	payload, err := json.Marshal(map[string]string{
		"candidate_id": candidateID,
		"mfa_code":     mfaCode,
	})
	if err != nil {
		return nil, err
	}
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		VoteID  string `json:"vote_id"`
	}
	path := fmt.Sprintf("/voting/elections/%s/vote", url.PathEscape(electionID))
	err = c.do(ctx, "voting.cast_vote", http.MethodPost, path, token, "application/json", payload, &body)
	if err != nil {
		return nil, classifyCastError(err)
	}
	return &votingdomain.VoteResult{Success: body.Success, Message: body.Message, VoteID: body.VoteID}, nil
}

func classifyCastError(err error) error {
	apiErr, ok := err.(*Error)
	if !ok {
		return err
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		if apiErr.Detail == "Invalid MFA code" {
			return withKind(err, ErrInvalidCode)
		}
		return withKind(err, ErrExpiredToken)
	case http.StatusForbidden:
		detail := strings.ToLower(apiErr.Detail)
		switch {
		case strings.Contains(detail, "already voted"):
			return withKind(err, ErrAlreadyVoted)
		case strings.Contains(detail, "not currently open"):
			return withKind(err, ErrElectionClosed)
		default:
			return withKind(err, ErrNotEligible)
		}
	case http.StatusBadRequest:
		// "MFA not enabled": the identity cannot vote yet.
		return withKind(err, ErrNotEligible)
	}
	return err
}

// ResultCandidate is the candidate header in a results payload.
type ResultCandidate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Party string `json:"party"`
}

// CandidateResult is one candidate's tally in an election results payload.
type CandidateResult struct {
	Candidate  ResultCandidate `json:"candidate"`
	Votes      int             `json:"votes"`
	Percentage float64         `json:"percentage"`
}

// ResultElection is the election header in a results payload.
type ResultElection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ElectionResults is the read-only results payload. The service enforces who
// may see it; the client only renders it.
type ElectionResults struct {
	Election          ResultElection    `json:"election"`
	TotalVotes        int               `json:"total_votes"`
	Results           []CandidateResult `json:"results"`
	EligibleVoters    int               `json:"eligible_voters"`
	VotedCount        int               `json:"voted_count"`
	TurnoutPercentage float64           `json:"turnout_percentage"`
}

// ElectionResults fetches the results view for an election. A 403 (not an
// election administrator, or election still running) surfaces the server's
// message; a 401 is ErrExpiredToken.
func (c *Client) ElectionResults(ctx context.Context, token, electionID string) (*ElectionResults, error) {
	var body ElectionResults
	path := fmt.Sprintf("/voting/elections/%s/results", url.PathEscape(electionID))
	err := c.do(ctx, "voting.election_results", http.MethodGet, path, token, "", nil, &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			return nil, withKind(err, ErrExpiredToken)
		}
		return nil, err
	}
	return &body, nil
}
