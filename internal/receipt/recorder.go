// Package receipt keeps a local audit trail of successful ballot casts.
package receipt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"securevote/client/internal/receipt/domain"
	receiptrepo "securevote/client/internal/receipt/repository"
	votingdomain "securevote/client/internal/voting/domain"
)

// Recorder turns a successful vote result into a stored receipt. It
// satisfies the ballot session's recorder hook.
type Recorder struct {
	repo receiptrepo.Repository
}

// NewRecorder returns a Recorder persisting to repo.
func NewRecorder(repo receiptrepo.Repository) *Recorder {
	return &Recorder{repo: repo}
}

// RecordVote stores one receipt for a cast the service acknowledged.
func (r *Recorder) RecordVote(ctx context.Context, election votingdomain.Election, candidate votingdomain.Candidate, result votingdomain.VoteResult) error {
	return r.repo.Create(ctx, &domain.Receipt{
		ID:            uuid.New().String(),
		ElectionID:    election.ID,
		ElectionTitle: election.Title,
		CandidateName: candidate.Name,
		VoteID:        result.VoteID,
		Message:       result.Message,
		CastAt:        time.Now().UTC(),
	})
}

// List returns all stored receipts, newest first.
func (r *Recorder) List(ctx context.Context) ([]*domain.Receipt, error) {
	return r.repo.List(ctx)
}
