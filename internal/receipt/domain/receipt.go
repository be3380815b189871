// Package domain defines the local vote receipt.
package domain

import "time"

// Receipt is the local record of a successful ballot cast. It exists for
// display and audit on the voter's machine only: the vote ID is opaque and
// never replayed to the service.
type Receipt struct {
	ID            string
	ElectionID    string
	ElectionTitle string
	CandidateName string
	VoteID        string
	Message       string
	CastAt        time.Time
}
