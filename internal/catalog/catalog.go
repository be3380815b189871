// Package catalog fetches and caches the election list visible to the current
// session. No client-side filtering happens here: every election the service
// returns is kept, and IsVotingOpen decides downstream whether the vote action
// is offered or the election is view-only.
package catalog

import (
	"context"
	"sync"

	votingdomain "securevote/client/internal/voting/domain"
)

// API is the voting-service surface needed by the catalog.
type API interface {
	ListElections(ctx context.Context, token string) ([]votingdomain.Election, error)
}

// Session supplies the bearer token. Satisfied by session.Manager.
type Session interface {
	Token() string
}

// Catalog caches the election list for a browsing session. Elections are
// immutable once fetched; Refresh replaces the whole list. An empty list is a
// valid, non-error result.
type Catalog struct {
	api     API
	session Session

	mu        sync.Mutex
	inFlight  bool
	loaded    bool
	elections []votingdomain.Election
}

// New returns an empty, unloaded Catalog.
func New(votingAPI API, sess Session) *Catalog {
	return &Catalog{api: votingAPI, session: sess}
}

// Loaded reports whether at least one fetch has succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Elections returns the cached list in service order. Call List or Refresh
// first; before the first successful fetch the list is empty.
func (c *Catalog) Elections() []votingdomain.Election {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]votingdomain.Election, len(c.elections))
	copy(out, c.elections)
	return out
}

// ElectionByID returns the cached election with the given ID, or nil.
func (c *Catalog) ElectionByID(id string) *votingdomain.Election {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.elections {
		if c.elections[i].ID == id {
			e := c.elections[i]
			return &e
		}
	}
	return nil
}

// List returns the cached elections, fetching once on first use. Failures are
// recoverable: the cache stays unloaded and the caller retries by calling List
// again (user-triggered, never automatic).
func (c *Catalog) List(ctx context.Context) ([]votingdomain.Election, error) {
	c.mu.Lock()
	if c.loaded {
		out := make([]votingdomain.Election, len(c.elections))
		copy(out, c.elections)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh re-fetches the list unconditionally, replacing the cache on success
// and leaving it untouched on failure. A refresh while one is already in
// flight is dropped and returns the current cache.
func (c *Catalog) Refresh(ctx context.Context) ([]votingdomain.Election, error) {
	c.mu.Lock()
	if c.inFlight {
		out := make([]votingdomain.Election, len(c.elections))
		copy(out, c.elections)
		c.mu.Unlock()
		return out, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	elections, err := c.api.ListElections(ctx, c.session.Token())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		out := make([]votingdomain.Election, len(c.elections))
		copy(out, c.elections)
		return out, err
	}
	c.loaded = true
	c.elections = elections
	out := make([]votingdomain.Election, len(elections))
	copy(out, elections)
	return out, nil
}
