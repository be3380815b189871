// Package telemetry emits structured client events (login, MFA enabled, vote
// cast) as OTel log records. Emission is best-effort everywhere: a voter's
// workflow never blocks on, or fails because of, telemetry.
package telemetry

import (
	"context"
	"time"
)

// Event is one structured client event.
type Event struct {
	// Name identifies the event, e.g. "login", "mfa_enabled", "vote_cast".
	Name string
	// UserID is the acting identity, if known.
	UserID string
	// ElectionID is set for voting events.
	ElectionID string
	// Detail carries the user-facing message associated with the event.
	Detail string
	// At is the event time; zero means "now".
	At time.Time
}

// EventEmitter emits client events. Best-effort; callers log and ignore
// errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Nop is an EventEmitter that discards everything.
type Nop struct{}

func (Nop) Emit(context.Context, *Event) error { return nil }
