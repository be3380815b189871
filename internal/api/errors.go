package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for service responses; callers match with errors.Is. The
// wrapping *Error keeps the server's detail string for display.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("an account with this email already exists")
	ErrExpiredToken       = errors.New("session token expired or invalid")
	ErrSetupFailed        = errors.New("MFA setup failed")
	ErrInvalidCode        = errors.New("invalid MFA code")
	ErrAlreadyVoted       = errors.New("vote already cast in this election")
	ErrElectionClosed     = errors.New("voting is not open for this election")
	ErrNotEligible        = errors.New("not eligible to vote in this election")
)

// Error is a non-2xx service response. Detail is the server's human-readable
// detail string when one was returned. Kind, when set, is one of the sentinel
// errors above and is matched by errors.Is through Unwrap.
type Error struct {
	Status int
	Detail string
	Kind   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("service returned status %d", e.Status)
}

func (e *Error) Unwrap() error { return e.Kind }

// Message returns the user-displayable message for err: the server detail for
// service errors, the error text otherwise.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
