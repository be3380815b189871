// Package mfaenroll drives a user from "no MFA" to "MFA enabled": request
// provisioning material, let the user scan (or type) the secret, then verify
// a fresh code with the service. The client never holds the TOTP secret
// beyond displaying the material the service returned.
package mfaenroll

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"securevote/client/internal/api"
	"securevote/client/internal/otpcode"
)

// State is the enrollment state.
type State string

const (
	StateIdle         State = "idle"
	StateRequesting   State = "requesting"
	StateAwaitingScan State = "awaiting_scan"
	StateVerifying    State = "verifying"
	StateVerifyFailed State = "verify_failed"
	StateEnabled      State = "enabled" // terminal
)

// ErrCodeFormat rejects a submit whose code is not exactly 6 decimal digits.
// No collaborator call is made.
var ErrCodeFormat = errors.New("code must be exactly 6 digits")

// API is the MFA service surface needed by enrollment.
type API interface {
	SetupMFA(ctx context.Context, token string) (*api.Provisioning, error)
	VerifyMFA(ctx context.Context, token, code string) (string, error)
}

// Session supplies the bearer token and absorbs the identity refresh after a
// successful enrollment. Satisfied by session.Manager.
type Session interface {
	Token() string
	RefreshIdentity(ctx context.Context)
}

// manualSecret matches the secret query parameter of an otpauth URL. The
// value is Base32 (A-Z, 2-7).
var manualSecret = regexp.MustCompile(`secret=([A-Z2-7]+)`)

// Enrollment is one enrollment attempt. Construct a fresh instance per
// attempt; abandoning the screen discards it.
type Enrollment struct {
	api     API
	session Session

	mu         sync.Mutex
	state      State
	inFlight   bool
	otpauthURL string
	qrImage    string // base64 PNG data URI
	failure    string // server message for the last failed verify
	detail     string // server message for the successful verify
}

// New returns an Enrollment in StateIdle.
func New(mfaAPI API, sess Session) *Enrollment {
	return &Enrollment{api: mfaAPI, session: sess, state: StateIdle}
}

// State returns the current enrollment state.
func (e *Enrollment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OtpauthURL returns the provisioning URL, or "" before Begin succeeds.
func (e *Enrollment) OtpauthURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.otpauthURL
}

// Failure returns the server message for the last failed verify, or "".
func (e *Enrollment) Failure() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// Detail returns the server confirmation after enrollment succeeded, or "".
func (e *Enrollment) Detail() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detail
}

// ManualSecret extracts the secret parameter of the provisioning URL for
// users whose authenticator cannot scan the QR image. Returns "" when the URL
// carries no secret; the QR path still works, so that is not an error. The
// value is display-only and never transmitted back.
func (e *Enrollment) ManualSecret() string {
	return ExtractManualSecret(e.OtpauthURL())
}

// ExtractManualSecret returns the secret query parameter of an otpauth URL,
// or "" when absent.
func ExtractManualSecret(otpauthURL string) string {
	m := manualSecret.FindStringSubmatch(otpauthURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// Begin requests provisioning material from the MFA service: Idle →
// Requesting → AwaitingScan. On failure the enrollment returns to Idle and
// the error (api.ErrSetupFailed, or api.ErrExpiredToken for a dead session)
// is surfaced. Dropped if a call is already in flight or enrollment has left
// Idle.
func (e *Enrollment) Begin(ctx context.Context) error {
	e.mu.Lock()
	if e.inFlight || e.state != StateIdle {
		e.mu.Unlock()
		return nil
	}
	e.inFlight = true
	e.state = StateRequesting
	e.mu.Unlock()

	prov, err := e.api.SetupMFA(ctx, e.session.Token())

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if err != nil {
		e.state = StateIdle
		return err
	}
	e.otpauthURL = prov.OtpauthURL
	e.qrImage = prov.QR
	e.state = StateAwaitingScan
	return nil
}

// ConfirmScanned is the explicit, user-triggered advance AwaitingScan →
// Verifying. No network call. A confirm in any other state is dropped.
func (e *Enrollment) ConfirmScanned() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAwaitingScan {
		e.state = StateVerifying
	}
}

// SubmitCode verifies a code with the MFA service. Requires Verifying or
// VerifyFailed (a retry). A code that is not exactly 6 decimal digits is
// rejected as ErrCodeFormat with no collaborator call. On success the
// enrollment is Enabled (terminal) and the session identity is refreshed; on
// a rejected code the state is VerifyFailed with the server's message and the
// user may retry. A submit while one is already in flight is dropped.
func (e *Enrollment) SubmitCode(ctx context.Context, code string) error {
	e.mu.Lock()
	if e.inFlight || (e.state != StateVerifying && e.state != StateVerifyFailed) {
		e.mu.Unlock()
		return nil
	}
	if !otpcode.Valid(code) {
		e.mu.Unlock()
		return ErrCodeFormat
	}
	e.inFlight = true
	e.state = StateVerifying
	e.failure = ""
	e.mu.Unlock()

	detail, err := e.api.VerifyMFA(ctx, e.session.Token(), code)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		e.state = StateVerifyFailed
		e.failure = api.Message(err)
		e.mu.Unlock()
		return err
	}
	e.state = StateEnabled
	e.detail = detail
	e.mu.Unlock()

	// Server-side flags changed; pick up MFAEnabled. Best-effort by design.
	e.session.RefreshIdentity(ctx)
	return nil
}

// WriteQR decodes the base64 PNG data URI and writes it to path, so a
// terminal user can open and scan it.
func (e *Enrollment) WriteQR(path string) error {
	e.mu.Lock()
	qr := e.qrImage
	e.mu.Unlock()
	if qr == "" {
		return errors.New("no QR image; call Begin first")
	}
	idx := strings.Index(qr, "base64,")
	if idx < 0 {
		return fmt.Errorf("unexpected QR image encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(qr[idx+len("base64,"):])
	if err != nil {
		return fmt.Errorf("decode QR image: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}
