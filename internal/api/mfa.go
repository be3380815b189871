package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Provisioning is the MFA enrollment material returned by /mfa/setup. QR is a
// base64 PNG data URI of the otpauth URL.
type Provisioning struct {
	OtpauthURL string
	QR         string
}

// SetupMFA starts (or resumes) TOTP enrollment for the identity behind token.
// A 401 is ErrExpiredToken; any other failure is ErrSetupFailed.
func (c *Client) SetupMFA(ctx context.Context, token string) (*Provisioning, error) {
	var body struct {
		OtpauthURL string `json:"otpauth_url"`
		QR         string `json:"qr"`
	}
	err := c.do(ctx, "mfa.setup", http.MethodPost, "/mfa/setup", token, "", nil, &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok {
			if apiErr.Status == http.StatusUnauthorized {
				return nil, withKind(err, ErrExpiredToken)
			}
			return nil, withKind(err, ErrSetupFailed)
		}
		return nil, err
	}
	return &Provisioning{OtpauthURL: body.OtpauthURL, QR: body.QR}, nil
}

// VerifyMFA submits a TOTP code to finish enrollment and returns the server
// detail on success. The service answers 401 both for a bad code and for a bad
// token; a 401 carrying the known bad-code detail is ErrInvalidCode, any other
// 401 is ErrExpiredToken.
func (c *Client) VerifyMFA(ctx context.Context, token, code string) (string, error) {
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return "", err
	}
	var body struct {
		Detail string `json:"detail"`
	}
	err = c.do(ctx, "mfa.verify", http.MethodPost, "/mfa/verify", token, "application/json", payload, &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			if apiErr.Detail == "Invalid TOTP" {
				return "", withKind(err, ErrInvalidCode)
			}
			return "", withKind(err, ErrExpiredToken)
		}
		return "", err
	}
	return body.Detail, nil
}
