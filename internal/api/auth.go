package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	identitydomain "securevote/client/internal/identity/domain"
)

// userJSON is the identity shape returned by /auth/register and /auth/users/me.
type userJSON struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
	IsVerified  bool   `json:"is_verified"`
	MFAEnabled  bool   `json:"mfa_enabled"`
}

func (u *userJSON) toDomain() *identitydomain.Identity {
	return &identitydomain.Identity{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		IsSuperuser: u.IsSuperuser,
		MFAEnabled:  u.MFAEnabled,
	}
}

// Register creates a new identity. A 400 from the service means the email is
// already registered and is returned as ErrDuplicateEmail.
func (c *Client) Register(ctx context.Context, email, password string) (*identitydomain.Identity, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var user userJSON
	err = c.do(ctx, "auth.register", http.MethodPost, "/auth/register", "", "application/json", payload, &user)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusBadRequest {
			return nil, withKind(err, ErrDuplicateEmail)
		}
		return nil, err
	}
	return user.toDomain(), nil
}

// Login exchanges credentials for a bearer token. The endpoint takes a
// form-encoded body with a "username" field carrying the email. A 4xx is
// returned as ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	err := c.do(ctx, "auth.login", http.MethodPost, "/auth/jwt/login",
		"", "application/x-www-form-urlencoded", []byte(form.Encode()), &body)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status >= 400 && apiErr.Status < 500 {
			return "", withKind(err, ErrInvalidCredentials)
		}
		return "", err
	}
	return body.AccessToken, nil
}

// CurrentUser fetches the identity for token. A 401 means the token is
// expired or invalid and is returned as ErrExpiredToken.
func (c *Client) CurrentUser(ctx context.Context, token string) (*identitydomain.Identity, error) {
	var user userJSON
	err := c.do(ctx, "auth.current_user", http.MethodGet, "/auth/users/me", token, "", nil, &user)
	if err != nil {
		if apiErr, ok := err.(*Error); ok && apiErr.Status == http.StatusUnauthorized {
			return nil, withKind(err, ErrExpiredToken)
		}
		return nil, err
	}
	return user.toDomain(), nil
}
