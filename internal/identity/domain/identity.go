package domain

// Identity is the registered voter identity as reported by the auth service.
// It is only ever replaced wholesale with a fresh copy fetched after login or
// after an MFA-affecting action; the client never mutates individual fields.
type Identity struct {
	ID          string
	Email       string
	IsActive    bool
	IsVerified  bool
	IsSuperuser bool
	MFAEnabled  bool
}
