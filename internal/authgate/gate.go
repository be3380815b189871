// Package authgate decides what an identity may do, given its current flags.
// Pure predicates, no side effects: the authoritative gating (eligibility,
// one vote per identity, code correctness) lives on the remote service, and
// these checks only exist so screens can redirect instead of rendering dead
// controls.
package authgate

import identitydomain "securevote/client/internal/identity/domain"

// CanBrowseElections reports whether the identity may open the election
// catalog. Requires MFA to be enabled; a false verdict must redirect to MFA
// enrollment.
func CanBrowseElections(identity *identitydomain.Identity) bool {
	return identity != nil && identity.MFAEnabled
}

// CanEnterVotingSession reports whether the identity may enter a voting
// session for any election. Same rule as browsing: MFA first.
func CanEnterVotingSession(identity *identitydomain.Identity) bool {
	return identity != nil && identity.MFAEnabled
}

// CanManageMFA reports whether the identity may open MFA enrollment. Always
// true for a known identity, regardless of current MFA state.
func CanManageMFA(identity *identitydomain.Identity) bool {
	return identity != nil
}
