// Package otpcode handles the 6-digit TOTP code format shared by MFA
// enrollment and vote confirmation. Codes are verified entirely by the remote
// service; this package only gates obviously malformed input so no doomed
// round trip is issued.
package otpcode

import "strings"

// Digits is the required code length.
const Digits = 6

// Normalize strips non-digit characters and truncates to Digits. This is the
// input-layer convenience applied before validation, not a security boundary.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == Digits {
				break
			}
		}
	}
	return b.String()
}

// Valid reports whether code is exactly Digits decimal digits.
func Valid(code string) bool {
	if len(code) != Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
