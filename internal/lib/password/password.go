// Package password holds the account password policy.
package password

import "unicode"

// Validate reports every violated policy rule; an empty slice means the
// password is acceptable. All rules are checked so the caller can show
// the full list at once.
func Validate(pw string) []string {
	var msgs []string

	if len(pw) < 8 {
		msgs = append(msgs, "password must be at least 8 characters")
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		msgs = append(msgs, "password must contain an upper-case letter")
	}
	if !hasLower {
		msgs = append(msgs, "password must contain a lower-case letter")
	}
	if !hasDigit {
		msgs = append(msgs, "password must contain a digit")
	}

	return msgs
}
