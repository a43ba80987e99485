package reminders

import (
	"fmt"
	"strings"
)

// defaultCountryCode replaces a leading "0" when normalizing local numbers,
// matching the original deployment's numbering plan.
const defaultCountryCode = "62"

// NormalizePhone converts raw user input to digits-only international form.
// Accepted input may carry "+", spaces, dashes or parentheses; a leading "0"
// is replaced with the country code.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = defaultCountryCode
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separator noise
		default:
			return "", fmt.Errorf("%w: phone number contains %q", ErrInvalid, r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = countryCode + digits[1:]
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%w: phone number must be 8-15 digits, got %d", ErrInvalid, len(digits))
	}
	return digits, nil
}

// ValidMessage reports whether a reminder message is deliverable.
func ValidMessage(msg string) bool {
	return strings.TrimSpace(msg) != ""
}
