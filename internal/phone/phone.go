// Package phone normalizes Kenyan mobile numbers to the canonical
// 254XXXXXXXXX form the backend expects.
package phone

import (
	"errors"
	"strings"
)

const countryCode = "254"

// ErrInvalidPhone is returned for any input that cannot be normalized.
var ErrInvalidPhone = errors.New("invalid phone number format, use 07XXXXXXXX or 2547XXXXXXXX")

// validPrefix reports whether b is an accepted mobile prefix digit.
// Safaricom and newer operator ranges start with 7 or 1.
func validPrefix(b byte) bool {
	return b == '7' || b == '1'
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Normalize converts a user-entered phone number into the canonical
// 12-digit 254-prefixed form. Accepted shapes: 2547XXXXXXXX / 2541XXXXXXXX,
// 07XXXXXXXX / 01XXXXXXXX, and bare 7XXXXXXXX / 1XXXXXXXX, with optional
// leading + and embedded spaces or hyphens. Normalize is idempotent on
// already-canonical input.
func Normalize(input string) (string, error) {
	raw := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(input))
	raw = strings.TrimPrefix(raw, "+")

	if !allDigits(raw) {
		return "", ErrInvalidPhone
	}

	switch {
	case len(raw) == 12 && strings.HasPrefix(raw, countryCode) && validPrefix(raw[3]):
		return raw, nil
	case len(raw) == 10 && raw[0] == '0' && validPrefix(raw[1]):
		return countryCode + raw[1:], nil
	case len(raw) == 9 && validPrefix(raw[0]):
		return countryCode + raw, nil
	}
	return "", ErrInvalidPhone
}
