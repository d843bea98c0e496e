package mpesa

import (
	"fmt"
	"strings"
)

// NormalizePhone canonicalizes a mobile number to the international digits-only
// form the gateway expects (e.g. 2547XXXXXXXX). Accepted inputs: 07XXXXXXXX,
// 01XXXXXXXX, +<cc>7XXXXXXXX and the already-canonical form. Anything else is
// rejected before a request is made.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = defaultCountryCode
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(raw))

	cleaned = strings.TrimPrefix(cleaned, "+")

	switch {
	case strings.HasPrefix(cleaned, countryCode):
		// already canonical
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		cleaned = countryCode + cleaned[1:]
	default:
		return "", fmt.Errorf("unrecognized phone number format %q", raw)
	}

	if len(cleaned) != len(countryCode)+9 {
		return "", fmt.Errorf("phone number %q has wrong length", raw)
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number %q contains non-digits", raw)
		}
	}
	return cleaned, nil
}
