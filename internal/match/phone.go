package match

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const minPhoneDigits = 6

// NormalizePhone formats raw as E.164 using region (ISO alpha-2) for numbers
// written without a country prefix. Numbers the library cannot validate are
// reduced to digits with an optional leading "+"; fragments too short to be
// a phone number become "".
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = "ZZ"
	}
	if num, err := phonenumbers.Parse(raw, region); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return cleanDigits(raw)
}

func cleanDigits(raw string) string {
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits < minPhoneDigits {
		return ""
	}
	return b.String()
}
