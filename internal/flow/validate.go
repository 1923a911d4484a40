package flow

import (
	"strings"
	"unicode"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/customs"
)

// International numbers entered without a preset code must carry this many digits.
const (
	MinInternationalDigits = 10
	MaxInternationalDigits = 15
)

// ValidateText accepts any input that is non-empty after trimming.
func ValidateText(input string) (string, bool) {
	v := strings.TrimSpace(input)
	return v, v != ""
}

// StripDigits returns only the decimal digits of s.
func StripDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhone checks input against the chosen country code. With a preset code the
// stripped digit count must equal cc.Digits and the result is code+digits. Without one
// (cc.Digits == 0) the input must start with "+" and carry 10 to 15 digits.
// It returns the normalized number and the digit count found.
func ValidatePhone(input string, cc catalog.CountryCode) (string, int, bool) {
	digits := StripDigits(input)
	if cc.Digits > 0 {
		if len(digits) != cc.Digits {
			return "", len(digits), false
		}
		return cc.Code + digits, len(digits), true
	}
	trimmed := strings.TrimLeftFunc(input, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, "+") {
		return "", len(digits), false
	}
	if len(digits) < MinInternationalDigits || len(digits) > MaxInternationalDigits {
		return "", len(digits), false
	}
	return "+" + digits, len(digits), true
}

// ValidateDecimal accepts a non-negative number written with a dot or a comma and returns
// its canonical form.
func ValidateDecimal(input string) (string, bool) {
	v, err := customs.CanonicalAmount(input)
	if err != nil {
		return "", false
	}
	return v, true
}
