// Package customs implements the preliminary customs duty and VAT estimate.
//
// All arithmetic uses decimal numbers so that presentation at two decimals never shows
// binary floating point artifacts.
package customs

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// amountRegex accepts a non-negative number with an optional fractional part.
var amountRegex = regexp.MustCompile(`^\d+(\.\d+)?$`)

var (
	// ErrInvalidAmount is returned when an input is not a non-negative decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Result is a complete duty and VAT estimate.
type Result struct {
	Price       decimal.Decimal `json:"price"`
	DutyPercent decimal.Decimal `json:"duty_percent"`
	VATPercent  decimal.Decimal `json:"vat_percent"`
	DutyAmount  decimal.Decimal `json:"duty_amount"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Total       decimal.Decimal `json:"total"`
}

// Calculate computes duty = price*duty%/100, vat = (price+duty)*vat%/100 and
// total = duty+vat. It is pure; rounding happens only in FormatMoney.
func Calculate(price, dutyPercent, vatPercent decimal.Decimal) Result {
	duty := price.Mul(dutyPercent).Div(hundred)
	vat := price.Add(duty).Mul(vatPercent).Div(hundred)
	return Result{
		Price:       price,
		DutyPercent: dutyPercent,
		VATPercent:  vatPercent,
		DutyAmount:  duty,
		VATAmount:   vat,
		Total:       duty.Add(vat),
	}
}

// ParseAmount parses a non-negative decimal written with a dot or a comma as the
// fractional separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if !amountRegex.MatchString(v) {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Canonical returns the shortest exact representation of d ("5.00" -> "5").
// Values collected through different paths are stored in this form so they compare equal.
func Canonical(d decimal.Decimal) string {
	return d.String()
}

// CanonicalAmount parses s and returns its canonical form.
func CanonicalAmount(s string) (string, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return "", err
	}
	return Canonical(d), nil
}

// FormatMoney renders d with two decimals and comma thousands separators, e.g. 1,234.50.
func FormatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
