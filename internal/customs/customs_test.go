package customs

import (
	"strings"
	"testing"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestCalculateScenarios(t *testing.T) {
	tests := []struct {
		name                         string
		price, duty, vat             string
		wantDuty, wantVAT, wantTotal string
	}{
		{"reference", "100.00", "5", "20", "5", "21", "26"},
		{"zero price", "0", "10", "20", "0", "0", "0"},
		{"small price", "10.00", "5", "0", "0.5", "0", "0.5"},
		{"kazakhstan electronics", "12000", "5", "16", "600", "2016", "2616"},
		{"russia clothing", "1500.50", "12", "22", "180.06", "369.7232", "549.7832"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Calculate(dec(t, tt.price), dec(t, tt.duty), dec(t, tt.vat))
			assert.True(t, r.DutyAmount.Equal(dec(t, tt.wantDuty)), "duty: got %s", r.DutyAmount)
			assert.True(t, r.VATAmount.Equal(dec(t, tt.wantVAT)), "vat: got %s", r.VATAmount)
			assert.True(t, r.Total.Equal(dec(t, tt.wantTotal)), "total: got %s", r.Total)
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	triples := [][3]string{
		{"100", "5", "20"},
		{"0.01", "3", "16"},
		{"999999.99", "12", "22"},
		{"33.33", "7.5", "12.5"},
	}
	for _, tr := range triples {
		p, d, v := dec(t, tr[0]), dec(t, tr[1]), dec(t, tr[2])
		first := Calculate(p, d, v)
		for i := 0; i < 5; i++ {
			again := Calculate(p, d, v)
			assert.True(t, first.Total.Equal(again.Total))
			assert.True(t, first.DutyAmount.Equal(again.DutyAmount))
			assert.True(t, first.VATAmount.Equal(again.VATAmount))
		}
		assert.True(t, first.Total.Equal(first.DutyAmount.Add(first.VATAmount)), "total must equal duty+vat for %v", tr)
		assert.False(t, first.Total.IsNegative())
	}
}

func TestFormatMoneyHasNoFloatArtifacts(t *testing.T) {
	r := Calculate(dec(t, "10.00"), dec(t, "5"), decimal.Zero)
	assert.Equal(t, "0.50", FormatMoney(r.DutyAmount))

	assert.Equal(t, "0.00", FormatMoney(decimal.Zero))
	assert.Equal(t, "1,234.50", FormatMoney(dec(t, "1234.5")))
	assert.Equal(t, "1,000,000.00", FormatMoney(dec(t, "1000000")))
	assert.Equal(t, "999.99", FormatMoney(dec(t, "999.994")))
	assert.Equal(t, "-12,345.00", FormatMoney(dec(t, "-12345")))
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		"5":       "5",
		"5,5":     "5.5",
		" 12.75 ": "12.75",
		"0":       "0",
		"100,00":  "100",
		"0007":    "7",
	}
	for in, want := range valid {
		got, err := CanonicalAmount(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	for _, in := range []string{"", "-5", "abc", "5%", "1 000", "1.2.3", ".5", "5."} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
	}
}

func TestCanonicalMergesEquivalentForms(t *testing.T) {
	a, err := CanonicalAmount("5")
	require.NoError(t, err)
	b, err := CanonicalAmount("5,00")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRender(t *testing.T) {
	c := catalog.Default()
	r := Calculate(dec(t, "100"), dec(t, "5"), dec(t, "20"))
	out := r.Render(c.Texts.CustomsResult, "Ноутбуки")

	assert.Contains(t, out, "Ноутбуки")
	assert.Contains(t, out, "$100.00")
	assert.Contains(t, out, "(5%): $5.00")
	assert.Contains(t, out, "(20%): $21.00")
	assert.Contains(t, out, "$26.00")
	assert.False(t, strings.Contains(out, "{"), "unfilled placeholder in %q", out)
}
