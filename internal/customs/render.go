package customs

import "github.com/iskan70/my-logistic-bot/internal/catalog"

// Render fills the catalogue result template for cargo.
func (r Result) Render(tmpl, cargo string) string {
	return catalog.Fill(tmpl,
		"cargo", cargo,
		"price", FormatMoney(r.Price),
		"duty_percent", Canonical(r.DutyPercent),
		"duty", FormatMoney(r.DutyAmount),
		"vat_percent", Canonical(r.VATPercent),
		"vat", FormatMoney(r.VATAmount),
		"total", FormatMoney(r.Total),
	)
}
