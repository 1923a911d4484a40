// Package catalog holds the business catalogue of the bot: user-facing texts, the main menu,
// dialing codes, duty presets, VAT regions and the language-model prompts.
//
// The catalogue is YAML. A default is embedded in the binary and can be replaced at startup
// with a file of the same shape.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ManualDutyValue is the choice value of the "enter your own rate" option.
const ManualDutyValue = "manual"

// Choice values of the document analysis keyboard.
const (
	DocAnalyzeValue = "analyze"
	DocBackValue    = "back"
)

// Main menu choice values.
const (
	MenuOrder     = "order"
	MenuCustoms   = "customs"
	MenuDocuments = "documents"
	MenuManager   = "manager"
)

var (
	ErrNoCountryCodes = errors.New("catalog: at least one country code is required")
	ErrNoDutyPresets  = errors.New("catalog: at least one duty preset is required")
	ErrNoVATRegions   = errors.New("catalog: at least one VAT region is required")
)

// CountryCode is a dialing code option. Digits is the number of national digits expected
// after the code; zero means the participant types a full international number.
type CountryCode struct {
	Value  string `yaml:"value"`
	Label  string `yaml:"label"`
	Code   string `yaml:"code"`
	Digits int    `yaml:"digits"`
}

// DutyPreset is a preset customs duty rate.
type DutyPreset struct {
	Label   string `yaml:"label"`
	Percent string `yaml:"percent"`
}

// VATRegion binds a destination region to its VAT percentage.
type VATRegion struct {
	Value   string `yaml:"value"`
	Label   string `yaml:"label"`
	Percent string `yaml:"percent"`
}

// Menu holds the main menu labels.
type Menu struct {
	Order     string `yaml:"order"`
	Customs   string `yaml:"customs"`
	Documents string `yaml:"documents"`
	Manager   string `yaml:"manager"`
}

// Prompts are the fixed system prompts sent to the language model.
type Prompts struct {
	Advisory   string `yaml:"advisory"`
	Consultant string `yaml:"consultant"`
	Documents  string `yaml:"documents"`
}

// Texts are the user-facing messages. Placeholders use {name} syntax, see Fill.
type Texts struct {
	Welcome        string `yaml:"welcome"`
	Menu           string `yaml:"menu"`
	Cancelled      string `yaml:"cancelled"`
	ChoiceRejected string `yaml:"choice_rejected"`
	EmptyText      string `yaml:"empty_text"`
	FlowRestarted  string `yaml:"flow_restarted"`

	OrderName                    string `yaml:"order_name"`
	OrderPhoneCountry            string `yaml:"order_phone_country"`
	OrderPhoneDigits             string `yaml:"order_phone_digits"`
	OrderPhoneInternational      string `yaml:"order_phone_international"`
	OrderPhoneWrongDigits        string `yaml:"order_phone_wrong_digits"`
	OrderPhoneWrongInternational string `yaml:"order_phone_wrong_international"`
	OrderCargo                   string `yaml:"order_cargo"`
	OrderValue                   string `yaml:"order_value"`
	OrderOrigin                  string `yaml:"order_origin"`
	OrderDestination             string `yaml:"order_destination"`
	OrderWeight                  string `yaml:"order_weight"`
	OrderVolume                  string `yaml:"order_volume"`
	OrderAccepted                string `yaml:"order_accepted"`
	OrderReceived                string `yaml:"order_received"`

	CustomsCargoName    string `yaml:"customs_cargo_name"`
	CustomsDutyChoice   string `yaml:"customs_duty_choice"`
	AdvisoryFallback    string `yaml:"advisory_fallback"`
	CustomsManualDuty   string `yaml:"customs_manual_duty"`
	CustomsDutyAccepted string `yaml:"customs_duty_accepted"`
	CustomsRegion       string `yaml:"customs_region"`
	InvalidNumber       string `yaml:"invalid_number"`
	InvalidPrice        string `yaml:"invalid_price"`
	CustomsResult       string `yaml:"customs_result"`

	DocIntro        string `yaml:"doc_intro"`
	DocAnalyzeLabel string `yaml:"doc_analyze_label"`
	DocBackLabel    string `yaml:"doc_back_label"`
	DocExpectPhoto  string `yaml:"doc_expect_photo"`
	DocEmptyBatch   string `yaml:"doc_empty_batch"`
	DocReport       string `yaml:"doc_report"`
	DocFailed       string `yaml:"doc_failed"`

	Manager            string `yaml:"manager"`
	Geography          string `yaml:"geography"`
	ConsultantReply    string `yaml:"consultant_reply"`
	ConsultantFallback string `yaml:"consultant_fallback"`
}

// Catalog is the complete business catalogue.
type Catalog struct {
	Company           string        `yaml:"company"`
	Menu              Menu          `yaml:"menu"`
	CountryCodes      []CountryCode `yaml:"country_codes"`
	DutyPresets       []DutyPreset  `yaml:"duty_presets"`
	ManualDutyLabel   string        `yaml:"manual_duty_label"`
	VATRegions        []VATRegion   `yaml:"vat_regions"`
	GeographyKeywords []string      `yaml:"geography_keywords"`
	Prompts           Prompts       `yaml:"prompts"`
	Texts             Texts         `yaml:"texts"`
}

// Default returns the embedded catalogue. It panics if the embedded file is broken,
// which is a build defect.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalogue from path. An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		slog.Debug("Catalog Load: no path given, using embedded default")
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	slog.Info("Catalog loaded", "path", path, "country_codes", len(c.CountryCodes), "duty_presets", len(c.DutyPresets), "vat_regions", len(c.VATRegions))
	return c, nil
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the closed sets are non-empty and every percentage is a non-negative number.
func (c *Catalog) Validate() error {
	if len(c.CountryCodes) == 0 {
		return ErrNoCountryCodes
	}
	if len(c.DutyPresets) == 0 {
		return ErrNoDutyPresets
	}
	if len(c.VATRegions) == 0 {
		return ErrNoVATRegions
	}
	for _, p := range c.DutyPresets {
		if err := checkPercent(p.Percent); err != nil {
			return fmt.Errorf("catalog: duty preset %q: %w", p.Label, err)
		}
	}
	for _, r := range c.VATRegions {
		if r.Value == "" {
			return fmt.Errorf("catalog: VAT region %q has no value", r.Label)
		}
		if err := checkPercent(r.Percent); err != nil {
			return fmt.Errorf("catalog: VAT region %q: %w", r.Label, err)
		}
	}
	for _, cc := range c.CountryCodes {
		if cc.Value == "" || cc.Digits < 0 {
			return fmt.Errorf("catalog: invalid country code %q", cc.Label)
		}
	}
	return nil
}

func checkPercent(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid percent %q: %w", s, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("negative percent %q", s)
	}
	return nil
}

// Fill replaces {key} placeholders in tmpl with the given key/value pairs.
func Fill(tmpl string, kv ...string) string {
	if len(kv) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// MainMenu returns the top-level menu choices.
func (c *Catalog) MainMenu() []models.Choice {
	return []models.Choice{
		{Value: MenuOrder, Label: c.Menu.Order},
		{Value: MenuCustoms, Label: c.Menu.Customs},
		{Value: MenuDocuments, Label: c.Menu.Documents},
		{Value: MenuManager, Label: c.Menu.Manager},
	}
}

// CountryChoices returns the dialing code options.
func (c *Catalog) CountryChoices() []models.Choice {
	out := make([]models.Choice, 0, len(c.CountryCodes))
	for _, cc := range c.CountryCodes {
		out = append(out, models.Choice{Value: cc.Value, Label: cc.Label})
	}
	return out
}

// Country looks up a dialing code option by value.
func (c *Catalog) Country(value string) (CountryCode, bool) {
	for _, cc := range c.CountryCodes {
		if cc.Value == value {
			return cc, true
		}
	}
	return CountryCode{}, false
}

// DutyChoices returns the preset rates followed by the manual entry marker.
func (c *Catalog) DutyChoices() []models.Choice {
	out := make([]models.Choice, 0, len(c.DutyPresets)+1)
	for _, p := range c.DutyPresets {
		out = append(out, models.Choice{Value: p.Percent, Label: p.Label})
	}
	return append(out, models.Choice{Value: ManualDutyValue, Label: c.ManualDutyLabel})
}

// RegionChoices returns the VAT region options.
func (c *Catalog) RegionChoices() []models.Choice {
	out := make([]models.Choice, 0, len(c.VATRegions))
	for _, r := range c.VATRegions {
		out = append(out, models.Choice{Value: r.Value, Label: r.Label})
	}
	return out
}

// Region looks up a VAT region by value.
func (c *Catalog) Region(value string) (VATRegion, bool) {
	for _, r := range c.VATRegions {
		if r.Value == value {
			return r, true
		}
	}
	return VATRegion{}, false
}

// DocChoices returns the keyboard shown while collecting documents.
func (c *Catalog) DocChoices() []models.Choice {
	return []models.Choice{
		{Value: DocAnalyzeValue, Label: c.Texts.DocAnalyzeLabel},
		{Value: DocBackValue, Label: c.Texts.DocBackLabel},
	}
}

// IsGeographyQuestion reports whether text mentions any geography keyword.
func (c *Catalog) IsGeographyQuestion(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.GeographyKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
