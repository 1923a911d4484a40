package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, "Logistics Manager", c.Company)
	assert.Len(t, c.MainMenu(), 4)
	assert.NotEmpty(t, c.Texts.Welcome)
	assert.NotEmpty(t, c.Prompts.Consultant)
}

func TestDutyChoicesEndWithManualMarker(t *testing.T) {
	c := Default()
	choices := c.DutyChoices()
	require.Len(t, choices, len(c.DutyPresets)+1)
	assert.Equal(t, ManualDutyValue, choices[len(choices)-1].Value)
	assert.Equal(t, "5", choices[0].Value)
}

func TestCountryAndRegionLookup(t *testing.T) {
	c := Default()

	cc, ok := c.Country("+86")
	require.True(t, ok)
	assert.Equal(t, 11, cc.Digits)

	other, ok := c.Country("other")
	require.True(t, ok)
	assert.Zero(t, other.Digits)

	r, ok := c.Region("kz")
	require.True(t, ok)
	assert.Equal(t, "16", r.Percent)

	_, ok = c.Region("mars")
	assert.False(t, ok)
}

func TestFill(t *testing.T) {
	got := Fill("Вы выбрали {code}. Введите ровно {digits} цифр", "code", "+48", "digits", "9")
	assert.Equal(t, "Вы выбрали +48. Введите ровно 9 цифр", got)
	assert.Equal(t, "plain", Fill("plain"))
}

func TestIsGeographyQuestion(t *testing.T) {
	c := Default()
	assert.True(t, c.IsGeographyQuestion("А ГДЕ ваш склад?"))
	assert.True(t, c.IsGeographyQuestion("адрес офиса"))
	assert.False(t, c.IsGeographyQuestion("сколько стоит доставка"))
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no countries", "duty_presets: [{label: a, percent: '5'}]\nvat_regions: [{value: kz, label: k, percent: '16'}]"},
		{"no presets", "country_codes: [{value: '+7', label: a, code: '+7', digits: 10}]\nvat_regions: [{value: kz, label: k, percent: '16'}]"},
		{"negative vat", "country_codes: [{value: '+7', label: a, code: '+7', digits: 10}]\nduty_presets: [{label: a, percent: '5'}]\nvat_regions: [{value: kz, label: k, percent: '-1'}]"},
		{"bad percent", "country_codes: [{value: '+7', label: a, code: '+7', digits: 10}]\nduty_presets: [{label: a, percent: 'five'}]\nvat_regions: [{value: kz, label: k, percent: '16'}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, defaultYAML, 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Company, c.Company)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
