package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLocaleTag(t *testing.T) {
	tests := []struct {
		lcAll, lang string
		expected    language.Tag
	}{
		{"", "de_DE.UTF-8", language.German},
		{"en_GB.UTF-8", "de_DE.UTF-8", language.English},
		{"", "C", language.English},
		{"", "", language.English},
		{"", "ja_JP.UTF-8", language.English},
	}

	for _, tt := range tests {
		t.Setenv("LC_ALL", tt.lcAll)
		t.Setenv("LANG", tt.lang)

		base, _ := LocaleTag().Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "LC_ALL=%q LANG=%q", tt.lcAll, tt.lang)
	}
}

func TestGermanCatalog(t *testing.T) {
	p := NewPrinter(language.German)
	assert.Equal(t, "LEDs sind an\n", p.Sprintf("LEDs are %s\n", "an"))

	p = NewPrinter(language.English)
	assert.Equal(t, "LEDs are on\n", p.Sprintf("LEDs are %s\n", "on"))
}
