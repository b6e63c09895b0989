// Package i18n picks a message printer for CLI output from the locale
// environment.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

func init() {
	for key, msg := range german {
		_ = message.SetString(language.German, key, msg)
	}
}

// german holds the translated CLI strings. Keys are the English format
// strings.
var german = map[string]string{
	"Error: %v\n":               "Fehler: %v\n",
	"LEDs are %s\n":             "LEDs sind %s\n",
	"Blocked %s\n":              "%s gesperrt\n",
	"Unblocked %s\n":            "%s entsperrt\n",
	"Password stored for %s\n":  "Passwort für %s gespeichert\n",
	"Password removed for %s\n": "Passwort für %s entfernt\n",
	"Wrote %s\n":                "%s geschrieben\n",
	"Configuration valid!\n":    "Konfiguration gültig!\n",
	"No devices\n":              "Keine Geräte\n",
	"Unknown command: %s\n":     "Unbekannter Befehl: %s\n",
}

// MatchLanguage returns the best supported language for a locale or
// Accept-Language style string.
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	return NewPrinter(LocaleTag())
}

// LocaleTag reads LC_ALL, then LANG, and maps the result onto a supported
// language.
func LocaleTag() language.Tag {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding (e.g. .UTF-8) if present
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
