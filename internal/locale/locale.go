// Package locale stores the user's language preference and resolves it to a UI language.
package locale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/florianilch/tokenward/internal/tokenstore"
)

// PreferenceKey is the store key of the language preference.
const PreferenceKey = "user-language-preference"

// Preference is the user's choice: follow the device, or a fixed language.
type Preference string

const (
	PreferenceSystem  Preference = "system"
	PreferenceEnglish Preference = "en"
	PreferenceHebrew  Preference = "he"
)

// Preferences lists the valid preferences in display order.
var Preferences = []Preference{PreferenceSystem, PreferenceEnglish, PreferenceHebrew}

// Supported are the UI languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.Hebrew}

// ErrUnknownPreference is returned when saving a preference outside Preferences.
var ErrUnknownPreference = errors.New("unknown language preference")

// Label returns the name shown for p in a language picker.
func (p Preference) Label() string {
	switch p {
	case PreferenceSystem:
		return "System"
	case PreferenceEnglish:
		return "English"
	case PreferenceHebrew:
		return "עברית"
	default:
		return string(p)
	}
}

func (p Preference) valid() bool {
	for _, known := range Preferences {
		if p == known {
			return true
		}
	}
	return false
}

// Resolve returns the UI language for pref on a device whose language is device.
// Unsupported languages fall back to English.
func Resolve(pref Preference, device language.Tag) language.Tag {
	if pref == PreferenceSystem {
		return supported(device)
	}
	tag, err := language.Parse(string(pref))
	if err != nil {
		return Supported[0]
	}
	return supported(tag)
}

// supported reduces tag to its base language if that is supported.
func supported(tag language.Tag) language.Tag {
	base, _ := tag.Base()
	// iw is the deprecated code for Hebrew.
	if base.String() == "iw" {
		return language.Hebrew
	}
	for _, s := range Supported {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return Supported[0]
}

// DeviceLanguage returns the language of the process locale, read from LC_ALL,
// LC_MESSAGES or LANG. It is English when none is set or parseable.
func DeviceLanguage() language.Tag {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag, ok := parsePOSIXLocale(os.Getenv(name)); ok {
			return tag
		}
	}
	return language.English
}

// parsePOSIXLocale parses values like "he_IL.UTF-8" or "en_US@euro".
func parsePOSIXLocale(v string) (language.Tag, bool) {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// Load returns the stored preference. A missing or unrecognised value yields PreferenceSystem.
func Load(ctx context.Context, store tokenstore.Store) (Preference, error) {
	v, err := store.Get(ctx, PreferenceKey)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return PreferenceSystem, nil
	}
	if err != nil {
		return PreferenceSystem, fmt.Errorf("loading language preference: %w", err)
	}

	pref := Preference(v)
	if !pref.valid() {
		slog.WarnContext(ctx, "ignoring unknown language preference", "value", v)
		return PreferenceSystem, nil
	}
	return pref, nil
}

// Save stores pref.
func Save(ctx context.Context, store tokenstore.Store, pref Preference) error {
	if !pref.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPreference, pref)
	}
	if err := store.Set(ctx, PreferenceKey, string(pref)); err != nil {
		return fmt.Errorf("saving language preference: %w", err)
	}
	return nil
}
