// Package localize holds per-locale translations of authored text and the
// call-site policy that picks one of them.
package localize

import "sort"

// Text keeps the translations of one authored field keyed by locale code
// (e.g. "en", "fr", "it"). The zero value is empty and ready to use.
type Text struct {
	translations map[string]string
}

// AddTranslation inserts or overwrites the translation for locale.
// The locale code is stored as given.
func (t *Text) AddTranslation(locale, translation string) {
	if t.translations == nil {
		t.translations = make(map[string]string)
	}
	t.translations[locale] = translation
}

// Translation returns the translation stored for exactly locale.
//
// Postcondition: Returns (text, true) if found, or ("", false) otherwise. An
// empty translation that was added is reported as found.
func (t *Text) Translation(locale string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t.translations[locale]
	return s, ok
}

// Locales returns the locale codes that carry a translation, sorted.
func (t *Text) Locales() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.translations))
	for l := range t.translations {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of translations.
func (t *Text) Len() int {
	if t == nil {
		return 0
	}
	return len(t.translations)
}

// Locale describes one locale declared by a project.
type Locale struct {
	// ISO is the locale code used as the translation key.
	ISO string
	// Base marks the project's source locale.
	Base bool
	// Name is the display name.
	Name string
}

// DefaultLocale returns the ISO code of the base locale, or of the first locale
// when none is marked base, or "" for an empty list.
func DefaultLocale(locales []Locale) string {
	for _, l := range locales {
		if l.Base {
			return l.ISO
		}
	}
	if len(locales) > 0 {
		return locales[0].ISO
	}
	return ""
}
