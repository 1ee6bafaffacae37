package localize

import "golang.org/x/text/language"

// Policy is the caller-side lookup policy for translated text.
type Policy struct {
	// Enabled turns localized lookup on. When false Lookup always misses.
	Enabled bool
	// Locale is the requested locale code.
	Locale string
	// Fallback allows Default to be used when Locale has no translation.
	Fallback bool
	// Default is the project's default locale code.
	Default string
}

// Lookup resolves t for the policy's locale.
//
// The requested locale is tried first, then its parent tags (fr-CA, then fr),
// then Default when Fallback is set.
//
// Postcondition: Returns (text, true) on a hit, or ("", false) on a miss.
func (p Policy) Lookup(t *Text) (string, bool) {
	if !p.Enabled || t.Len() == 0 {
		return "", false
	}
	for _, l := range p.candidates() {
		if s, ok := t.Translation(l); ok {
			return s, true
		}
	}
	return "", false
}

func (p Policy) candidates() []string {
	out := []string{p.Locale}
	if tag, err := language.Parse(p.Locale); err == nil {
		for parent := tag.Parent(); parent != language.Und; parent = parent.Parent() {
			out = append(out, parent.String())
		}
	}
	if p.Fallback && p.Default != "" {
		out = append(out, p.Default)
	}
	return out
}

// WithLocale returns a copy of p requesting locale.
func (p Policy) WithLocale(locale string) Policy {
	p.Locale = locale
	return p
}
