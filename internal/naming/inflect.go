package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Config customizes how entity names are inflected. Override keys match
// case-insensitively.
type Config struct {
	// PluralOverrides maps singular -> plural, e.g. {"person": "people"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> singular, e.g. {"data": "datum"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`

	// Uncountable words keep the same form in both directions.
	Uncountable []string `mapstructure:"uncountable"`
}

// DefaultConfig returns a config with no overrides.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
	}
}

// inflector applies configured overrides ahead of the inflection library's
// English rules. It never mutates the library's global rule set.
type inflector struct {
	plural   map[string]string
	singular map[string]string
	fixed    map[string]struct{}
}

func newInflector(cfg Config) inflector {
	in := inflector{
		plural:   lowerKeys(cfg.PluralOverrides),
		singular: lowerKeys(cfg.SingularOverrides),
		fixed:    make(map[string]struct{}, len(cfg.Uncountable)),
	}
	for _, word := range cfg.Uncountable {
		in.fixed[strings.ToLower(strings.TrimSpace(word))] = struct{}{}
	}
	return in
}

func (in inflector) inflect(word string, overrides map[string]string, rules func(string) string) string {
	if word == "" {
		return word
	}
	key := strings.ToLower(word)
	if _, ok := in.fixed[key]; ok {
		return word
	}
	if override, ok := overrides[key]; ok {
		return matchLeadingCase(word, override)
	}
	return rules(word)
}

// Pluralize returns the plural of word.
func (n *Namer) Pluralize(word string) string {
	return n.inflect.inflect(word, n.inflect.plural, inflection.Plural)
}

// Singularize returns the singular of word.
func (n *Namer) Singularize(word string) string {
	return n.inflect.inflect(word, n.inflect.singular, inflection.Singular)
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// matchLeadingCase capitalizes replacement when word starts upper-case.
func matchLeadingCase(word, replacement string) string {
	if replacement == "" || !unicode.IsUpper([]rune(word)[0]) {
		return replacement
	}
	r := []rune(replacement)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
