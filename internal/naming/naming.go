// Package naming maps raw column headers to document field names.
//
// A Strategy is resolved to a Func once, when the header line is read, and
// the Func is then applied to each column. All strategies are pure and use
// locale-independent case mapping.
package naming

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/elastic-upload/internal/fault"
)

// Strategy selects how headers are normalized.
type Strategy int

const (
	// Default behaves like CamelCase.
	Default Strategy = iota
	Lower
	Upper
	CamelCase
)

var strategyNames = map[Strategy]string{
	Default:   "Default",
	Lower:     "Lower",
	Upper:     "Upper",
	CamelCase: "CamelCase",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Names lists the accepted strategy names in display order.
func Names() []string {
	return []string{"Default", "Lower", "Upper", "CamelCase"}
}

// ParseStrategy resolves a strategy name, ignoring case.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return s, nil
		}
	}
	return Default, fault.Newf(fault.KindConfig, "property formatting",
		"unknown strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
}

// Func normalizes a single header.
type Func func(string) string

// Func returns the mapping for s. Unknown values fall back to CamelCase.
func (s Strategy) Func() Func {
	switch s {
	case Lower:
		return toLower
	case Upper:
		return toUpper
	default:
		return toCamel
	}
}

// Normalize applies strategy s to header.
func Normalize(header string, s Strategy) string {
	return s.Func()(header)
}

// cases.Caser keeps state between calls, so each call gets a fresh one.
func toLower(s string) string { return cases.Lower(language.Und).String(s) }
func toUpper(s string) string { return cases.Upper(language.Und).String(s) }

// toCamel lower-cases the first word and capitalizes the first rune of each
// following word. Only whitespace separates words.
func toCamel(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(toLower(words[0]))
	for _, w := range words[1:] {
		r, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(w[size:])
	}
	return b.String()
}
