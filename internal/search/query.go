package search

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

var (
	postalInQuery  = regexp.MustCompile(`\((\d{5})`)
	trailingParens = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	postalPrefix   = regexp.MustCompile(`^\d{2,5}$`)
)

// Query is a parsed city search such as "La Rochelle (17000)".
type Query struct {
	Raw        string
	Name       string
	PostalCode string
}

// ParseCityQuery extracts the first five-digit postal code found after an
// opening parenthesis. Name is the query without its trailing parenthetical
// when a code was found, and the trimmed query otherwise.
func ParseCityQuery(raw string) Query {
	q := Query{Raw: raw, Name: strings.TrimSpace(raw)}
	if m := postalInQuery.FindStringSubmatch(raw); m != nil {
		q.PostalCode = m[1]
		q.Name = strings.TrimSpace(trailingParens.ReplaceAllString(raw, ""))
	}
	return q
}

// PostalDisplay renders a city's postal codes for a suggestion: "first...last"
// for more than two codes, otherwise a comma separated list.
func PostalDisplay(codes []string) string {
	sorted := slices.Clone(codes)
	slices.Sort(sorted)
	if len(sorted) > 2 {
		return sorted[0] + "..." + sorted[len(sorted)-1]
	}
	return strings.Join(sorted, ", ")
}

// Suggestion is the display form of a city that ParseCityQuery reads back.
func Suggestion(c model.City) string {
	return c.Name + " (" + PostalDisplay(c.PostalCodes) + ")"
}

// Fold lowercases s, strips diacritics and turns hyphens and apostrophes into
// single spaces, so "Saint-Étienne" and "saint etienne" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '-', '\'', '’':
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// PickCity chooses among cities sharing a name or postal code: the one with
// the most postal codes, then the lowest department code, then the lowest
// INSEE code. It returns nil for an empty slice.
func PickCity(cities []model.City) *model.City {
	if len(cities) == 0 {
		return nil
	}
	best := slices.MinFunc(cities, func(a, b model.City) int {
		return cmp.Or(
			cmp.Compare(len(b.PostalCodes), len(a.PostalCodes)),
			cmp.Compare(a.DepartmentCode, b.DepartmentCode),
			cmp.Compare(a.INSEECode, b.INSEECode),
		)
	})
	return &best
}

func nameRank(name, needle string) int {
	n := Fold(name)
	switch {
	case n == needle:
		return 0
	case strings.HasPrefix(n, needle):
		return 1
	}
	return 2
}
