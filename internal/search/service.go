package search

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/catalog"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// ErrCityNotFound is returned when a query resolves to no city with a centre.
var ErrCityNotFound = errors.New("search: city not found")

// MaxSuggestions caps the number of suggestions returned by Suggest.
const MaxSuggestions = 5

// Directory is the catalog surface used by the Service.
type Directory interface {
	CitiesByPostalCode(ctx context.Context, postalCode string) ([]model.City, error)
	CitiesByName(ctx context.Context, name string) ([]model.City, error)
	CitiesMatchingName(ctx context.Context, needle string, limit int) ([]model.City, error)
	CitiesByPostalPrefix(ctx context.Context, prefix string, limit int) ([]model.City, error)
	PsychologistsInBox(ctx context.Context, box catalog.Box, f catalog.PsychologistFilter) ([]model.Psychologist, error)
}

// Service answers city searches.
type Service struct {
	dir      Directory
	radiusKm float64
}

// NewService creates a Service. A non-positive radius falls back to
// DefaultRadiusKm.
func NewService(dir Directory, radiusKm float64) *Service {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Service{dir: dir, radiusKm: radiusKm}
}

// Request is one search.
type Request struct {
	City             string
	Audience         string
	Teleconsultation bool
}

// Response holds the resolved city and the matches, nearest first.
type Response struct {
	Query    Query
	City     model.City
	RadiusKm float64
	Results  []model.Nearby
}

// ResolveCity maps a query to a catalog city. A postal code in the query
// wins over the name.
func (s *Service) ResolveCity(ctx context.Context, q Query) (*model.City, error) {
	var (
		cities []model.City
		err    error
	)
	switch {
	case q.PostalCode != "":
		cities, err = s.dir.CitiesByPostalCode(ctx, q.PostalCode)
	case q.Name != "":
		cities, err = s.dir.CitiesByName(ctx, q.Name)
		if err == nil && len(cities) == 0 {
			cities, err = s.foldedMatches(ctx, q.Name)
		}
	default:
		return nil, eris.Wrap(ErrCityNotFound, "search: empty query")
	}
	if err != nil {
		return nil, eris.Wrap(err, "search: resolve city")
	}
	city := PickCity(cities)
	if city == nil {
		return nil, eris.Wrapf(ErrCityNotFound, "search: %q", q.Raw)
	}
	if city.Center.Lat == 0 && city.Center.Lon == 0 {
		return nil, eris.Wrapf(ErrCityNotFound, "search: %s has no centre", city.Name)
	}
	return city, nil
}

// foldedMatches retries a name lookup ignoring accents and separators.
func (s *Service) foldedMatches(ctx context.Context, name string) ([]model.City, error) {
	needle := Fold(name)
	words := strings.Fields(needle)
	if len(words) == 0 {
		return nil, nil
	}
	// Narrow on the longest word, then compare folded names.
	longest := slices.MaxFunc(words, func(a, b string) int { return len(a) - len(b) })
	cands, err := s.dir.CitiesMatchingName(ctx, longest, 50)
	if err != nil {
		return nil, err
	}
	var out []model.City
	for _, c := range cands {
		if Fold(c.Name) == needle {
			out = append(out, c)
		}
	}
	return out, nil
}

// Search resolves req.City and lists the matching psychologists.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	q := ParseCityQuery(req.City)
	city, err := s.ResolveCity(ctx, q)
	if err != nil {
		return nil, err
	}

	psys, err := s.dir.PsychologistsInBox(ctx, BoundingBox(city.Center, s.radiusKm), catalog.PsychologistFilter{
		Audience:         req.Audience,
		Teleconsultation: req.Teleconsultation,
	})
	if err != nil {
		return nil, eris.Wrap(err, "search: psychologists")
	}
	return &Response{
		Query:    q,
		City:     *city,
		RadiusKm: s.radiusKm,
		Results:  WithinRadius(city.Center, psys, s.radiusKm),
	}, nil
}

// Suggest returns up to MaxSuggestions display strings for a partial query.
// Digit-only input of two to five characters is matched against postal
// codes first; names fill the remaining slots.
func (s *Service) Suggest(ctx context.Context, input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if len([]rune(input)) < 2 {
		return nil, nil
	}

	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(display string) bool {
		if !seen[display] {
			seen[display] = true
			out = append(out, display)
		}
		return len(out) >= MaxSuggestions
	}

	if postalPrefix.MatchString(input) {
		cities, err := s.dir.CitiesByPostalPrefix(ctx, input, MaxSuggestions)
		if err != nil {
			return nil, eris.Wrap(err, "search: suggest postal codes")
		}
		type pair struct{ code, name string }
		var pairs []pair
		for _, c := range cities {
			for _, code := range c.PostalCodes {
				if strings.HasPrefix(code, input) {
					pairs = append(pairs, pair{code, c.Name})
				}
			}
		}
		slices.SortFunc(pairs, func(a, b pair) int {
			if a.code != b.code {
				return strings.Compare(a.code, b.code)
			}
			return strings.Compare(a.name, b.name)
		})
		for _, p := range pairs {
			if add(p.name + " (" + p.code + ")") {
				return out, nil
			}
		}
	}

	remaining := MaxSuggestions - len(out)
	cities, err := s.dir.CitiesMatchingName(ctx, input, max(remaining*3, 8))
	if err != nil {
		return nil, eris.Wrap(err, "search: suggest names")
	}
	needle := Fold(input)
	slices.SortStableFunc(cities, func(a, b model.City) int {
		return nameRank(a.Name, needle) - nameRank(b.Name, needle)
	})
	for _, c := range cities {
		if add(Suggestion(c)) {
			break
		}
	}
	return out, nil
}
