// Package enrich resolves codes missing from the catalog into full city
// records using the geographic reference API.
package enrich

import (
	"context"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/resilience"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

// Source is the part of the geographic API the enricher uses.
type Source interface {
	AreaSource
	Commune(ctx context.Context, code string) (*geoapi.Commune, error)
	CommunesByPostalCode(ctx context.Context, postalCode string) ([]geoapi.Commune, error)
}

// Mode selects what kind of code is looked up.
type Mode int

const (
	ByPostalCode Mode = iota
	ByINSEE
)

// Kind classifies an enrichment outcome.
type Kind int

const (
	// KindNewCity is a commune absent from the catalog.
	KindNewCity Kind = iota
	// KindExistingCity is a commune already in the catalog that lacks some
	// of its postal codes.
	KindExistingCity
	// KindKnown is a commune already in the catalog with every postal code.
	KindKnown
	// KindNotFound means the API knows nothing for the code.
	KindNotFound
	// KindFailed means the lookup failed.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindNewCity:
		return "new_city"
	case KindExistingCity:
		return "existing_city"
	case KindKnown:
		return "known"
	case KindNotFound:
		return "not_found"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of enriching one code.
type Outcome struct {
	Code    string
	Kind    Kind
	Commune *geoapi.Commune
	// MissingPostalCodes lists, for KindExistingCity, the commune's postal
	// codes absent from its catalog record.
	MissingPostalCodes []string
	Err                error
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithMode selects postal code or INSEE lookups. Default: ByPostalCode.
func WithMode(m Mode) Option { return func(e *Enricher) { e.mode = m } }

// WithRetry overrides the retry policy of each lookup.
func WithRetry(cfg resilience.RetryConfig) Option { return func(e *Enricher) { e.retry = cfg } }

// WithLimiter paces lookups.
func WithLimiter(l *rate.Limiter) Option { return func(e *Enricher) { e.limiter = l } }

// Enricher resolves codes against a catalog snapshot.
type Enricher struct {
	src      Source
	mode     Mode
	retry    resilience.RetryConfig
	limiter  *rate.Limiter
	names    *NameCache
	existing map[string]map[string]struct{} // INSEE code -> postal codes
}

// New creates an Enricher. catalog is the current content of the catalog.
// The returned Enricher owns a fresh NameCache.
func New(src Source, catalog []model.City, opts ...Option) *Enricher {
	e := &Enricher{
		src:      src,
		retry:    resilience.DefaultRetryConfig(),
		names:    NewNameCache(src),
		existing: make(map[string]map[string]struct{}, len(catalog)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.OnRetry == nil {
		e.retry.OnRetry = resilience.RetryLogger("geoapi", "enrich")
	}
	for _, c := range catalog {
		set := make(map[string]struct{}, len(c.PostalCodes))
		for _, pc := range c.PostalCodes {
			set[pc] = struct{}{}
		}
		e.existing[c.INSEECode] = set
	}
	return e
}

// Names returns the run's name cache.
func (e *Enricher) Names() *NameCache { return e.names }

// Enrich looks code up and classifies the result. It never returns an
// error: failures are reported in the Outcome.
func (e *Enricher) Enrich(ctx context.Context, code string) Outcome {
	out := Outcome{Code: code}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			out.Kind, out.Err = KindFailed, eris.Wrap(err, "enrich: rate limit")
			return out
		}
	}

	commune, err := e.resolve(ctx, code)
	switch {
	case err != nil && geoapi.IsNotFound(err):
		out.Kind = KindNotFound
		return out
	case err != nil:
		out.Kind, out.Err = KindFailed, err
		return out
	case commune == nil:
		out.Kind = KindNotFound
		return out
	}
	out.Commune = commune

	have, known := e.existing[commune.Code]
	if !known {
		out.Kind = KindNewCity
		return out
	}
	for _, pc := range commune.PostalCodes {
		if _, ok := have[pc]; !ok {
			out.MissingPostalCodes = append(out.MissingPostalCodes, pc)
		}
	}
	if len(out.MissingPostalCodes) > 0 {
		out.Kind = KindExistingCity
	} else {
		out.Kind = KindKnown
	}
	return out
}

func (e *Enricher) resolve(ctx context.Context, code string) (*geoapi.Commune, error) {
	if e.mode == ByINSEE {
		return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*geoapi.Commune, error) {
			return e.src.Commune(ctx, code)
		})
	}
	communes, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]geoapi.Commune, error) {
		return e.src.CommunesByPostalCode(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	return MostPopulous(communes), nil
}

// MostPopulous returns the commune with the largest population. Ties keep
// the API order. It returns nil for an empty list.
func MostPopulous(communes []geoapi.Commune) *geoapi.Commune {
	if len(communes) == 0 {
		return nil
	}
	sorted := slices.Clone(communes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Population > sorted[j].Population })
	return &sorted[0]
}

// Report groups the outcomes of a run. New cities are unique per INSEE code.
type Report struct {
	New      []Outcome
	Existing []Outcome
	Known    int
	NotFound []string
	Failed   []Outcome
}

// EnrichAll enriches every code in order. A commune reached through several
// codes is reported once.
func (e *Enricher) EnrichAll(ctx context.Context, codes []string, progress func(done, total int)) Report {
	var rep Report
	seenNew := map[string]bool{}
	seenExisting := map[string]bool{}
	for i, code := range codes {
		if ctx.Err() != nil {
			rep.Failed = append(rep.Failed, Outcome{Code: code, Kind: KindFailed, Err: ctx.Err()})
			continue
		}
		o := e.Enrich(ctx, code)
		switch o.Kind {
		case KindNewCity:
			if !seenNew[o.Commune.Code] {
				seenNew[o.Commune.Code] = true
				rep.New = append(rep.New, o)
			}
		case KindExistingCity:
			if !seenExisting[o.Commune.Code] {
				seenExisting[o.Commune.Code] = true
				rep.Existing = append(rep.Existing, o)
				zap.L().Info("enrich: existing city missing postal codes",
					zap.String("insee", o.Commune.Code),
					zap.String("name", o.Commune.Name),
					zap.Strings("missing", o.MissingPostalCodes),
				)
			}
		case KindKnown:
			rep.Known++
		case KindNotFound:
			rep.NotFound = append(rep.NotFound, code)
		case KindFailed:
			rep.Failed = append(rep.Failed, o)
		}
		if progress != nil {
			progress(i+1, len(codes))
		}
	}
	sort.SliceStable(rep.New, func(i, j int) bool { return rep.New[i].Commune.Name < rep.New[j].Commune.Name })
	return rep
}

// City builds the catalog record for a new commune, resolving region and
// department names through the name cache when the commune lacks them.
func (e *Enricher) City(ctx context.Context, c *geoapi.Commune) model.City {
	city := model.City{
		INSEECode:      c.Code,
		Name:           c.Name,
		DepartmentCode: c.DepartmentCode,
		DepartmentName: c.DepartmentName(),
		RegionName:     c.RegionName(),
		PostalCodes:    slices.Clone(c.PostalCodes),
	}
	if city.RegionName == "" {
		city.RegionName = e.names.Region(ctx, c.RegionCode)
	}
	if city.DepartmentName == "" {
		city.DepartmentName = e.names.Department(ctx, c.DepartmentCode)
	}
	if lat, lon, ok := c.Centroid(); ok {
		city.Center = model.Point{Lat: lat, Lon: lon}
	}
	return city
}
