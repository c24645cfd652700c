package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/metrics"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/resilience"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

type fakeSource struct {
	byPostal map[string][]geoapi.Commune
	byINSEE  map[string]*geoapi.Commune
	errs     map[string][]error // consumed one per call
	regions  map[string]string
	depts    map[string]string

	mu         sync.Mutex
	calls      map[string]int
	areaCalls  int
	regionErrs int
}

func (f *fakeSource) next(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[code]++
	if errs := f.errs[code]; len(errs) > 0 {
		f.errs[code] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeSource) Commune(_ context.Context, code string) (*geoapi.Commune, error) {
	if err := f.next(code); err != nil {
		return nil, err
	}
	c, ok := f.byINSEE[code]
	if !ok {
		return nil, &geoapi.StatusError{Op: "commune", StatusCode: http.StatusNotFound}
	}
	return c, nil
}

func (f *fakeSource) CommunesByPostalCode(_ context.Context, code string) ([]geoapi.Commune, error) {
	if err := f.next(code); err != nil {
		return nil, err
	}
	return f.byPostal[code], nil
}

func (f *fakeSource) Region(_ context.Context, code string) (*geoapi.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areaCalls++
	if f.regionErrs > 0 {
		f.regionErrs--
		return nil, errors.New("geoapi: region returned status 503")
	}
	return &geoapi.Area{Code: code, Name: f.regions[code]}, nil
}

func (f *fakeSource) Department(_ context.Context, code string) (*geoapi.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areaCalls++
	return &geoapi.Area{Code: code, Name: f.depts[code]}, nil
}

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func commune(code, name string, population int, postal ...string) geoapi.Commune {
	return geoapi.Commune{
		Code:           code,
		Name:           name,
		DepartmentCode: code[:2],
		RegionCode:     "11",
		Population:     population,
		PostalCodes:    postal,
		Centre:         json.RawMessage(`{"type":"Point","coordinates":[2.35,48.85]}`),
	}
}

func TestMostPopulous(t *testing.T) {
	small := commune("01001", "Hameau", 500, "01400")
	big := commune("01004", "Bourg", 20000, "01400")

	assert.Equal(t, "Bourg", MostPopulous([]geoapi.Commune{small, big}).Name)
	assert.Equal(t, "Bourg", MostPopulous([]geoapi.Commune{big, small}).Name)

	tieA := commune("01002", "A", 100, "01400")
	tieB := commune("01003", "B", 100, "01400")
	assert.Equal(t, "A", MostPopulous([]geoapi.Commune{tieA, tieB}).Name, "ties keep API order")
	assert.Nil(t, MostPopulous(nil))
}

func TestEnrich_NewCityPicksLargestPopulation(t *testing.T) {
	src := &fakeSource{byPostal: map[string][]geoapi.Commune{
		"01400": {commune("01001", "Hameau", 500, "01400"), commune("01004", "Bourg", 20000, "01400", "01401")},
	}}
	e := New(src, nil, fastRetry())

	o := e.Enrich(context.Background(), "01400")
	require.Equal(t, KindNewCity, o.Kind)
	assert.Equal(t, "01004", o.Commune.Code)
	assert.NoError(t, o.Err)
}

func TestEnrich_ExistingCityMissingPostalCodes(t *testing.T) {
	catalog := []model.City{
		{ID: 1, INSEECode: "75056", Name: "Paris", PostalCodes: []string{"75002"}},
		{ID: 2, INSEECode: "75101", Name: "Paris 1er Arrondissement", PostalCodes: []string{"75001"}},
	}
	src := &fakeSource{byPostal: map[string][]geoapi.Commune{
		"75001": {commune("75056", "Paris", 2100000, "75001", "75002")},
	}}
	e := New(src, catalog, fastRetry())

	o := e.Enrich(context.Background(), "75001")
	assert.Equal(t, KindExistingCity, o.Kind)
	assert.Equal(t, []string{"75001"}, o.MissingPostalCodes)

	rep := e.EnrichAll(context.Background(), []string{"75001"}, nil)
	assert.Empty(t, rep.New, "existing cities are never created")
	require.Len(t, rep.Existing, 1)
}

func TestEnrich_KnownCity(t *testing.T) {
	catalog := []model.City{{INSEECode: "17300", PostalCodes: []string{"17000"}}}
	src := &fakeSource{byINSEE: map[string]*geoapi.Commune{"17300": ptr(commune("17300", "La Rochelle", 77000, "17000"))}}
	e := New(src, catalog, WithMode(ByINSEE), fastRetry())

	assert.Equal(t, KindKnown, e.Enrich(context.Background(), "17300").Kind)
}

func TestEnrich_NotFound(t *testing.T) {
	src := &fakeSource{byPostal: map[string][]geoapi.Commune{}}
	e := New(src, nil, fastRetry())
	assert.Equal(t, KindNotFound, e.Enrich(context.Background(), "00000").Kind)

	e = New(src, nil, WithMode(ByINSEE), fastRetry())
	assert.Equal(t, KindNotFound, e.Enrich(context.Background(), "99999").Kind)
	assert.Equal(t, 1, src.calls["99999"], "404 is not retried")
}

func TestEnrich_RetriesTransientErrors(t *testing.T) {
	src := &fakeSource{
		byPostal: map[string][]geoapi.Commune{"29200": {commune("29019", "Brest", 140000, "29200")}},
		errs: map[string][]error{"29200": {
			&geoapi.StatusError{Op: "communes by postal code", StatusCode: http.StatusServiceUnavailable},
		}},
	}
	e := New(src, nil, fastRetry())

	o := e.Enrich(context.Background(), "29200")
	assert.Equal(t, KindNewCity, o.Kind)
	assert.Equal(t, 2, src.calls["29200"])
}

func TestEnrich_FailureIsReported(t *testing.T) {
	boom := &geoapi.StatusError{Op: "communes by postal code", StatusCode: http.StatusBadRequest}
	src := &fakeSource{errs: map[string][]error{"29200": {boom}}}
	e := New(src, nil, fastRetry())

	o := e.Enrich(context.Background(), "29200")
	assert.Equal(t, KindFailed, o.Kind)
	assert.ErrorIs(t, o.Err, boom)
	assert.Equal(t, 1, src.calls["29200"])
}

func TestEnrichAll_DeduplicatesAndSorts(t *testing.T) {
	src := &fakeSource{byPostal: map[string][]geoapi.Commune{
		"01500": {commune("01004", "Ambérieu-en-Bugey", 14000, "01500")},
		"01501": {commune("01004", "Ambérieu-en-Bugey", 14000, "01500", "01501")},
		"01400": {commune("01001", "Abergement", 800, "01400")},
		"00000": nil,
	}}
	e := New(src, nil, fastRetry())

	var ticks int
	rep := e.EnrichAll(context.Background(), []string{"01500", "01501", "01400", "00000"}, func(done, total int) {
		ticks++
		assert.Equal(t, 4, total)
	})
	assert.Equal(t, 4, ticks)
	require.Len(t, rep.New, 2)
	assert.Equal(t, "Abergement", rep.New[0].Commune.Name)
	assert.Equal(t, "Ambérieu-en-Bugey", rep.New[1].Commune.Name)
	assert.Equal(t, []string{"00000"}, rep.NotFound)
}

func TestNameCache_CachesOnlySuccesses(t *testing.T) {
	src := &fakeSource{regions: map[string]string{"11": "Île-de-France"}, regionErrs: 1}
	cache := NewNameCache(src)
	ctx := context.Background()

	assert.Equal(t, "", cache.Region(ctx, "11"))
	assert.Equal(t, "Île-de-France", cache.Region(ctx, "11"))
	assert.Equal(t, "Île-de-France", cache.Region(ctx, "11"))
	assert.Equal(t, 2, src.areaCalls)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, "", cache.Region(ctx, ""))
}

type fakeCreator struct {
	created []model.City
	fail    map[string]bool
}

func (f *fakeCreator) CreateCity(_ context.Context, c model.City) (int64, error) {
	if f.fail[c.INSEECode] {
		return 0, errors.New("duplicate key value violates unique constraint")
	}
	f.created = append(f.created, c)
	return int64(len(f.created)), nil
}

func TestCreate_PartialFailure(t *testing.T) {
	src := &fakeSource{
		byPostal: map[string][]geoapi.Commune{
			"75001": {commune("75101", "Paris 1er", 16000, "75001")},
			"75002": {commune("75102", "Paris 2e", 21000, "75002")},
		},
		regions: map[string]string{"11": "Île-de-France"},
		depts:   map[string]string{"75": "Paris"},
	}
	e := New(src, nil, fastRetry())
	rep := e.EnrichAll(context.Background(), []string{"75001", "75002"}, nil)

	dst := &fakeCreator{fail: map[string]bool{"75102": true}}
	res := e.Create(context.Background(), dst, rep, metrics.New())
	assert.Equal(t, CreateResult{Created: 1, Failed: 1}, res)

	require.Len(t, dst.created, 1)
	got := dst.created[0]
	assert.Equal(t, "75101", got.INSEECode)
	assert.Equal(t, "Île-de-France", got.RegionName)
	assert.Equal(t, "Paris", got.DepartmentName)
	assert.Equal(t, []string{"75001"}, got.PostalCodes)
	assert.Equal(t, model.Point{Lat: 48.85, Lon: 2.35}, got.Center)
	assert.Equal(t, 2, src.areaCalls, "names are cached across cities")
}

func TestRenderSummary(t *testing.T) {
	rep := Report{
		Existing: []Outcome{{Code: "75001", Kind: KindExistingCity, Commune: ptr(commune("75056", "Paris", 2100000)), MissingPostalCodes: []string{"75001"}}},
		NotFound: []string{"00000"},
	}
	for i := range 22 {
		c := commune("01001", "City", i)
		rep.New = append(rep.New, Outcome{Kind: KindNewCity, Commune: &c})
	}

	var buf bytes.Buffer
	RenderSummary(&buf, rep)
	out := buf.String()
	assert.Contains(t, out, "Cities to add: 22")
	assert.Contains(t, out, "20. City (01001)")
	assert.NotContains(t, out, "21. City")
	assert.Contains(t, out, "... and 2 more cities")
	assert.Contains(t, out, "Paris (75056): 75001")
	assert.Contains(t, out, "Codes unknown to the API: 1")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "existing_city", KindExistingCity.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func ptr[T any](v T) *T { return &v }
