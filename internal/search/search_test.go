package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/catalog"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

var (
	paris      = model.Point{Lat: 48.8566, Lon: 2.3522}
	lyon       = model.Point{Lat: 45.7640, Lon: 4.8357}
	laRochelle = model.Point{Lat: 46.1591, Lon: -1.1520}
	aytre      = model.Point{Lat: 46.1342, Lon: -1.1145}
	rochefort  = model.Point{Lat: 45.9421, Lon: -0.9588}
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 392, Haversine(paris, lyon), 2)
	assert.InDelta(t, Haversine(paris, lyon), Haversine(lyon, paris), 1e-9)
	assert.Zero(t, Haversine(paris, paris))
	assert.Less(t, Haversine(laRochelle, aytre), 5.0)
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	box := BoundingBox(laRochelle, 15)
	assert.Less(t, box.MinLat, laRochelle.Lat)
	assert.Greater(t, box.MaxLat, laRochelle.Lat)
	// 15 km north and east of the centre stay inside the box.
	north := model.Point{Lat: laRochelle.Lat + 15/111.2, Lon: laRochelle.Lon}
	assert.InDelta(t, 15, Haversine(laRochelle, north), 0.1)
	assert.LessOrEqual(t, north.Lat, box.MaxLat+1e-9)
	assert.Greater(t, box.MaxLon-laRochelle.Lon, box.MaxLat-laRochelle.Lat, "longitude span widens with latitude")
}

func TestWithinRadius(t *testing.T) {
	psys := []model.Psychologist{
		{ExternalID: "3", LastName: "Far", Location: rochefort},
		{ExternalID: "2", LastName: "Near", Location: aytre},
		{ExternalID: "1", LastName: "Centre", Location: laRochelle},
		{ExternalID: "4", LastName: "Alpha", Location: laRochelle},
	}
	got := WithinRadius(laRochelle, psys, 15)
	require.Len(t, got, 3)
	assert.Equal(t, "Alpha", got[0].Psychologist.LastName)
	assert.Equal(t, "Centre", got[1].Psychologist.LastName)
	assert.Equal(t, "Near", got[2].Psychologist.LastName)
	assert.Zero(t, got[0].DistanceKm)
}

func TestParseCityQuery(t *testing.T) {
	tests := []struct {
		raw  string
		want Query
	}{
		{"La Rochelle (17000)", Query{Raw: "La Rochelle (17000)", Name: "La Rochelle", PostalCode: "17000"}},
		{"Paris (75001...75020)", Query{Raw: "Paris (75001...75020)", Name: "Paris", PostalCode: "75001"}},
		{"Brest (29200, 29217)", Query{Raw: "Brest (29200, 29217)", Name: "Brest", PostalCode: "29200"}},
		{"  Nantes  ", Query{Raw: "  Nantes  ", Name: "Nantes"}},
		{"Nantes (44)", Query{Raw: "Nantes (44)", Name: "Nantes (44)"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCityQuery(tt.raw))
		})
	}
}

func TestPostalDisplay(t *testing.T) {
	assert.Equal(t, "75001...75020", PostalDisplay([]string{"75020", "75001", "75010"}))
	assert.Equal(t, "29200, 29217", PostalDisplay([]string{"29217", "29200"}))
	assert.Equal(t, "17000", PostalDisplay([]string{"17000"}))
	assert.Equal(t, "", PostalDisplay(nil))

	c := model.City{Name: "Paris", PostalCodes: []string{"75020", "75001", "75010"}}
	assert.Equal(t, "Paris (75001...75020)", Suggestion(c))
	assert.Equal(t, "75001", ParseCityQuery(Suggestion(c)).PostalCode)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "saint etienne", Fold("Saint-Étienne"))
	assert.Equal(t, "saint etienne", Fold("  saint   etienne "))
	assert.Equal(t, "l abergement clemenciat", Fold("L'Abergement-Clémenciat"))
	assert.Equal(t, "orleans", Fold("ORLÉANS"))
}

func TestPickCity(t *testing.T) {
	assert.Nil(t, PickCity(nil))

	cities := []model.City{
		{INSEECode: "44109", Name: "Saint-Herblain", DepartmentCode: "44", PostalCodes: []string{"44800"}},
		{INSEECode: "13055", Name: "Marseille", DepartmentCode: "13", PostalCodes: []string{"13001", "13002"}},
		{INSEECode: "01001", Name: "Other", DepartmentCode: "01", PostalCodes: []string{"13001", "13003"}},
	}
	assert.Equal(t, "01001", PickCity(cities).INSEECode)
}

type fakeDirectory struct {
	byPostal   map[string][]model.City
	byName     map[string][]model.City
	matching   []model.City
	prefix     []model.City
	psys       []model.Psychologist
	err        error
	gotBox     catalog.Box
	gotFilter  catalog.PsychologistFilter
	matchCalls int
}

func (f *fakeDirectory) CitiesByPostalCode(_ context.Context, code string) ([]model.City, error) {
	return f.byPostal[code], f.err
}

func (f *fakeDirectory) CitiesByName(_ context.Context, name string) ([]model.City, error) {
	return f.byName[name], f.err
}

func (f *fakeDirectory) CitiesMatchingName(context.Context, string, int) ([]model.City, error) {
	f.matchCalls++
	return f.matching, f.err
}

func (f *fakeDirectory) CitiesByPostalPrefix(context.Context, string, int) ([]model.City, error) {
	return f.prefix, f.err
}

func (f *fakeDirectory) PsychologistsInBox(_ context.Context, box catalog.Box, pf catalog.PsychologistFilter) ([]model.Psychologist, error) {
	f.gotBox = box
	f.gotFilter = pf
	return f.psys, f.err
}

func TestSearch_ByPostalCode(t *testing.T) {
	dir := &fakeDirectory{
		byPostal: map[string][]model.City{
			"17000": {{ID: 1, INSEECode: "17300", Name: "La Rochelle", PostalCodes: []string{"17000"}, Center: laRochelle}},
		},
		psys: []model.Psychologist{
			{ExternalID: "a", LastName: "Far", Location: rochefort},
			{ExternalID: "b", LastName: "Near", Location: aytre},
		},
	}
	svc := NewService(dir, 0)

	resp, err := svc.Search(context.Background(), Request{
		City:             "La Rochelle (17000)",
		Audience:         model.AudienceChildren,
		Teleconsultation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "17300", resp.City.INSEECode)
	assert.Equal(t, DefaultRadiusKm, resp.RadiusKm)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "b", resp.Results[0].Psychologist.ExternalID)
	assert.Equal(t, catalog.PsychologistFilter{Audience: model.AudienceChildren, Teleconsultation: true}, dir.gotFilter)
	assert.Equal(t, BoundingBox(laRochelle, DefaultRadiusKm), dir.gotBox)
}

func TestSearch_ByFoldedName(t *testing.T) {
	dir := &fakeDirectory{
		matching: []model.City{
			{INSEECode: "42218", Name: "Saint-Étienne", Center: model.Point{Lat: 45.43, Lon: 4.39}},
			{INSEECode: "42999", Name: "Saint-Étienne-le-Molard", Center: model.Point{Lat: 45.7, Lon: 4.1}},
		},
	}
	city, err := NewService(dir, 15).ResolveCity(context.Background(), ParseCityQuery("saint etienne"))
	require.NoError(t, err)
	assert.Equal(t, "42218", city.INSEECode)
	assert.Equal(t, 1, dir.matchCalls)
}

func TestSearch_CityNotFound(t *testing.T) {
	svc := NewService(&fakeDirectory{}, 15)

	_, err := svc.Search(context.Background(), Request{City: "Atlantis (99999)"})
	assert.ErrorIs(t, err, ErrCityNotFound)

	_, err = svc.Search(context.Background(), Request{City: "   "})
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestSearch_CityWithoutCentre(t *testing.T) {
	dir := &fakeDirectory{byName: map[string][]model.City{"Nowhere": {{INSEECode: "00000", Name: "Nowhere"}}}}
	_, err := NewService(dir, 15).Search(context.Background(), Request{City: "Nowhere"})
	assert.ErrorIs(t, err, ErrCityNotFound)
}

func TestSearch_DirectoryError(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("too many connections")}
	_, err := NewService(dir, 15).Search(context.Background(), Request{City: "Brest (29200)"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCityNotFound)
	assert.Contains(t, err.Error(), "search: resolve city")
}

func TestSuggest(t *testing.T) {
	dir := &fakeDirectory{
		prefix: []model.City{
			{Name: "Paris", PostalCodes: []string{"75001", "75002", "75116"}},
			{Name: "Boulogne", PostalCodes: []string{"92100"}},
		},
		matching: []model.City{
			{Name: "Toulouse", PostalCodes: []string{"31000", "31100", "31500"}},
		},
	}
	svc := NewService(dir, 15)

	got, err := svc.Suggest(context.Background(), "750")
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris (75001)", "Paris (75002)", "Toulouse (31000...31500)"}, got)

	got, err = svc.Suggest(context.Background(), "t")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSuggest_RanksFoldedNames(t *testing.T) {
	dir := &fakeDirectory{matching: []model.City{
		{Name: "Bourg-Saint-Étienne", PostalCodes: []string{"01000"}},
		{Name: "Saint-Étienne-de-Tinée", PostalCodes: []string{"06660"}},
		{Name: "Saint-Étienne", PostalCodes: []string{"42000", "42100"}},
	}}
	got, err := NewService(dir, 15).Suggest(context.Background(), "saint etienne")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Saint-Étienne (42000, 42100)",
		"Saint-Étienne-de-Tinée (06660)",
		"Bourg-Saint-Étienne (01000)",
	}, got)
}
