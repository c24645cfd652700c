// Package reconcile compares the city catalog with the geographic reference
// API and applies the confirmed corrections.
package reconcile

import (
	"encoding/json"
	"math"
	"slices"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

// CoordTolerance is the largest per-axis centroid drift, in degrees, still
// considered equal.
const CoordTolerance = 1e-6

// Diff compares a catalog city with the provider's commune. It returns the
// differences in report order and the partial update carrying exactly the
// differing fields. Values the provider omits never produce a difference.
func Diff(local model.City, remote *geoapi.Commune) ([]model.Difference, model.CityUpdate) {
	var (
		diffs  []model.Difference
		update model.CityUpdate
	)
	if remote == nil {
		return nil, update
	}

	text := func(field model.Field, current, proposed string, set **string) {
		if proposed == "" || proposed == current {
			return
		}
		v := proposed
		*set = &v
		diffs = append(diffs, difference(field, current, proposed))
	}
	text(model.FieldName, local.Name, remote.Name, &update.Name)
	text(model.FieldDepartmentCode, local.DepartmentCode, remote.DepartmentCode, &update.DepartmentCode)
	text(model.FieldDepartmentName, local.DepartmentName, remote.DepartmentName(), &update.DepartmentName)
	text(model.FieldRegionName, local.RegionName, remote.RegionName(), &update.RegionName)

	if len(remote.PostalCodes) > 0 {
		current := sorted(local.PostalCodes)
		proposed := sorted(remote.PostalCodes)
		if !slices.Equal(current, proposed) {
			update.PostalCodes = proposed
			diffs = append(diffs, difference(model.FieldPostalCodes, current, proposed))
		}
	}

	if lat, lon, ok := remote.Centroid(); ok {
		if math.Abs(local.Center.Lat-lat) > CoordTolerance || math.Abs(local.Center.Lon-lon) > CoordTolerance {
			p := model.Point{Lat: lat, Lon: lon}
			update.Center = &p
			diffs = append(diffs, difference(model.FieldCenter,
				[]float64{local.Center.Lat, local.Center.Lon},
				[]float64{lat, lon},
			))
		}
	}

	return diffs, update
}

func sorted(codes []string) []string {
	out := slices.Clone(codes)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out
}

func difference(field model.Field, current, proposed any) model.Difference {
	return model.Difference{Field: field, Current: display(current), Proposed: display(proposed)}
}

// display renders a value the way the report shows it.
func display(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
