// Package search resolves a city query to a point and lists the visible
// psychologists practicing within a radius of it.
package search

import (
	"cmp"
	"math"
	"slices"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/catalog"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// DefaultRadiusKm is the search radius around a city centre.
const DefaultRadiusKm = 15.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b model.Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BoundingBox returns a rectangle containing every point within radiusKm of
// center. It is a prefilter; callers still check the exact distance.
func BoundingBox(center model.Point, radiusKm float64) catalog.Box {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	dLon := dLat / math.Max(math.Cos(radians(center.Lat)), 0.01)
	return catalog.Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
}

// WithinRadius keeps the psychologists strictly closer than radiusKm to
// center, nearest first. Ties are ordered by last name then external id.
func WithinRadius(center model.Point, psys []model.Psychologist, radiusKm float64) []model.Nearby {
	out := make([]model.Nearby, 0, len(psys))
	for _, p := range psys {
		d := Haversine(center, p.Location)
		if d < radiusKm {
			out = append(out, model.Nearby{Psychologist: p, DistanceKm: d})
		}
	}
	slices.SortStableFunc(out, func(a, b model.Nearby) int {
		return cmp.Or(
			cmp.Compare(a.DistanceKm, b.DistanceKm),
			cmp.Compare(a.Psychologist.LastName, b.Psychologist.LastName),
			cmp.Compare(a.Psychologist.ExternalID, b.Psychologist.ExternalID),
		)
	})
	return out
}
