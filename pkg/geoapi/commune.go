package geoapi

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Area is a department or a region.
type Area struct {
	Code string `json:"code"`
	Name string `json:"nom"`
}

// Commune is the API's view of a commune. Optional fields stay at their zero
// value when the API omits them.
type Commune struct {
	Name           string          `json:"nom"`
	Code           string          `json:"code"`
	DepartmentCode string          `json:"codeDepartement"`
	RegionCode     string          `json:"codeRegion"`
	PostalCodes    []string        `json:"codesPostaux"`
	Population     int             `json:"population"`
	Centre         json.RawMessage `json:"centre,omitempty"`
	Department     *Area           `json:"departement,omitempty"`
	Region         *Area           `json:"region,omitempty"`
}

// Centroid decodes the GeoJSON centre. ok is false when the centre is absent
// or is not a point.
func (c *Commune) Centroid() (lat, lon float64, ok bool) {
	if len(c.Centre) == 0 || string(c.Centre) == "null" {
		return 0, 0, false
	}
	var g geom.T
	if err := geojson.Unmarshal(c.Centre, &g); err != nil {
		return 0, 0, false
	}
	p, isPoint := g.(*geom.Point)
	if !isPoint || p.Empty() {
		return 0, 0, false
	}
	return p.Y(), p.X(), true
}

// DepartmentName returns the embedded department name, if any.
func (c *Commune) DepartmentName() string {
	if c.Department == nil {
		return ""
	}
	return c.Department.Name
}

// RegionName returns the embedded region name, if any.
func (c *Commune) RegionName() string {
	if c.Region == nil {
		return ""
	}
	return c.Region.Name
}

// Commune fetches one commune by INSEE code with its department and region.
func (c *Client) Commune(ctx context.Context, code string) (*Commune, error) {
	var out Commune
	err := c.get(ctx, "commune", "/communes/"+url.PathEscape(code), map[string]string{
		"fields": communeFields,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Code == "" {
		return nil, eris.Errorf("geoapi: commune %s: empty response", code)
	}
	return &out, nil
}

// CommunesByPostalCode lists the communes served by a postal code.
func (c *Client) CommunesByPostalCode(ctx context.Context, postalCode string) ([]Commune, error) {
	var out []Commune
	err := c.get(ctx, "communes by postal code", "/communes", map[string]string{
		"codePostal": postalCode,
		"fields":     postalCodeFields,
		"format":     "json",
		"geometry":   "centre",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Region fetches a region by code.
func (c *Client) Region(ctx context.Context, code string) (*Area, error) {
	var out Area
	if err := c.get(ctx, "region", "/regions/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Department fetches a department by code.
func (c *Client) Department(ctx context.Context, code string) (*Area, error) {
	var out Area
	if err := c.get(ctx, "department", "/departements/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
