package model

import "time"

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// City is a commune of the local catalog. INSEECode is the business key.
type City struct {
	ID             int64      `json:"id"`
	INSEECode      string     `json:"insee_code"`
	Name           string     `json:"name"`
	RegionName     string     `json:"region_name"`
	DepartmentCode string     `json:"department_code"`
	DepartmentName string     `json:"department_name"`
	PostalCodes    []string   `json:"postal_codes"`
	Center         Point      `json:"center"`
	LastEnrichedAt *time.Time `json:"last_enriched_at,omitempty"`
}

// Field names a reconcilable attribute of a City. The values double as the
// keys of a CityUpdate payload.
type Field string

const (
	FieldName           Field = "name"
	FieldDepartmentCode Field = "department_code"
	FieldDepartmentName Field = "department_name"
	FieldRegionName     Field = "region_name"
	FieldPostalCodes    Field = "postal_codes"
	FieldCenter         Field = "center"
)

// Fields lists every reconcilable field in report order.
var Fields = []Field{
	FieldName,
	FieldDepartmentCode,
	FieldDepartmentName,
	FieldRegionName,
	FieldPostalCodes,
	FieldCenter,
}

// CityUpdate is a partial update of a City. Nil fields are left untouched.
// Center is one logical field that maps to both coordinate columns.
type CityUpdate struct {
	Name           *string  `json:"name,omitempty"`
	DepartmentCode *string  `json:"department_code,omitempty"`
	DepartmentName *string  `json:"department_name,omitempty"`
	RegionName     *string  `json:"region_name,omitempty"`
	PostalCodes    []string `json:"postal_codes,omitempty"`
	Center         *Point   `json:"center,omitempty"`
}

// Fields returns the fields carried by the update, in report order.
func (u CityUpdate) Fields() []Field {
	var out []Field
	if u.Name != nil {
		out = append(out, FieldName)
	}
	if u.DepartmentCode != nil {
		out = append(out, FieldDepartmentCode)
	}
	if u.DepartmentName != nil {
		out = append(out, FieldDepartmentName)
	}
	if u.RegionName != nil {
		out = append(out, FieldRegionName)
	}
	if u.PostalCodes != nil {
		out = append(out, FieldPostalCodes)
	}
	if u.Center != nil {
		out = append(out, FieldCenter)
	}
	return out
}

// IsEmpty reports whether the update carries no field at all.
func (u CityUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// Difference is one field that disagrees between the catalog and the
// provider. Current and Proposed hold display-formatted values.
type Difference struct {
	Field    Field  `json:"field"`
	Current  string `json:"current"`
	Proposed string `json:"proposed"`
}

// Candidate is a city whose provider record disagrees with the catalog.
type Candidate struct {
	City        City         `json:"city"`
	Differences []Difference `json:"differences"`
	Update      CityUpdate   `json:"update"`
}

// Failure records a city whose provider lookup did not succeed.
type Failure struct {
	City   City   `json:"city"`
	Reason string `json:"reason"`
}
