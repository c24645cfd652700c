// Package psyetl extracts psychologists from the public directory city by
// city into the staging store and bulk loads them into the catalog.
package psyetl

import (
	"regexp"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/ameli"
)

var audiencePatterns = []struct {
	re       *regexp.Regexp
	audience string
}{
	{regexp.MustCompile(`(?i)adultes?`), model.AudienceAdults},
	{regexp.MustCompile(`(?i)adolescents?`), model.AudienceTeenagers},
	{regexp.MustCompile(`(?i)enfants?`), model.AudienceChildren},
}

// ParseAudiences maps the directory's free-text "public" field to audience
// values, in a fixed order.
func ParseAudiences(public string) []string {
	out := []string{}
	for _, p := range audiencePatterns {
		if p.re.MatchString(public) {
			out = append(out, p.audience)
		}
	}
	return out
}

// FromRecord converts a directory record. A missing visible flag means
// visible; a missing teleconsultation flag means no teleconsultation.
func FromRecord(r *ameli.Record, cityIDs []int64) model.Psychologist {
	p := model.Psychologist{
		ExternalID:        r.ID.String(),
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Address:           r.Address,
		AddressAdditional: r.AddressAdditional,
		Location:          model.Point{Lat: r.CoordinatesY, Lon: r.CoordinatesX},
		Phone:             r.Phone,
		Email:             r.Email,
		Website:           r.Website,
		Languages:         r.Languages,
		Audiences:         ParseAudiences(r.Public),
		Visible:           true,
		CityIDs:           cityIDs,
	}
	if r.Visible != nil {
		p.Visible = *r.Visible
	}
	if r.Teleconsultation != nil {
		p.Teleconsultation = *r.Teleconsultation
	}
	return p
}
