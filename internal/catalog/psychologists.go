package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/db"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// CitiesDueForPsychologists returns up to limit cities whose directory fetch
// never happened or is older than before, oldest first. Cities in exclude are
// skipped.
func (s *Store) CitiesDueForPsychologists(ctx context.Context, before time.Time, limit int, exclude []int64) ([]model.City, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	return s.queryCities(ctx, "cities due for psychologists",
		`SELECT `+cityColumns+` FROM cities
		WHERE (last_psychologist_fetch IS NULL OR last_psychologist_fetch < $1)
		AND NOT (id = ANY($2))
		ORDER BY last_psychologist_fetch NULLS FIRST, id
		LIMIT $3`, before, exclude, limit)
}

// MarkPsychologistsFetched stamps the directory fetch time of ids.
func (s *Store) MarkPsychologistsFetched(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE cities SET last_psychologist_fetch = $1 WHERE id = ANY($2)`, at, ids); err != nil {
		return eris.Wrap(err, "catalog: mark psychologists fetched")
	}
	return nil
}

var psychologistColumns = []string{
	"id_out", "firstname", "lastname", "address", "address_additional",
	"coordinates_x", "coordinates_y", "phone", "email", "website", "languages",
	"public", "teleconsultation", "visible", "city_ids",
}

// UpsertPsychologists writes psys keyed by external id in one transaction.
func (s *Store) UpsertPsychologists(ctx context.Context, psys []model.Psychologist) (int64, error) {
	rows := make([][]any, len(psys))
	for i, p := range psys {
		audiences := p.Audiences
		if audiences == nil {
			audiences = []string{}
		}
		cityIDs := p.CityIDs
		if cityIDs == nil {
			cityIDs = []int64{}
		}
		rows[i] = []any{
			p.ExternalID, p.FirstName, p.LastName, p.Address, nullable(p.AddressAdditional),
			p.Location.Lon, p.Location.Lat, nullable(p.Phone), nullable(p.Email),
			nullable(p.Website), nullable(p.Languages),
			audiences, p.Teleconsultation, p.Visible, cityIDs,
		}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "psychologists",
		Columns:      psychologistColumns,
		ConflictKeys: []string{"id_out"},
	}, rows)
	return n, eris.Wrap(err, "catalog: upsert psychologists")
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// PsychologistFilter narrows a box query. Zero values disable a filter.
type PsychologistFilter struct {
	Audience         string
	Teleconsultation bool
}

// PsychologistsInBox returns the visible psychologists located inside box.
func (s *Store) PsychologistsInBox(ctx context.Context, box Box, f PsychologistFilter) ([]model.Psychologist, error) {
	sql, args := boxSQL(box, f)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: psychologists in box")
	}
	defer rows.Close()

	var out []model.Psychologist
	for rows.Next() {
		p, err := scanPsychologist(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: psychologists in box: scan")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "catalog: psychologists in box")
	}
	return out, nil
}

func boxSQL(box Box, f PsychologistFilter) (string, []any) {
	args := []any{box.MinLat, box.MaxLat, box.MinLon, box.MaxLon}
	where := []string{
		"visible",
		"coordinates_x IS NOT NULL",
		"coordinates_y IS NOT NULL",
		"coordinates_y BETWEEN $1 AND $2",
		"coordinates_x BETWEEN $3 AND $4",
	}
	if f.Audience != "" {
		args = append(args, f.Audience)
		where = append(where, fmt.Sprintf("$%d = ANY(public)", len(args)))
	}
	if f.Teleconsultation {
		where = append(where, "teleconsultation")
	}
	return `SELECT id_out, firstname, lastname, address, coalesce(address_additional, ''),
		coordinates_x, coordinates_y, coalesce(phone, ''), coalesce(email, ''),
		coalesce(website, ''), coalesce(languages, ''), public, teleconsultation, visible, city_ids
		FROM psychologists WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id_out`, args
}

func scanPsychologist(row pgx.Row) (model.Psychologist, error) {
	var p model.Psychologist
	err := row.Scan(
		&p.ExternalID, &p.FirstName, &p.LastName, &p.Address, &p.AddressAdditional,
		&p.Location.Lon, &p.Location.Lat, &p.Phone, &p.Email, &p.Website, &p.Languages,
		&p.Audiences, &p.Teleconsultation, &p.Visible, &p.CityIDs,
	)
	return p, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
