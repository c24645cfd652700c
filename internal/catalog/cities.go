package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/db"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

const cityColumns = `id, insee_code, name, region_name, department_code, department_name,
	postal_codes, center_latitude, center_longitude, last_enriched_at`

func scanCity(row pgx.Row) (model.City, error) {
	var c model.City
	err := row.Scan(
		&c.ID, &c.INSEECode, &c.Name, &c.RegionName, &c.DepartmentCode, &c.DepartmentName,
		&c.PostalCodes, &c.Center.Lat, &c.Center.Lon, &c.LastEnrichedAt,
	)
	return c, err
}

func (s *Store) queryCities(ctx context.Context, op, sql string, args ...any) ([]model.City, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", op)
	}
	defer rows.Close()

	var out []model.City
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: %s: scan", op)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", op)
	}
	return out, nil
}

// ListCities returns every city ordered by INSEE code.
func (s *Store) ListCities(ctx context.Context) ([]model.City, error) {
	return s.queryCities(ctx, "list cities",
		`SELECT `+cityColumns+` FROM cities ORDER BY insee_code`)
}

// CityByINSEE returns the city with code or ErrNotFound.
func (s *Store) CityByINSEE(ctx context.Context, code string) (*model.City, error) {
	c, err := scanCity(s.pool.QueryRow(ctx,
		`SELECT `+cityColumns+` FROM cities WHERE insee_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: city %s", code)
	}
	return &c, nil
}

// CitiesByPostalCode returns the cities served by postalCode.
func (s *Store) CitiesByPostalCode(ctx context.Context, postalCode string) ([]model.City, error) {
	return s.queryCities(ctx, "cities by postal code",
		`SELECT `+cityColumns+` FROM cities WHERE $1 = ANY(postal_codes) ORDER BY insee_code`, postalCode)
}

// CitiesByName returns the cities whose name matches case-insensitively.
func (s *Store) CitiesByName(ctx context.Context, name string) ([]model.City, error) {
	return s.queryCities(ctx, "cities by name",
		`SELECT `+cityColumns+` FROM cities WHERE lower(name) = lower($1) ORDER BY insee_code`, name)
}

// PostalCodes returns every distinct postal code of the catalog.
func (s *Store) PostalCodes(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "postal codes",
		`SELECT DISTINCT unnest(postal_codes) AS code FROM cities ORDER BY code`)
}

// INSEECodes returns every INSEE code of the catalog.
func (s *Store) INSEECodes(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "insee codes", `SELECT insee_code FROM cities ORDER BY insee_code`)
}

func (s *Store) queryStrings(ctx context.Context, op, sql string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", op)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", op)
	}
	return out, nil
}

// CreateCity inserts c and returns its id.
func (s *Store) CreateCity(ctx context.Context, c model.City) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO cities
		(insee_code, name, region_name, department_code, department_name, postal_codes, center_latitude, center_longitude, last_enriched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id`,
		c.INSEECode, c.Name, c.RegionName, c.DepartmentCode, c.DepartmentName,
		nonNil(c.PostalCodes), c.Center.Lat, c.Center.Lon,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: create city %s", c.INSEECode)
	}
	return id, nil
}

// UpdateCity applies the fields carried by u to the city with id and stamps
// last_enriched_at.
func (s *Store) UpdateCity(ctx context.Context, id int64, u model.CityUpdate) error {
	if u.IsEmpty() {
		return nil
	}
	sql, args := updateCitySQL(id, u)
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "catalog: update city %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "catalog: update city %d", id)
	}
	return nil
}

func updateCitySQL(id int64, u model.CityUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.DepartmentCode != nil {
		set("department_code", *u.DepartmentCode)
	}
	if u.DepartmentName != nil {
		set("department_name", *u.DepartmentName)
	}
	if u.RegionName != nil {
		set("region_name", *u.RegionName)
	}
	if u.PostalCodes != nil {
		set("postal_codes", u.PostalCodes)
	}
	if u.Center != nil {
		set("center_latitude", u.Center.Lat)
		set("center_longitude", u.Center.Lon)
	}
	sets = append(sets, "last_enriched_at = now()")
	args = append(args, id)
	return fmt.Sprintf("UPDATE cities SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args
}

var bulkCityColumns = []string{
	"insee_code", "name", "region_name", "department_code", "department_name",
	"postal_codes", "center_latitude", "center_longitude", "last_enriched_at",
}

func cityRows(cities []model.City, at time.Time) [][]any {
	rows := make([][]any, len(cities))
	for i, c := range cities {
		rows[i] = []any{
			c.INSEECode, c.Name, c.RegionName, c.DepartmentCode, c.DepartmentName,
			nonNil(c.PostalCodes), c.Center.Lat, c.Center.Lon, at,
		}
	}
	return rows
}

// UpsertCities writes cities keyed by INSEE code, replacing existing rows.
func (s *Store) UpsertCities(ctx context.Context, cities []model.City) (int64, error) {
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "cities",
		Columns:      bulkCityColumns,
		ConflictKeys: []string{"insee_code"},
	}, cityRows(cities, time.Now().UTC()))
	return n, eris.Wrap(err, "catalog: upsert cities")
}

// InsertCitiesSkipDuplicates inserts cities whose INSEE code is not yet in
// the catalog and leaves the others untouched.
func (s *Store) InsertCitiesSkipDuplicates(ctx context.Context, cities []model.City) (int64, error) {
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "cities",
		Columns:      bulkCityColumns,
		ConflictKeys: []string{"insee_code"},
		OnConflict:   db.ConflictSkip,
	}, cityRows(cities, time.Now().UTC()))
	return n, eris.Wrap(err, "catalog: insert cities")
}

func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}

// CitiesMatchingName returns up to limit cities whose name contains needle,
// case-insensitively, exact and prefix matches first.
func (s *Store) CitiesMatchingName(ctx context.Context, needle string, limit int) ([]model.City, error) {
	return s.queryCities(ctx, "cities matching name",
		`SELECT `+cityColumns+` FROM cities
		WHERE lower(name) LIKE '%' || lower($1) || '%'
		ORDER BY CASE
			WHEN lower(name) = lower($1) THEN 0
			WHEN lower(name) LIKE lower($1) || '%' THEN 1
			ELSE 2
		END, name
		LIMIT $2`, needle, limit)
}

// CitiesByPostalPrefix returns up to limit cities with a postal code starting
// with prefix.
func (s *Store) CitiesByPostalPrefix(ctx context.Context, prefix string, limit int) ([]model.City, error) {
	return s.queryCities(ctx, "cities by postal prefix",
		`SELECT `+cityColumns+` FROM cities
		WHERE EXISTS (SELECT 1 FROM unnest(postal_codes) AS code WHERE code LIKE $1 || '%')
		ORDER BY (SELECT min(code) FROM unnest(postal_codes) AS code WHERE code LIKE $1 || '%'), name
		LIMIT $2`, prefix, limit)
}
