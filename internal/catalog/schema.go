// Package catalog is the primary Postgres store of cities and psychologists.
package catalog

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/db"
)

// ErrNotFound is returned when a keyed lookup or update matches no row.
var ErrNotFound = errors.New("catalog: not found")

// Store implements the catalog over a pgx pool.
type Store struct {
	pool db.Pool
}

// New wraps pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS cities (
	id                      BIGSERIAL PRIMARY KEY,
	insee_code              TEXT NOT NULL UNIQUE,
	name                    TEXT NOT NULL,
	region_name             TEXT NOT NULL DEFAULT '',
	department_code         TEXT NOT NULL DEFAULT '',
	department_name         TEXT NOT NULL DEFAULT '',
	postal_codes            TEXT[] NOT NULL DEFAULT '{}',
	center_latitude         DOUBLE PRECISION NOT NULL DEFAULT 0,
	center_longitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_enriched_at        TIMESTAMPTZ,
	last_psychologist_fetch TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cities_postal_codes ON cities USING GIN (postal_codes);
CREATE INDEX IF NOT EXISTS idx_cities_lower_name ON cities (lower(name));
CREATE INDEX IF NOT EXISTS idx_cities_psychologist_fetch ON cities (last_psychologist_fetch NULLS FIRST);

CREATE TABLE IF NOT EXISTS psychologists (
	id                 BIGSERIAL PRIMARY KEY,
	id_out             TEXT NOT NULL UNIQUE,
	firstname          TEXT NOT NULL DEFAULT '',
	lastname           TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	address_additional TEXT,
	coordinates_x      DOUBLE PRECISION,
	coordinates_y      DOUBLE PRECISION,
	phone              TEXT,
	email              TEXT,
	website            TEXT,
	languages          TEXT,
	public             TEXT[] NOT NULL DEFAULT '{}',
	teleconsultation   BOOLEAN NOT NULL DEFAULT false,
	visible            BOOLEAN NOT NULL DEFAULT true,
	city_ids           BIGINT[] NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_psychologists_coords ON psychologists (coordinates_y, coordinates_x);
`

// Migrate creates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "catalog: migrate")
	}
	return nil
}

// PostalMigration reports what MigratePostalCodes did.
type PostalMigration struct {
	LegacyColumn  bool
	Copied        int64
	WithPostal    int64
	WithoutPostal int64
}

// MigratePostalCodes folds the legacy single postal_code column into the
// postal_codes array and drops it. It is a no-op once the column is gone.
func (s *Store) MigratePostalCodes(ctx context.Context) (PostalMigration, error) {
	var res PostalMigration
	log := zap.L().With(zap.String("component", "catalog"))

	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'cities' AND column_name = 'postal_code'
	)`).Scan(&res.LegacyColumn)
	if err != nil {
		return res, eris.Wrap(err, "catalog: inspect cities columns")
	}

	if res.LegacyColumn {
		if _, err := s.pool.Exec(ctx, `ALTER TABLE cities ADD COLUMN IF NOT EXISTS postal_codes TEXT[] NOT NULL DEFAULT '{}'`); err != nil {
			return res, eris.Wrap(err, "catalog: add postal_codes")
		}
		tag, err := s.pool.Exec(ctx, `UPDATE cities SET postal_codes = ARRAY[postal_code]
			WHERE postal_code IS NOT NULL AND postal_code <> '' AND cardinality(postal_codes) = 0`)
		if err != nil {
			return res, eris.Wrap(err, "catalog: copy postal_code")
		}
		res.Copied = tag.RowsAffected()
		log.Info("catalog: copied legacy postal codes", zap.Int64("rows", res.Copied))
	}

	err = s.pool.QueryRow(ctx, `SELECT
		count(*) FILTER (WHERE cardinality(postal_codes) > 0),
		count(*) FILTER (WHERE cardinality(postal_codes) = 0)
		FROM cities`).Scan(&res.WithPostal, &res.WithoutPostal)
	if err != nil {
		return res, eris.Wrap(err, "catalog: count postal codes")
	}

	if res.LegacyColumn {
		if _, err := s.pool.Exec(ctx, `ALTER TABLE cities DROP COLUMN postal_code`); err != nil {
			return res, eris.Wrap(err, "catalog: drop postal_code")
		}
		log.Info("catalog: dropped legacy postal_code column")
	}
	return res, nil
}
