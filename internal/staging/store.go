package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown external id.
var ErrNotFound = errors.New("staging: record not found")

// Entry is one record returned by a search, ready to be staged.
type Entry struct {
	ExternalID string
	Payload    []byte
}

// Store is the SQLite staging database. It has a single writer.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "staging: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "staging: exec %s", pragma)
		}
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS psychologists (
	id_out   TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	city_ids TEXT NOT NULL DEFAULT '[]'
);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "staging: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func get(ctx context.Context, q querier, id string) (*Record, error) {
	var (
		data string
		ids  string
	)
	err := q.QueryRowContext(ctx, `SELECT data, city_ids FROM psychologists WHERE id_out = ?`, id).Scan(&data, &ids)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "staging: get %s", id)
	}
	r := &Record{ExternalID: id, Payload: []byte(data)}
	if err := json.Unmarshal([]byte(ids), &r.CityIDs); err != nil {
		return nil, eris.Wrapf(err, "staging: decode city ids of %s", id)
	}
	return r, nil
}

func upsert(ctx context.Context, q querier, e Entry, cityID int64) (bool, error) {
	existing, err := get(ctx, q, e.ExternalID)
	if errors.Is(err, ErrNotFound) {
		ids, _ := json.Marshal([]int64{cityID})
		if _, err := q.ExecContext(ctx,
			`INSERT INTO psychologists (id_out, data, city_ids) VALUES (?, ?, ?)`,
			e.ExternalID, string(e.Payload), string(ids),
		); err != nil {
			return false, eris.Wrapf(err, "staging: insert %s", e.ExternalID)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	merged, changed := Merge(*existing, e.Payload, cityID)
	if !changed {
		return false, nil
	}
	ids, err := json.Marshal(merged.CityIDs)
	if err != nil {
		return false, eris.Wrap(err, "staging: encode city ids")
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE psychologists SET data = ?, city_ids = ? WHERE id_out = ?`,
		string(merged.Payload), string(ids), e.ExternalID,
	); err != nil {
		return false, eris.Wrapf(err, "staging: update %s", e.ExternalID)
	}
	return true, nil
}

// Upsert stages one sighting of a record found around cityID. It reports
// whether the stored row changed.
func (s *Store) Upsert(ctx context.Context, e Entry, cityID int64) (bool, error) {
	return upsert(ctx, s.db, e, cityID)
}

// UpsertMany stages every entry found around cityID in one transaction and
// returns the number of rows written.
func (s *Store) UpsertMany(ctx context.Context, entries []Entry, cityID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "staging: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var written int
	for _, e := range entries {
		changed, err := upsert(ctx, tx, e, cityID)
		if err != nil {
			return 0, err
		}
		if changed {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "staging: commit")
	}
	return written, nil
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	return get(ctx, s.db, id)
}

// Count returns the number of staged records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM psychologists`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "staging: count")
	}
	return n, nil
}

// Scan calls fn for every record in external id order. It stops at the
// first error returned by fn. fn must not call the Store.
func (s *Store) Scan(ctx context.Context, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id_out, data, city_ids FROM psychologists ORDER BY id_out`)
	if err != nil {
		return eris.Wrap(err, "staging: scan")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			r        Record
			data     string
			cityJSON string
		)
		if err := rows.Scan(&r.ExternalID, &data, &cityJSON); err != nil {
			return eris.Wrap(err, "staging: scan row")
		}
		r.Payload = []byte(data)
		if err := json.Unmarshal([]byte(cityJSON), &r.CityIDs); err != nil {
			return eris.Wrapf(err, "staging: decode city ids of %s", r.ExternalID)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "staging: iterate")
}
