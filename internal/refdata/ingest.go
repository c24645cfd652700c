// Package refdata reads the reference CSV files listing communes and postal
// codes and compares their keys with the catalog.
package refdata

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/fetcher"
)

// Layout describes the columns of a reference CSV. Column names are matched
// case-insensitively; for each row the first non-empty alias wins.
type Layout struct {
	Name        string
	KeyColumns  []string
	NameColumns []string
	// TypeColumn, when present in the file, filters rows: only KeepTypes are
	// kept. Rows with an empty type are kept.
	TypeColumn string
	KeepTypes  []string
	// NameFallbackToKey uses the key as display name when no name is found.
	NameFallbackToKey bool
	Delimiter         rune
}

// PostalLayout reads the national postal code list.
var PostalLayout = Layout{
	Name:              "postal",
	KeyColumns:        []string{"code_postal", "codepostal", "code postal", "postal_code"},
	NameColumns:       []string{"nom_de_la_commune", "nom", "name", "ville", "libelle_d_acheminement"},
	NameFallbackToKey: true,
	Delimiter:         ',',
}

// INSEELayout reads the INSEE commune file (COG).
var INSEELayout = Layout{
	Name:        "insee",
	KeyColumns:  []string{"COM"},
	NameColumns: []string{"LIBELLE", "NCCENR", "NCC"},
	TypeColumn:  "TYPECOM",
	KeepTypes:   []string{"COM", "ARM"},
	Delimiter:   ',',
}

// Row is one accepted reference row.
type Row struct {
	Key  string
	Name string
	Type string
}

// Sink accumulates rows. Add reports whether the key was new.
type Sink interface {
	Add(r Row) bool
}

// Stats counts what Ingest saw.
type Stats struct {
	TotalRows    int
	Kept         int // distinct keys
	MissingKey   int
	Duplicates   int // rows whose key was already seen
	IgnoredTypes map[string]int
}

type columns struct {
	key   []int
	name  []int
	typ   int
	keeps map[string]bool
}

func resolve(header []string, l Layout) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	lookup := func(names []string) []int {
		var out []int
		for _, n := range names {
			if i, ok := index[strings.ToLower(n)]; ok {
				out = append(out, i)
			}
		}
		return out
	}

	c := columns{key: lookup(l.KeyColumns), name: lookup(l.NameColumns), typ: -1}
	if len(c.key) == 0 {
		return c, eris.Errorf("refdata: %s file has no key column (want one of %s)", l.Name, strings.Join(l.KeyColumns, ", "))
	}
	if l.TypeColumn != "" {
		if i, ok := index[strings.ToLower(l.TypeColumn)]; ok {
			c.typ = i
			c.keeps = make(map[string]bool, len(l.KeepTypes))
			for _, t := range l.KeepTypes {
				c.keeps[t] = true
			}
		}
	}
	return c, nil
}

func firstNonEmpty(record []string, idx []int) string {
	for _, i := range idx {
		if i < len(record) && record[i] != "" {
			return record[i]
		}
	}
	return ""
}

// Ingest streams r into sink. The file is never held in memory.
func Ingest(ctx context.Context, r io.Reader, l Layout, sink Sink) (Stats, error) {
	stats := Stats{IgnoredTypes: map[string]int{}}
	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  l.Delimiter,
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var (
		cols   columns
		ready  bool
		colErr error
	)
	for record := range rows {
		if !ready {
			cols, colErr = resolve(<-headerCh, l)
			ready = true
		}
		if colErr != nil {
			continue
		}
		if slices.IndexFunc(record, func(s string) bool { return s != "" }) < 0 {
			continue
		}
		stats.TotalRows++

		key := firstNonEmpty(record, cols.key)
		if key == "" {
			stats.MissingKey++
			continue
		}
		var typ string
		if cols.typ >= 0 && cols.typ < len(record) {
			typ = record[cols.typ]
			if typ != "" && !cols.keeps[typ] {
				stats.IgnoredTypes[typ]++
				continue
			}
		}
		name := firstNonEmpty(record, cols.name)
		if name == "" && l.NameFallbackToKey {
			name = key
		}
		if sink.Add(Row{Key: key, Name: name, Type: typ}) {
			stats.Kept++
		} else {
			stats.Duplicates++
		}
	}
	if err := <-errs; err != nil {
		return stats, eris.Wrapf(err, "refdata: read %s file", l.Name)
	}
	if !ready {
		select {
		case header := <-headerCh:
			_, colErr = resolve(header, l)
		default:
		}
	}
	if colErr != nil {
		return stats, colErr
	}

	zap.L().Info("refdata: ingested",
		zap.String("layout", l.Name),
		zap.Int("rows", stats.TotalRows),
		zap.Int("kept", stats.Kept),
		zap.Int("missing_key", stats.MissingKey),
		zap.Int("duplicates", stats.Duplicates),
	)
	return stats, nil
}

// IngestFile opens path and ingests it. A missing file is an error.
func IngestFile(ctx context.Context, path string, l Layout, sink Sink) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, eris.Wrapf(err, "refdata: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Ingest(ctx, f, l, sink)
}
