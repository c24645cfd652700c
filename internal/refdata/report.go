package refdata

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const rule = "==========================================="

// RenderMissingPostal writes the missing postal codes report.
func RenderMissingPostal(w io.Writer, now time.Time, missing []string, names NameIndex) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "POSTAL CODES MISSING FROM THE CATALOG")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Date: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(w, "Missing postal codes: %d\n\n", len(missing))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	for _, code := range missing {
		fmt.Fprintf(w, "Postal code: %s\n", code)
		fmt.Fprintf(w, "  City(ies): %s\n\n", strings.Join(names[code], ", "))
	}
}

// FormatIgnoredTypes renders the ignored type histogram, most frequent
// first.
func FormatIgnoredTypes(ignored map[string]int) string {
	if len(ignored) == 0 {
		return "none"
	}
	types := make([]string, 0, len(ignored))
	for t := range ignored {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if ignored[types[i]] != ignored[types[j]] {
			return ignored[types[i]] > ignored[types[j]]
		}
		return types[i] < types[j]
	})
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s: %d", t, ignored[t])
	}
	return strings.Join(parts, ", ")
}

// RenderMissingINSEE writes the missing INSEE codes report as a
// semicolon-separated listing after the counters.
func RenderMissingINSEE(w io.Writer, now time.Time, missing []Row, stats Stats, catalogCount int) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "INSEE CODES MISSING FROM THE CATALOG")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Date: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(w, "Rows in CSV: %d\n", stats.TotalRows)
	fmt.Fprintf(w, "Communes kept (COM + ARM): %d\n", stats.Kept)
	fmt.Fprintf(w, "Ignored codes (other TYPECOM): %s\n", FormatIgnoredTypes(stats.IgnoredTypes))
	fmt.Fprintf(w, "Rows without COM code: %d\n", stats.MissingKey)
	fmt.Fprintf(w, "Duplicates in CSV: %d\n", stats.Duplicates)
	fmt.Fprintf(w, "Communes in catalog: %d\n", catalogCount)
	fmt.Fprintf(w, "Codes missing from catalog: %d\n\n", len(missing))

	if len(missing) == 0 {
		fmt.Fprintln(w, "Every COM/ARM INSEE code of the CSV is in the catalog.")
		return
	}
	fmt.Fprintln(w, "Full list:")
	fmt.Fprintln(w, "code;type;name")
	for _, r := range missing {
		typ := r.Type
		if typ == "" {
			typ = "UNKNOWN"
		}
		fmt.Fprintf(w, "%s;%s;%s\n", r.Key, typ, r.Name)
	}
}

// WriteReport renders a report into dir/<prefix>_<unix>.txt and returns the
// path.
func WriteReport(dir, prefix string, now time.Time, render func(w io.Writer)) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.txt", prefix, now.Unix()))
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "refdata: create report %s", path)
	}
	bw := bufio.NewWriter(f)
	render(bw)
	if err := bw.Flush(); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "refdata: write report %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "refdata: close report %s", path)
	}
	return path, nil
}
