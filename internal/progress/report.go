package progress

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderReport writes the human-readable summary of p: counts, a histogram
// of candidates by number of changed fields, then every candidate and
// failure.
func RenderReport(w io.Writer, p *Progress) {
	candidates := p.Candidates()
	failures := p.Failures()

	fmt.Fprintf(w, "City verification report (run %s)\n\n", p.RunID)

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.AppendRows([]table.Row{
		{"Expected", p.Total},
		{"Processed", p.ProcessedCount()},
		{"Pending", max(p.Total-p.ProcessedCount(), 0)},
		{"Candidates", len(candidates)},
		{"Failures", len(failures)},
	})
	summary.Render()

	if len(candidates) > 0 {
		hist := map[int]int{}
		for _, c := range candidates {
			hist[len(c.Differences)]++
		}
		keys := make([]int, 0, len(hist))
		for k := range hist {
			keys = append(keys, k)
		}
		sort.Ints(keys)

		ht := table.NewWriter()
		ht.SetOutputMirror(w)
		ht.SetTitle("Candidates by changed fields")
		ht.AppendHeader(table.Row{"Changed fields", "Cities"})
		for _, k := range keys {
			ht.AppendRow(table.Row{k, hist[k]})
		}
		fmt.Fprintln(w)
		ht.Render()

		fmt.Fprintf(w, "\nCities needing updates: %d\n\n", len(candidates))
		for i, c := range candidates {
			fmt.Fprintf(w, "%d. %s (%s) - %d change(s)\n", i+1, c.City.Name, c.City.INSEECode, len(c.Differences))
			for _, d := range c.Differences {
				fmt.Fprintf(w, "   - %s: %s -> %s\n", d.Field, d.Current, d.Proposed)
			}
		}
	}

	if len(failures) > 0 {
		fmt.Fprintf(w, "\nFailed lookups: %d\n\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(w, " - %s (%s): %s\n", f.City.Name, f.City.INSEECode, f.Reason)
		}
	}
}
