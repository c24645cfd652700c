package reconcile

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/progress"
)

// maxListedFailures bounds the failures printed on the terminal. The report
// file lists them all.
const maxListedFailures = 10

// RenderSummary prints the end-of-fetch summary: one row per candidate with
// its changes, then the first failures.
func RenderSummary(w io.Writer, p *progress.Progress) {
	candidates := p.Candidates()
	failures := p.Failures()

	fmt.Fprintf(w, "Processed %d/%d cities: %d need updates, %d failed.\n",
		p.ProcessedCount(), p.Total, len(candidates), len(failures))

	if len(candidates) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle("Cities needing updates")
		t.AppendHeader(table.Row{"INSEE", "City", "Field", "Current", "Proposed"})
		for _, c := range candidates {
			for i, d := range c.Differences {
				code, name := "", ""
				if i == 0 {
					code, name = c.City.INSEECode, c.City.Name
				}
				t.AppendRow(table.Row{code, name, string(d.Field), d.Current, d.Proposed})
			}
			t.AppendSeparator()
		}
		t.Render()
	}

	if len(failures) > 0 {
		fmt.Fprintf(w, "Failed lookups (%d):\n", len(failures))
		for i, f := range failures {
			if i == maxListedFailures {
				fmt.Fprintf(w, "  ... and %d more\n", len(failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(w, "  - %s (%s): %s\n", f.City.Name, f.City.INSEECode, f.Reason)
		}
	}
}
