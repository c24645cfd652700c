package proxy

import (
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
)

// LaneStats counts outcomes on one lane.
type LaneStats struct {
	Label     string
	Successes int
	Errors    int
}

// Stats accumulates request outcomes per lane. Safe for concurrent use.
type Stats struct {
	mu    sync.Mutex
	lanes []LaneStats
}

func newStats(labels []string) *Stats {
	lanes := make([]LaneStats, len(labels))
	for i, l := range labels {
		lanes[i].Label = l
	}
	return &Stats{lanes: lanes}
}

// Record counts one outcome for lane i. A nil err is a success.
func (s *Stats) Record(i int, err error) {
	if s == nil || len(s.lanes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.lanes)
	l := &s.lanes[((i%n)+n)%n]
	if err != nil {
		l.Errors++
	} else {
		l.Successes++
	}
}

// Snapshot returns a copy of the counters in lane order.
func (s *Stats) Snapshot() []LaneStats {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LaneStats(nil), s.lanes...)
}

// Render writes the counters as a table.
func (s *Stats) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Proxy usage")
	t.AppendHeader(table.Row{"Proxy", "Success", "Errors", "Total"})

	var ok, failed int
	for _, l := range s.Snapshot() {
		t.AppendRow(table.Row{l.Label, l.Successes, l.Errors, l.Successes + l.Errors})
		ok += l.Successes
		failed += l.Errors
	}
	t.AppendFooter(table.Row{"Total", ok, failed, ok + failed})
	t.Render()
}
