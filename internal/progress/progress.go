// Package progress persists the state of a resumable verification run: which
// INSEE codes were processed and the candidates and failures found so far.
package progress

import (
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

// Progress is the cumulative state of one verification run. Every entry is
// keyed by INSEE code; recording a code again replaces its previous outcome.
type Progress struct {
	RunID string
	Total int

	processed  map[string]struct{}
	candidates map[string]model.Candidate
	failures   map[string]model.Failure
}

// New returns an empty Progress for total expected items.
func New(total int) *Progress {
	return &Progress{
		RunID:      uuid.NewString(),
		Total:      total,
		processed:  make(map[string]struct{}),
		candidates: make(map[string]model.Candidate),
		failures:   make(map[string]model.Failure),
	}
}

// IsProcessed reports whether code was already handled.
func (p *Progress) IsProcessed(code string) bool {
	_, ok := p.processed[code]
	return ok
}

// ProcessedCount returns the number of handled codes.
func (p *Progress) ProcessedCount() int { return len(p.processed) }

// Pending returns the keys not yet processed, in the order given.
func (p *Progress) Pending(keys []string) []string {
	var out []string
	for _, k := range keys {
		if !p.IsProcessed(k) {
			out = append(out, k)
		}
	}
	return out
}

// RecordMatch marks code processed with no difference found.
func (p *Progress) RecordMatch(code string) {
	p.processed[code] = struct{}{}
	delete(p.candidates, code)
	delete(p.failures, code)
}

// RecordCandidate marks the candidate's city processed and stores it.
func (p *Progress) RecordCandidate(c model.Candidate) {
	code := c.City.INSEECode
	p.processed[code] = struct{}{}
	p.candidates[code] = c
	delete(p.failures, code)
}

// RecordFailure marks the failed city processed and stores the failure.
func (p *Progress) RecordFailure(f model.Failure) {
	code := f.City.INSEECode
	p.processed[code] = struct{}{}
	p.failures[code] = f
	delete(p.candidates, code)
}

// ResolveCandidate drops a candidate once its update has been applied. The
// code stays processed.
func (p *Progress) ResolveCandidate(code string) {
	delete(p.candidates, code)
}

// RequeueFailures forgets every failed code so the next run fetches it again.
// It returns the number of codes requeued.
func (p *Progress) RequeueFailures() int {
	n := len(p.failures)
	for code := range p.failures {
		delete(p.processed, code)
	}
	clear(p.failures)
	return n
}

// Processed returns the processed codes, sorted.
func (p *Progress) Processed() []string {
	out := make([]string, 0, len(p.processed))
	for k := range p.processed {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Candidates returns the candidates sorted by INSEE code.
func (p *Progress) Candidates() []model.Candidate {
	out := make([]model.Candidate, 0, len(p.candidates))
	for _, c := range p.candidates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City.INSEECode < out[j].City.INSEECode })
	return out
}

// Failures returns the failures sorted by INSEE code.
func (p *Progress) Failures() []model.Failure {
	out := make([]model.Failure, 0, len(p.failures))
	for _, f := range p.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City.INSEECode < out[j].City.INSEECode })
	return out
}

// restrict drops every entry whose key is not in keys.
func (p *Progress) restrict(keys []string) (dropped int) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	for k := range p.processed {
		if _, ok := keep[k]; !ok {
			delete(p.processed, k)
			dropped++
		}
	}
	for k := range p.candidates {
		if _, ok := keep[k]; !ok {
			delete(p.candidates, k)
		}
	}
	for k := range p.failures {
		if _, ok := keep[k]; !ok {
			delete(p.failures, k)
		}
	}
	return dropped
}
