package refdata

import (
	"slices"
)

// KeySet records which keys exist.
type KeySet map[string]struct{}

// Add implements Sink.
func (s KeySet) Add(r Row) bool {
	if _, ok := s[r.Key]; ok {
		return false
	}
	s[r.Key] = struct{}{}
	return true
}

// Has reports whether key is present.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the keys sorted.
func (s KeySet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// NameIndex maps each key to the distinct names seen for it, in file order.
// Several communes can share one postal code.
type NameIndex map[string][]string

// Add implements Sink.
func (n NameIndex) Add(r Row) bool {
	names, seen := n[r.Key]
	if r.Name != "" && !slices.Contains(names, r.Name) {
		names = append(names, r.Name)
	}
	if names == nil {
		names = []string{}
	}
	n[r.Key] = names
	return !seen
}

// Keys returns the keys sorted.
func (n NameIndex) Keys() []string {
	out := make([]string, 0, len(n))
	for k := range n {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// RowIndex keeps the first row seen for each key.
type RowIndex map[string]Row

// Add implements Sink.
func (x RowIndex) Add(r Row) bool {
	if _, ok := x[r.Key]; ok {
		return false
	}
	x[r.Key] = r
	return true
}

// Keys returns the keys sorted.
func (x RowIndex) Keys() []string {
	out := make([]string, 0, len(x))
	for k := range x {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Missing returns the reference keys absent from catalog, sorted and without
// duplicates.
func Missing(reference, catalog []string) []string {
	have := make(map[string]struct{}, len(catalog))
	for _, k := range catalog {
		have[k] = struct{}{}
	}
	var out []string
	for _, k := range reference {
		if _, ok := have[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
