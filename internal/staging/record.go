// Package staging buffers scraped psychologist records in a local SQLite
// file, one row per external id, until they are bulk loaded into the catalog.
package staging

import (
	"bytes"
	"slices"
)

// Record is one staged psychologist.
type Record struct {
	ExternalID string
	// Payload is the raw provider JSON.
	Payload []byte
	// CityIDs are the catalog cities whose search returned the record, in
	// the order they were first seen.
	CityIDs []int64
}

// Merge folds a new sighting into existing. The city id is added when new;
// the payload is replaced only when it differs byte for byte. changed
// reports whether the stored row must be rewritten.
func Merge(existing Record, payload []byte, cityID int64) (merged Record, changed bool) {
	merged = Record{
		ExternalID: existing.ExternalID,
		Payload:    existing.Payload,
		CityIDs:    slices.Clone(existing.CityIDs),
	}
	if !slices.Contains(merged.CityIDs, cityID) {
		merged.CityIDs = append(merged.CityIDs, cityID)
		changed = true
	}
	if !bytes.Equal(existing.Payload, payload) {
		merged.Payload = slices.Clone(payload)
		changed = true
	}
	return merged, changed
}
