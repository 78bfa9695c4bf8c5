// Package dedup finds documents whose set of distinct terms repeats an
// earlier document's and removes the later copies from the store.
package dedup

import (
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Store is the part of indexer.Engine the detector needs.
type Store interface {
	IDs() iter.Seq[int]
	WordFrequencies(id int) map[string]float64
	RemoveDocument(id int)
}

// FindDuplicates scans ids in ascending order and returns every id whose term
// set (frequencies ignored) equals that of a smaller id.
func FindDuplicates(store Store) []int {
	seen := make(map[string]struct{})
	var duplicates []int
	for id := range store.IDs() {
		key := termSetKey(store.WordFrequencies(id))
		if _, dup := seen[key]; dup {
			duplicates = append(duplicates, id)
			continue
		}
		seen[key] = struct{}{}
	}
	return duplicates
}

// RemoveDuplicates removes every id reported by FindDuplicates and returns
// them. The first document of each term set is always kept.
func RemoveDuplicates(store Store) []int {
	logger := slog.Default().With("component", "dedup")
	duplicates := FindDuplicates(store)
	for _, id := range duplicates {
		logger.Info("found duplicate document", "doc_id", id)
		store.RemoveDocument(id)
	}
	return duplicates
}

// termSetKey is the sorted terms joined by NUL, a byte that valid terms
// cannot contain.
func termSetKey(freqs map[string]float64) string {
	return strings.Join(slices.Sorted(maps.Keys(freqs)), "\x00")
}
