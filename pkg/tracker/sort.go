package tracker

import (
	"fmt"
	"sort"
)

// Sort keys accepted by Sort.
const (
	SortByCount    = "count"
	SortByDuration = "duration"
	SortByAvg      = "avg"
)

// Entry pairs a record with its fingerprint key and id.
type Entry struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Record Record `json:"record"`
}

// ValidSortKey reports whether by names a supported ordering.
func ValidSortKey(by string) bool {
	switch by {
	case SortByCount, SortByDuration, SortByAvg:
		return true
	}
	return false
}

// Sort flattens data into entries ordered by the given key, largest first.
// Ties are broken by fingerprint key so the order is stable.
func Sort(data map[string]Record, by string) ([]Entry, error) {
	if by == "" {
		by = SortByCount
	}
	if !ValidSortKey(by) {
		return nil, fmt.Errorf("unknown sort key %q", by)
	}

	entries := make([]Entry, 0, len(data))
	for k, rec := range data {
		entries = append(entries, Entry{Key: k, ID: FingerprintID(k), Record: rec})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Record, entries[j].Record
		var less, equal bool
		switch by {
		case SortByDuration:
			equal = a.TotalDuration == b.TotalDuration
			less = a.TotalDuration > b.TotalDuration
		case SortByAvg:
			equal = a.AvgDuration() == b.AvgDuration()
			less = a.AvgDuration() > b.AvgDuration()
		default:
			equal = a.Count == b.Count
			less = a.Count > b.Count
		}
		if equal {
			return entries[i].Key < entries[j].Key
		}
		return less
	})
	return entries, nil
}
