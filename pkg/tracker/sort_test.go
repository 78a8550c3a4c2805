package tracker

import (
	"testing"
	"time"
)

func TestSort(t *testing.T) {
	data := map[string]Record{
		"a": {Count: 10, TotalDuration: 10 * time.Millisecond},
		"b": {Count: 2, TotalDuration: 40 * time.Millisecond},
		"c": {Count: 5, TotalDuration: 15 * time.Millisecond},
		"d": {Count: 5, TotalDuration: 5 * time.Millisecond},
	}

	tests := []struct {
		by       string
		expected []string
	}{
		{"", []string{"a", "c", "d", "b"}},
		{SortByCount, []string{"a", "c", "d", "b"}},
		{SortByDuration, []string{"b", "c", "a", "d"}},
		{SortByAvg, []string{"b", "c", "a", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.by, func(t *testing.T) {
			entries, err := Sort(data, tt.by)
			if err != nil {
				t.Fatalf("Sort() error = %v", err)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("len = %d, want %d", len(entries), len(tt.expected))
			}
			for i, key := range tt.expected {
				if entries[i].Key != key {
					t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, key)
				}
				if entries[i].ID != FingerprintID(key) {
					t.Errorf("entries[%d].ID = %q, want %q", i, entries[i].ID, FingerprintID(key))
				}
			}
		})
	}
}

func TestSortUnknownKey(t *testing.T) {
	if _, err := Sort(map[string]Record{}, "latency"); err == nil {
		t.Error("Sort() with unknown key returned no error")
	}
}
