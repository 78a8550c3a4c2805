package tracker

import (
	"sync"
	"time"
)

// Record holds the running statistics for one fingerprint.
type Record struct {
	SQL           string        `json:"sql"`
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastDuration  time.Duration `json:"lastDuration"`
	Sources       []string      `json:"source,omitempty"`
	FirstSeen     time.Time     `json:"firstSeen"`
	LastSeen      time.Time     `json:"lastSeen"`
}

// AvgDuration returns TotalDuration divided by Count.
func (r Record) AvgDuration() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.TotalDuration / time.Duration(r.Count)
}

// Aggregator maintains the tracking table. Records are never evicted.
type Aggregator struct {
	mu         sync.RWMutex
	records    map[string]*Record
	ids        map[string]string // FingerprintID -> key
	maxSources int
}

// NewAggregator creates an empty table. maxSources caps the caller locations
// kept per record; zero or less uses DefaultMaxSources.
func NewAggregator(maxSources int) *Aggregator {
	if maxSources <= 0 {
		maxSources = DefaultMaxSources
	}
	return &Aggregator{
		records:    make(map[string]*Record),
		ids:        make(map[string]string),
		maxSources: maxSources,
	}
}

// Record adds one observation to key, creating the record on first use. sql is
// only stored when the record is created.
func (a *Aggregator) Record(key, sql string, d time.Duration, sources []string) {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[key]
	if !ok {
		rec = &Record{SQL: sql, FirstSeen: now}
		a.records[key] = rec
		a.ids[FingerprintID(key)] = key
	}
	rec.Count++
	rec.TotalDuration += d
	rec.LastDuration = d
	rec.LastSeen = now

	for _, src := range sources {
		if len(rec.Sources) >= a.maxSources {
			break
		}
		if !containsString(rec.Sources, src) {
			rec.Sources = append(rec.Sources, src)
		}
	}
}

// Get returns a copy of the record stored under key.
func (a *Aggregator) Get(key string) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[key]
	if !ok {
		return Record{}, false
	}
	return copyRecord(rec), true
}

// Lookup returns the key and a copy of the record whose FingerprintID is id.
func (a *Aggregator) Lookup(id string) (string, Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	key, ok := a.ids[id]
	if !ok {
		return "", Record{}, false
	}
	return key, copyRecord(a.records[key]), true
}

// Data returns a copy of the whole table.
func (a *Aggregator) Data() map[string]Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]Record, len(a.records))
	for k, rec := range a.records {
		out[k] = copyRecord(rec)
	}
	return out
}

// Len returns the number of fingerprints in the table.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Reset drops every record.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = make(map[string]*Record)
	a.ids = make(map[string]string)
}

func copyRecord(rec *Record) Record {
	out := *rec
	if rec.Sources != nil {
		out.Sources = append([]string(nil), rec.Sources...)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
