// Package eventstore keeps a bounded window of recently tracked statement
// executions, indexed by fingerprint.
package eventstore

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"sql-tracker/pkg/tracker"
)

// Event is a tracked execution as kept by the store.
type Event struct {
	ID            string        `json:"id"`
	Fingerprint   string        `json:"fingerprint"`
	FingerprintID string        `json:"fingerprintId"`
	Name          string        `json:"name"`
	TransactionID string        `json:"transactionId,omitempty"`
	SQL           string        `json:"sql"`
	Source        []string      `json:"source,omitempty"`
	Connection    string        `json:"connection,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	RecordedAt    time.Time     `json:"recordedAt"`
}

// Store holds the most recent events, newest first. Events beyond maxEvents
// or older than maxAge are evicted on insert.
type Store struct {
	mu sync.RWMutex

	events        *list.List
	byFingerprint map[string]*list.List // fingerprint id -> list of *list.Element

	maxEvents int
	maxAge    time.Duration
	now       func() time.Time
}

// New creates a store. maxAge of zero disables age eviction.
func New(maxEvents int, maxAge time.Duration) *Store {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &Store{
		events:        list.New(),
		byFingerprint: make(map[string]*list.List),
		maxEvents:     maxEvents,
		maxAge:        maxAge,
		now:           time.Now,
	}
}

// Observe records ev under its fingerprint key. It satisfies tracker.Observer.
func (s *Store) Observe(key string, ev tracker.Event) {
	stored := &Event{
		ID:            uuid.NewString(),
		Fingerprint:   key,
		FingerprintID: tracker.FingerprintID(key),
		Name:          ev.Name,
		TransactionID: ev.TransactionID,
		StartedAt:     ev.StartedAt,
		Duration:      ev.Duration(),
	}
	if ev.Payload != nil {
		stored.SQL = ev.Payload.SQL
		stored.Source = append([]string(nil), ev.Payload.Source...)
		stored.Connection = ev.Payload.Connection
	}
	s.Add(stored)
}

// Add inserts ev and applies the count and age limits.
func (s *Store) Add(ev *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = s.now()
	}

	elem := s.events.PushFront(ev)
	idx := s.byFingerprint[ev.FingerprintID]
	if idx == nil {
		idx = list.New()
		s.byFingerprint[ev.FingerprintID] = idx
	}
	idx.PushFront(elem)

	for s.events.Len() > s.maxEvents {
		s.remove(s.events.Back())
	}
	s.evictExpired()
}

func (s *Store) evictExpired() {
	if s.maxAge <= 0 {
		return
	}
	cutoff := s.now().Add(-s.maxAge)
	for {
		elem := s.events.Back()
		if elem == nil {
			return
		}
		if elem.Value.(*Event).RecordedAt.After(cutoff) {
			return
		}
		s.remove(elem)
	}
}

func (s *Store) remove(elem *list.Element) {
	ev := s.events.Remove(elem).(*Event)

	idx := s.byFingerprint[ev.FingerprintID]
	if idx == nil {
		return
	}
	// Evicted events are the oldest, so scan from the back.
	for e := idx.Back(); e != nil; e = e.Prev() {
		if e.Value.(*list.Element) == elem {
			idx.Remove(e)
			break
		}
	}
	if idx.Len() == 0 {
		delete(s.byFingerprint, ev.FingerprintID)
	}
}

// Recent returns up to limit events, newest first. A limit of zero or less
// returns everything.
func (s *Store) Recent(limit int) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.events.Len() {
		limit = s.events.Len()
	}
	results := make([]*Event, 0, limit)
	for e := s.events.Front(); e != nil && len(results) < limit; e = e.Next() {
		results = append(results, e.Value.(*Event))
	}
	return results
}

// ByFingerprint returns up to limit events recorded for the fingerprint id,
// newest first.
func (s *Store) ByFingerprint(id string, limit int) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byFingerprint[id]
	if idx == nil {
		return nil
	}
	if limit <= 0 || limit > idx.Len() {
		limit = idx.Len()
	}
	results := make([]*Event, 0, limit)
	for e := idx.Front(); e != nil && len(results) < limit; e = e.Next() {
		results = append(results, e.Value.(*list.Element).Value.(*Event))
	}
	return results
}

// Count returns the number of stored events.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.Len()
}

// Reset drops every stored event.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.Init()
	s.byFingerprint = make(map[string]*list.List)
}

var _ tracker.Observer = (*Store)(nil)
