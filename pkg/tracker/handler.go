package tracker

import (
	"log/slog"
	"strings"
	"time"
)

// Observer is notified after an event has been recorded under key.
type Observer interface {
	Observe(key string, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(key string, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(key string, ev Event) { f(key, ev) }

// Option configures a Handler.
type Option func(*Handler)

// WithObserver registers o to be called for every recorded event.
func WithObserver(o Observer) Option {
	return func(h *Handler) {
		h.observers = append(h.observers, o)
	}
}

// Handler routes executed statements through the filter, the normalizer and
// the aggregator. It is safe for concurrent use.
type Handler struct {
	config     *Config
	filter     *Filter
	aggregator *Aggregator
	observers  []Observer
}

// NewHandler creates a Handler owning its own tracking table. cfg may be nil,
// in which case every event is rejected and only CleanSQLQuery is useful.
func NewHandler(cfg *Config, opts ...Option) *Handler {
	maxSources := 0
	if cfg != nil {
		maxSources = cfg.MaxSources
	}
	h := &Handler{
		config:     cfg,
		filter:     NewFilter(cfg),
		aggregator: NewAggregator(maxSources),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Call records one executed statement. It never fails: malformed or rejected
// events are dropped.
func (h *Handler) Call(name string, startedAt, finishedAt time.Time, transactionID string, payload *Payload) {
	h.Handle(Event{
		Name:          name,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		TransactionID: transactionID,
		Payload:       payload,
	})
}

// Handle records ev if the filter accepts it and reports whether it did.
func (h *Handler) Handle(ev Event) bool {
	sql, ok := ev.Payload.Statement()
	if !ok {
		slog.Debug("[tracker] event without statement", "name", ev.Name, "transaction_id", ev.TransactionID)
		return false
	}
	if !h.filter.Accepts(ev) {
		return false
	}

	cleaned := CleanSQLQuery(sql)
	key := strings.ToLower(cleaned)
	h.aggregator.Record(key, cleaned, ev.Duration(), h.filter.MatchedSources(ev))

	for _, o := range h.observers {
		o.Observe(key, ev)
	}
	return true
}

// CleanSQLQuery masks literal values in query.
func (h *Handler) CleanSQLQuery(query string) string {
	return CleanSQLQuery(query)
}

// Data returns a snapshot of the tracking table keyed by fingerprint.
func (h *Handler) Data() map[string]Record {
	return h.aggregator.Data()
}

// Lookup returns the key and record whose FingerprintID is id.
func (h *Handler) Lookup(id string) (string, Record, bool) {
	return h.aggregator.Lookup(id)
}

// Len returns the number of tracked fingerprints.
func (h *Handler) Len() int {
	return h.aggregator.Len()
}

// Reset clears the tracking table.
func (h *Handler) Reset() {
	h.aggregator.Reset()
}

// Config returns the configuration the handler was built with.
func (h *Handler) Config() *Config {
	return h.config
}
