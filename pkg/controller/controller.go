package controller

import (
	"context"
	"net/http"
	"sync"

	"sql-tracker/pkg/eventstore"
	"sql-tracker/pkg/metrics"
	"sql-tracker/pkg/store"
	"sql-tracker/pkg/tracker"

	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exporter publishes a ranked report somewhere outside the process.
type Exporter interface {
	Export(ctx context.Context, title string, entries []tracker.Entry) (string, error)
}

// Options holds the optional collaborators of a Controller.
type Options struct {
	Store    *store.Store // nil disables the snapshot endpoints
	Exporter Exporter     // nil disables the Notion endpoint
	TopN     int
	SortBy   string
}

// Controller serves the tracking table over HTTP and WebSocket.
type Controller struct {
	handler  *tracker.Handler
	events   *eventstore.Store
	store    *store.Store
	exporter Exporter
	registry *prometheus.Registry

	topN   int
	sortBy string

	clients      map[*Client]bool
	clientsMutex sync.RWMutex
	upgrader     websocket.Upgrader
	decoder      *schema.Decoder
}

// Client is a WebSocket subscriber to the periodic top-N push.
type Client struct {
	conn  *websocket.Conn
	view  ClientView
	mu    sync.RWMutex
	write sync.Mutex
}

// ClientView is the ordering a client asked for.
type ClientView struct {
	SortBy string `json:"sortBy"`
	Limit  int    `json:"limit"`
}

// NewController creates a Controller over handler and events.
func NewController(handler *tracker.Handler, events *eventstore.Store, opts Options) *Controller {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if opts.TopN <= 0 {
		opts.TopN = 20
	}
	if !tracker.ValidSortKey(opts.SortBy) {
		opts.SortBy = tracker.SortByCount
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewCollector(handler),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Controller{
		handler:  handler,
		events:   events,
		store:    opts.Store,
		exporter: opts.Exporter,
		registry: registry,
		topN:     opts.TopN,
		sortBy:   opts.SortBy,
		clients:  make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		decoder: decoder,
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (c *Controller) ClientCount() int {
	c.clientsMutex.RLock()
	defer c.clientsMutex.RUnlock()
	return len(c.clients)
}
