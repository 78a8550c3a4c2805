package metrics

import (
	"strings"
	"time"

	"sql-tracker/pkg/tracker"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is anything that can hand out a copy of the tracking table.
type Source interface {
	Data() map[string]tracker.Record
}

// Collector exposes the tracking table as Prometheus metrics. Values are read
// from the source on every scrape.
type Collector struct {
	source Source

	queries      *prometheus.Desc
	duration     *prometheus.Desc
	lastDuration *prometheus.Desc
	fingerprints *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source Source) *Collector {
	labels := []string{"fingerprint", "command"}
	return &Collector{
		source: source,

		queries: prometheus.NewDesc(
			"sql_tracker_queries_total",
			"Number of tracked executions per fingerprint",
			labels, nil,
		),
		duration: prometheus.NewDesc(
			"sql_tracker_query_duration_seconds_total",
			"Accumulated execution time per fingerprint",
			labels, nil,
		),
		lastDuration: prometheus.NewDesc(
			"sql_tracker_query_last_duration_seconds",
			"Duration of the most recent execution per fingerprint",
			labels, nil,
		),
		fingerprints: prometheus.NewDesc(
			"sql_tracker_fingerprints",
			"Number of distinct fingerprints in the tracking table",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queries
	ch <- c.duration
	ch <- c.lastDuration
	ch <- c.fingerprints
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	data := c.source.Data()

	for key, rec := range data {
		id := tracker.FingerprintID(key)
		cmd := strings.ToLower(tracker.Command(rec.SQL))

		ch <- prometheus.MustNewConstMetric(c.queries, prometheus.CounterValue, float64(rec.Count), id, cmd)
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, seconds(rec.TotalDuration), id, cmd)
		ch <- prometheus.MustNewConstMetric(c.lastDuration, prometheus.GaugeValue, seconds(rec.LastDuration), id, cmd)
	}

	ch <- prometheus.MustNewConstMetric(c.fingerprints, prometheus.GaugeValue, float64(len(data)))
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}
