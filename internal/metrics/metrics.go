// Package metrics exposes Prometheus collectors for the store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "snix"

var (
	// mutations counts mutation attempts.
	// Labels: op (create_snippet, delete_notebook, ...), result (ok, invalid, error)
	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Total mutations by operation and result",
	}, []string{"op", "result"})

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutation_duration_seconds",
		Help:      "Mutation latency including the storage commit",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"op"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "search_duration_seconds",
		Help:      "Search latency in seconds",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
	})

	// indexRebuilds counts full index rebuilds.
	// Labels: reason (load, stale, divergence, restore)
	indexRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "rebuilds_total",
		Help:      "Total full index rebuilds by reason",
	}, []string{"reason"})

	indexedSnippets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "snippets",
		Help:      "Number of indexed snippets",
	})

	eventClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "clients",
		Help:      "Number of connected event stream clients",
	})

	eventResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "resyncs_total",
		Help:      "Reconnects that could not be replayed and were told to reload",
	})

	// backups counts backup operations.
	// Labels: op (create, restore, prune), result (ok, error)
	backups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "operations_total",
		Help:      "Total backup operations by result",
	}, []string{"op", "result"})
)

// ObserveMutation records one mutation and its latency.
func ObserveMutation(op, result string, started time.Time) {
	mutations.WithLabelValues(op, result).Inc()
	mutationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveSearch records search latency.
func ObserveSearch(started time.Time) {
	searchDuration.Observe(time.Since(started).Seconds())
}

// IndexRebuilt records a full rebuild and the resulting snippet count.
func IndexRebuilt(reason string, snippets int) {
	indexRebuilds.WithLabelValues(reason).Inc()
	indexedSnippets.Set(float64(snippets))
}

// SetIndexedSnippets updates the indexed snippet gauge.
func SetIndexedSnippets(n int) {
	indexedSnippets.Set(float64(n))
}

// SetEventClients updates the connected event stream client gauge.
func SetEventClients(n int) {
	eventClients.Set(float64(n))
}

// EventResync records a reconnect answered with a resync event.
func EventResync() {
	eventResyncs.Inc()
}

// Backup records a backup operation outcome.
func Backup(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	backups.WithLabelValues(op, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
