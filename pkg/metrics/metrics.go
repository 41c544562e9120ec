// Package metrics exposes Prometheus collectors for the storage router.
package metrics

import (
	"database/sql"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dbrouter"

var (
	// BackendSizeBytes is the last successfully probed size per backend.
	BackendSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_size_bytes",
			Help:      "Last probed occupied size of each backend in bytes",
		},
		[]string{"index"},
	)

	// BackendAvailable is 1 while a backend is considered usable.
	BackendAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_available",
			Help:      "Whether each backend is available (1) or not (0)",
		},
		[]string{"index"},
	)

	// ActiveBackend is the index receiving forwarded operations.
	ActiveBackend = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_backend_index",
			Help:      "Index of the backend currently serving reads and writes",
		},
	)

	// SwitchesTotal counts successful active backend switches.
	SwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "switches_total",
			Help:      "Total number of active backend switches",
		},
		[]string{"trigger"},
	)

	// MonitorTicksTotal counts monitor evaluations by outcome.
	MonitorTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_ticks_total",
			Help:      "Total number of capacity monitor evaluations by outcome",
		},
		[]string{"outcome"},
	)

	// DBConnectionPoolSize tracks pool usage of the active handle.
	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connection_pool",
			Help:      "Connection pool usage of the active backend",
		},
		[]string{"state"},
	)
)

// ObserveBackend records the probe result for one backend. Unknown sizes
// leave the size gauge untouched.
func ObserveBackend(index int, sizeBytes int64, available bool) {
	label := strconv.Itoa(index)
	if sizeBytes >= 0 {
		BackendSizeBytes.WithLabelValues(label).Set(float64(sizeBytes))
	}
	value := 0.0
	if available {
		value = 1
	}
	BackendAvailable.WithLabelValues(label).Set(value)
}

// UpdateDBPoolStats updates pool gauges from sql.DBStats.
func UpdateDBPoolStats(stats sql.DBStats) {
	DBConnectionPoolSize.WithLabelValues("active").Set(float64(stats.InUse))
	DBConnectionPoolSize.WithLabelValues("idle").Set(float64(stats.Idle))
	DBConnectionPoolSize.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
}
