// Package metrics exposes Prometheus collectors for the integrity engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scan lifecycle metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_scans_total",
			Help: "Total number of integrity scans by outcome",
		},
		[]string{"outcome"}, // ok, error
	)

	ScanDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "integrity_scan_duration_seconds",
			Help:    "Wall-clock duration of integrity scans",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	IssuesFound = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "integrity_issues",
			Help: "Issues found by the most recent scan, by severity",
		},
		[]string{"severity"},
	)

	LogsScanned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "integrity_logs_scanned",
			Help: "Governance logs examined by the most recent scan",
		},
	)

	// Repair metrics
	RepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_repairs_total",
			Help: "Total number of repair attempts by outcome",
		},
		[]string{"outcome"}, // applied, rejected, error
	)

	// Similarity provider metrics
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_embedding_requests_total",
			Help: "Total embedding requests issued to the similarity provider",
		},
		[]string{"status"}, // ok, error
	)
)

// Repair outcomes.
const (
	RepairOutcomeApplied  = "applied"
	RepairOutcomeRejected = "rejected"
	RepairOutcomeError    = "error"
)
