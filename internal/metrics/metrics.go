// Package metrics holds the process-wide prometheus collectors shared by
// the resolver, installer, and mirror pool (SPEC_FULL.md §4.5 ambient
// stack).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolveOutcomes counts Resolve() terminations by outcome: success,
	// conflict, cycle, no_such_version.
	ResolveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pax",
			Subsystem: "resolver",
			Name:      "outcomes_total",
			Help:      "Total number of dependency resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// InstallDuration observes the wall-clock duration of a transactional
	// install, by transaction type.
	InstallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pax",
			Subsystem: "installer",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of installer transactions.",
		},
		[]string{"type"},
	)

	// TransactionOutcomes counts installer operations by outcome: success
	// or error for installs and removals, rollback_success or
	// rollback_error for rollbacks.
	TransactionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pax",
			Subsystem: "installer",
			Name:      "transaction_outcomes_total",
			Help:      "Total number of installer transactions by outcome.",
		},
		[]string{"outcome"},
	)

	// MirrorProbes counts mirror HEAD probes by result: ok, error, timeout.
	MirrorProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pax",
			Subsystem: "mirror",
			Name:      "probes_total",
			Help:      "Total number of mirror sentinel probes by result.",
		},
		[]string{"result"},
	)

	// RepoIndexCacheHits counts repo-index cache lookups by hit/miss.
	RepoIndexCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pax",
			Subsystem: "repoindex",
			Name:      "cache_total",
			Help:      "Total number of repo-index cache lookups by result.",
		},
		[]string{"result"},
	)
)
