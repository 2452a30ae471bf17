// Package metrics exposes the kernel suite's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionOutcomes counts kernel outcomes by scheme and type.
	TransactionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tapkernel",
		Name:      "transaction_outcomes_total",
		Help:      "Kernel outcomes by scheme and outcome type",
	}, []string{"scheme", "outcome"})

	// ReversalAttempts counts dispatcher delivery attempts by result.
	ReversalAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tapkernel",
		Name:      "reversal_attempts_total",
		Help:      "Reversal delivery attempts by result",
	}, []string{"result"})

	// ReversalQueueDepth tracks pending reversal records.
	ReversalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tapkernel",
		Name:      "reversal_queue_depth",
		Help:      "Reversal records currently pending delivery",
	})

	// ReversalEscalations counts records that aged past the threshold.
	ReversalEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tapkernel",
		Name:      "reversal_escalations_total",
		Help:      "Reversal records escalated for manual attention",
	})

	// TornRecords tracks torn-log occupancy.
	TornRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tapkernel",
		Name:      "torn_records",
		Help:      "Torn-transaction records currently held",
	})

	// TornRecoveries counts recovery probe outcomes.
	TornRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tapkernel",
		Name:      "torn_recoveries_total",
		Help:      "Torn-transaction recovery probes by outcome",
	}, []string{"outcome"})
)
