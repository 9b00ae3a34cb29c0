// Package metrics exposes Prometheus counters and gauges for the flag
// pipeline, registered against the default registry and served on
// /metrics by cmd/avala-server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlagsQueued counts flags accepted by the intake stage, by exploit.
	FlagsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avala",
		Name:      "flags_queued_total",
		Help:      "Number of flags accepted into the queued state.",
	}, []string{"exploit"})

	// FlagsDiscarded counts flags that intake rejected as duplicates.
	FlagsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avala",
		Name:      "flags_discarded_total",
		Help:      "Number of flags discarded as duplicates at intake.",
	}, []string{"exploit"})

	// FlagsAccepted counts flags the checker confirmed as correct.
	FlagsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avala",
		Name:      "flags_accepted_total",
		Help:      "Number of flags accepted by the checker.",
	})

	// FlagsRejected counts flags the checker refused.
	FlagsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avala",
		Name:      "flags_rejected_total",
		Help:      "Number of flags rejected by the checker.",
	})

	// SubmissionQueueDepth reports the submission queue's pending message count.
	SubmissionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "avala",
		Name:      "submission_queue_depth",
		Help:      "Number of flags pending submission.",
	})

	// CurrentTick reports the tick number as last observed by the scheduler.
	CurrentTick = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "avala",
		Name:      "current_tick",
		Help:      "The current tick number.",
	})
)
