package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	artifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bptools",
		Subsystem: "ingest",
		Name:      "artifacts_total",
		Help:      "Uploaded artifacts processed, by action.",
	}, []string{"action"})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bptools",
		Subsystem: "ingest",
		Name:      "failures_total",
		Help:      "Uploaded artifacts left in place because they could not be processed.",
	})

	handleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bptools",
		Subsystem: "ingest",
		Name:      "handle_seconds",
		Help:      "Time spent classifying and moving an upload.",
		Buckets:   prometheus.DefBuckets,
	})
)
