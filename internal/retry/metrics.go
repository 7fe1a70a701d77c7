package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facturia_retry_sweeps_total",
		Help: "Number of retry sweep runs.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facturia_retry_sweep_duration_seconds",
		Help:    "Wall time of one retry sweep run.",
		Buckets: prometheus.DefBuckets,
	})
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facturia_retry_attempts_total",
		Help: "Retry attempts driven by the sweep, by result.",
	}, []string{"result"})
)
