package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facturia",
		Name:      "submissions_total",
		Help:      "Submission attempts by channel and classified outcome.",
	}, []string{"channel", "outcome"})

	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facturia",
		Name:      "submission_duration_seconds",
		Help:      "Wall time of submission attempts by channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})
)
