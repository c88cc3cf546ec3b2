package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadauto",
			Name:      "generate_total",
			Help:      "Total draft generation attempts",
		},
		[]string{"status"},
	)

	generateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "threadauto",
			Name:      "generate_duration_seconds",
			Help:      "Duration of successful draft generation runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
	)
)
