package styleref

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	similarityQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "threadauto",
			Name:      "style_queries_total",
			Help:      "Total similarity searches over the style reference index",
		},
	)

	indexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "threadauto",
			Name:      "style_references",
			Help:      "Style references currently held in the similarity index",
		},
	)
)
