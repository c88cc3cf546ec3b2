package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "threadauto",
		Name:      "publish_total",
		Help:      "Total publish attempts against the Threads API",
	},
	[]string{"status"},
)
