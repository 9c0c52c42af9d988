package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_indexer_events_total",
		Help: "The total number of settled change events",
	}, []string{"kind", "result"})

	eventDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_indexer_event_duration_seconds",
		Help:    "The time spent applying one change event",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(eventDuration)
}
