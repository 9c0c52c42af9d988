package reindex

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	typesLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reindex_types_total",
		Help: "The total number of object classes loaded by the bulk reindex",
	}, []string{"result"})

	typeLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reindex_type_duration_seconds",
		Help:    "The duration of one object class load",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reindex_run_duration_seconds",
		Help:    "The duration of a reindex run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	objectsIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reindex_objects_total",
		Help: "The total number of objects written by the bulk reindex",
	})

	parametersIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reindex_parameters_total",
		Help: "The total number of raw parameters written by the bulk reindex",
	})

	valuesExcluded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reindex_excluded_values_total",
		Help: "The total number of parameter values left out of object documents",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(typesLoaded)
	prometheus.MustRegister(typeLoadDuration)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(objectsIndexed)
	prometheus.MustRegister(parametersIndexed)
	prometheus.MustRegister(valuesExcluded)
}
