package changes

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syntrixbase/inventory/internal/core/docstore"
)

var rejectedItems = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "inventory_changes_rejected_items_total",
	Help: "The total number of bulk actions rejected by the document store",
}, []string{"op", "reason"})

func init() {
	prometheus.MustRegister(rejectedItems)
}

// countRejected records the rejected items of a bulk error and returns err.
func countRejected(err error) error {
	if be, ok := docstore.AsBulkError(err); ok {
		for _, item := range be.Items {
			rejectedItems.WithLabelValues(string(item.Op), item.Reason).Inc()
		}
	}
	return err
}
