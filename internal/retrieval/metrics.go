package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OpsTotal counts retrieval operations.
// Labels: backend (memory, postgres, chromem), op (upsert, search, clear)
var OpsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "prospect",
		Subsystem: "retrieval",
		Name:      "ops_total",
		Help:      "Total number of retrieval store operations",
	},
	[]string{"backend", "op"},
)

func observe(backend, op string) {
	OpsTotal.WithLabelValues(backend, op).Inc()
}
