package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_redemptions_total",
			Help: "Promo redemption attempts by resolution tier and result.",
		},
		[]string{"tier", "result"},
	)

	registryOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_registry_operations_total",
			Help: "Promo registry operations (create/delete/list) by result.",
		},
		[]string{"op", "result"},
	)

	txRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_tx_retries_total",
			Help: "Storage transactions retried after a write conflict.",
		},
		[]string{"backend"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_events_total",
			Help: "Promo domain events by type and status (published/failed/consumed).",
		},
		[]string{"type", "status"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(redemptionsTotal, registryOpsTotal, txRetriesTotal, eventsTotal)
	})
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "none"
	}
	return s
}

func IncRedemption(tier, result string) {
	redemptionsTotal.WithLabelValues(norm(tier), norm(result)).Inc()
}

func IncRegistryOp(op, result string) {
	registryOpsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}

func IncTxRetry(backend string) {
	txRetriesTotal.WithLabelValues(norm(backend)).Inc()
}

func IncEvent(eventType, status string) {
	eventsTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}
