package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics aggregates the counters the gateway records around engine
// calls. Engines themselves stay metrics-free.
type SaleMetrics struct {
	Claims    *prometheus.CounterVec
	Deposits  prometheus.Counter
	Offers    prometheus.Counter
	SoftLocks prometheus.Counter
}

var (
	saleMetricsOnce sync.Once
	saleRegistry    *SaleMetrics
)

// Sale returns the lazily-initialised sale metrics registry.
func Sale() *SaleMetrics {
	saleMetricsOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crcmarket",
				Subsystem: "sale",
				Name:      "claims_total",
				Help:      "Claim attempts segmented by outcome.",
			}, []string{"outcome"}),
			Deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crcmarket",
				Subsystem: "sale",
				Name:      "deposits_total",
				Help:      "Completed offer deposits.",
			}),
			Offers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crcmarket",
				Subsystem: "sale",
				Name:      "offers_created_total",
				Help:      "Offers created across all cycles.",
			}),
			SoftLocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crcmarket",
				Subsystem: "sale",
				Name:      "softlock_rejections_total",
				Help:      "Inbound claims rejected by the soft-lock rule.",
			}),
		}
		prometheus.MustRegister(
			saleRegistry.Claims,
			saleRegistry.Deposits,
			saleRegistry.Offers,
			saleRegistry.SoftLocks,
		)
	})
	return saleRegistry
}
