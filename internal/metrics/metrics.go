package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Settlement metrics
var (
	Purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_purchases_total",
			Help: "Purchase attempts by outcome code",
		},
		[]string{"outcome"},
	)

	UnitsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_units_sold_total",
		Help: "Total data units sold",
	})

	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_fees_collected_total",
		Help: "Total marketplace fees collected in base units",
	})

	ListingsChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_listing_transitions_total",
			Help: "Listing lifecycle transitions by resulting status",
		},
		[]string{"status"},
	)
)

// Key-resealing metrics
var (
	ResealRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_reseal_requests_total",
			Help: "Reseal requests by outcome code",
		},
		[]string{"outcome"},
	)

	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_mpc_callbacks_total",
			Help: "Secure-computation callbacks by circuit and outcome",
		},
		[]string{"circuit", "outcome"},
	)

	PurchasesFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_purchases_finalized_total",
		Help: "Purchase records bound to a buyer capsule",
	})

	MPCSubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "market_mpc_submit_duration_seconds",
			Help:    "Time taken to hand a computation to the gateway, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"circuit"},
	)
)

// Relayer metrics
var (
	RelayerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_relayer_events_total",
			Help: "Events handled by the reseal relayer by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RelayerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "market_relayer_tick_duration_seconds",
		Help:    "Time taken by one relayer polling pass",
		Buckets: prometheus.DefBuckets,
	})

	RelayerCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_relayer_cursor",
		Help: "Last event id processed by the relayer",
	})

	CapsuleOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_capsule_store_ops_total",
			Help: "Capsule store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)
)

// Outcome turns an error into a bounded label value.
func Outcome(code string, err error) string {
	if err == nil {
		return "ok"
	}
	if code == "" {
		return "error"
	}
	return code
}
