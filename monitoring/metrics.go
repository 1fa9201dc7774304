package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total ledger client operations",
		},
		[]string{"operation", "mode", "status"},
	)

	ledgerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger client operations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"operation", "mode"},
	)

	resolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_resolution_failures_total",
			Help: "Ticket ids that could not be resolved during bulk fetches",
		},
		[]string{"mode"},
	)

	buyPriceMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_buy_price_mismatch_total",
			Help: "Simulated purchases whose tendered price differed from the resale price",
		},
	)

	sessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_events_total",
			Help: "Wallet session lifecycle events",
		},
		[]string{"event"},
	)

	marketRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_refresh_total",
			Help: "Marketplace view refreshes",
		},
		[]string{"status"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// TrackLedgerOperation records the outcome and latency of a ledger call.
func TrackLedgerOperation(operation, mode string, started time.Time, err error) {
	ledgerOperations.WithLabelValues(operation, mode, statusLabel(err)).Inc()
	ledgerDuration.WithLabelValues(operation, mode).Observe(time.Since(started).Seconds())
}

func TrackResolutionFailure(mode string) {
	resolutionFailures.WithLabelValues(mode).Inc()
}

func TrackBuyPriceMismatch() {
	buyPriceMismatches.Inc()
}

// Track session events: connect, disconnect, restore, accounts_changed, chain_changed, switch_network
func TrackSessionEvent(event string) {
	sessionEvents.WithLabelValues(event).Inc()
}

func TrackMarketRefresh(err error) {
	marketRefreshes.WithLabelValues(statusLabel(err)).Inc()
}
