// Package metrics exposes Prometheus counters/gauges for the game core, in
// the same shape as metrics.go (package-level CounterVec/GaugeVec
// registered in init(), small setter helpers).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RoomsByStatus tracks live room counts split by status and mode.
	RoomsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "market_engine_rooms",
			Help: "Live rooms by status and clock mode.",
		},
		[]string{"status", "mode"},
	)

	// TradesByReason counts every Trade Rule Engine verdict, OK or
	// rejected, split by the rejection reason ("" for OK).
	TradesByReason = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_engine_trade_validations_total",
			Help: "Trade validations by outcome (reason empty means accepted).",
		},
		[]string{"reason"},
	)

	// SchedulerTickSeconds observes how long one auto-tick advance-day
	// attempt for a single sync_auto room takes.
	SchedulerTickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_engine_scheduler_tick_seconds",
			Help:    "Wall-clock duration of one Clock Scheduler auto-tick advance-day attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LeaderboardReadSeconds observes leaderboard read latency.
	LeaderboardReadSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "market_engine_leaderboard_read_seconds",
			Help:    "Latency of GET .../leaderboard handlers.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// AutoTickFailures counts auto-ticks that returned an error (logged
	// and retried on the next wake).
	AutoTickFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "market_engine_auto_tick_failures_total",
			Help: "Auto-tick advance-day attempts that failed and were retried.",
		},
	)
)

func init() {
	prometheus.MustRegister(RoomsByStatus, TradesByReason)
	prometheus.MustRegister(SchedulerTickSeconds, LeaderboardReadSeconds)
	prometheus.MustRegister(AutoTickFailures)
}

// ObserveTradeResult records one Trade Rule Engine verdict.
func ObserveTradeResult(reason string) {
	TradesByReason.WithLabelValues(reason).Inc()
}

// SetRoomCount sets the current gauge for one (status, mode) pair.
func SetRoomCount(status, mode string, count float64) {
	RoomsByStatus.WithLabelValues(status, mode).Set(count)
}
