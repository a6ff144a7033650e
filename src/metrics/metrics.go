// Package metrics holds the Prometheus collectors updated by the executor.
//
// Exposed at /metrics by the status server:
//   - fib_orders_total{action}            orders sent to the terminal (place|cancel|cancel_all|flat)
//   - fib_pending_orders_total{side}      pending orders generated by the strategy
//   - fib_positions_closed_total{outcome} closed positions by outcome
//   - fib_threshold_halts_total           sessions halted by a profit/loss threshold
//   - fib_ati_reconnects_total            successful reconnects after a connection error
//   - fib_pnl_points                      running P&L in points
//   - fib_open_positions                  open positions
//   - fib_trading_window_active           1 inside the trading window, 0 outside
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fib_orders_total",
			Help: "Orders sent to the terminal",
		},
		[]string{"action"},
	)

	PendingOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fib_pending_orders_total",
			Help: "Pending orders generated",
		},
		[]string{"side"},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fib_positions_closed_total",
			Help: "Closed positions by outcome",
		},
		[]string{"outcome"},
	)

	ThresholdHalts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fib_threshold_halts_total",
			Help: "Sessions halted by a profit or loss threshold",
		},
	)

	ATIReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fib_ati_reconnects_total",
			Help: "Successful reconnects to the terminal after an error",
		},
	)

	PnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fib_pnl_points",
			Help: "Running profit and loss in points",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fib_open_positions",
			Help: "Currently open positions",
		},
	)

	TradingWindowActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fib_trading_window_active",
			Help: "1 when the last tick was inside the trading window",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		PendingOrders,
		PositionsClosed,
		ThresholdHalts,
		ATIReconnects,
		PnL,
		OpenPositions,
		TradingWindowActive,
	)
}

// BoolGauge maps a flag onto a 0/1 gauge value.
func BoolGauge(g prometheus.Gauge, on bool) {
	if on {
		g.Set(1)
		return
	}
	g.Set(0)
}
