package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_total",
			Help: "Order executions by venue, side and terminal status",
		},
		[]string{"venue", "side", "status"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_order_retries_total",
			Help: "Placement retries per venue",
		},
		[]string{"venue"},
	)

	fallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_fallbacks_total",
			Help: "Executions rerouted to an alternate venue",
		},
		[]string{"from", "to"},
	)

	venueConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "executor_venue_connected",
			Help: "Per-venue connectivity (1 connected, 0 disconnected)",
		},
		[]string{"venue"},
	)

	portfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_portfolio_value",
			Help: "Aggregated portfolio value across connected venues",
		},
	)

	riskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_risk_score",
			Help: "Portfolio risk score (0-100)",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_daily_pnl",
			Help: "Realized PnL for the current day",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_risk_alerts_total",
			Help: "Risk alerts raised, by type and metric",
		},
		[]string{"type", "metric"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(fallbacksTotal)
	prometheus.MustRegister(venueConnected)
	prometheus.MustRegister(portfolioValue)
	prometheus.MustRegister(riskScore)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(alertsTotal)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOrder counts a finished execution attempt.
func RecordOrder(venue, side, status string) {
	ordersTotal.WithLabelValues(venue, side, status).Inc()
}

// RecordRetry counts a placement retry on a venue.
func RecordRetry(venue string) {
	retriesTotal.WithLabelValues(venue).Inc()
}

// RecordFallback counts an execution rerouted to an alternate venue.
func RecordFallback(from, to string) {
	fallbacksTotal.WithLabelValues(from, to).Inc()
}

// SetVenueConnected updates the per-venue connectivity gauge.
func SetVenueConnected(venue string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	venueConnected.WithLabelValues(venue).Set(v)
}

// SetPortfolioValue updates the aggregated portfolio value gauge.
func SetPortfolioValue(value float64) {
	portfolioValue.Set(value)
}

// SetRiskScore updates the portfolio risk score gauge.
func SetRiskScore(score float64) {
	riskScore.Set(score)
}

// SetDailyPnL updates the current-day realized PnL gauge.
func SetDailyPnL(pnl float64) {
	dailyPnL.Set(pnl)
}

// RecordAlert counts a raised risk alert.
func RecordAlert(alertType, metric string) {
	alertsTotal.WithLabelValues(alertType, metric).Inc()
}
