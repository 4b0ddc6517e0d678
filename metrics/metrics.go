// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission results (bounded label set).
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultHalted   = "halted"
)

var (
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbook_orders_submitted_total",
		Help: "Orders submitted, by instrument and result",
	}, []string{"instrument", "result"})

	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbook_orders_cancelled_total",
		Help: "Orders cancelled, by instrument",
	}, []string{"instrument"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbook_trades_total",
		Help: "Trades executed, by instrument",
	}, []string{"instrument"})

	VolumeTraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbook_volume_lots_total",
		Help: "Traded volume in lots, by instrument",
	}, []string{"instrument"})

	OpenOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_open_orders",
		Help: "Live orders, pending stops included, by instrument",
	}, []string{"instrument"})

	BestBid = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_best_bid_ticks",
		Help: "Best bid in ticks, by instrument (0 when the side is empty)",
	}, []string{"instrument"})

	BestAsk = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_best_ask_ticks",
		Help: "Best ask in ticks, by instrument (0 when the side is empty)",
	}, []string{"instrument"})

	GroupsLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_groups_live",
		Help: "Live composite order groups, by instrument",
	}, []string{"instrument"})

	StopsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchbook_stops_triggered_total",
		Help: "Stop orders released into the match path, by instrument",
	}, []string{"instrument"})

	JournalAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchbook_journal_appends_total",
		Help: "Trade records appended to the outbox journal",
	})

	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchbook_journal_errors_total",
		Help: "Failed journal writes",
	})

	BroadcastsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchbook_broadcasts_published_total",
		Help: "Trade records delivered to the broker",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchbook_ws_clients",
		Help: "Connected websocket clients",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
