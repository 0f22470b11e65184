package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"BinPull/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	reg *prometheus.Registry

	ticks       *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	signals     *prometheus.CounterVec
	trades      *prometheus.CounterVec
	profit      *prometheus.CounterVec
	balance     *prometheus.GaugeVec
	martingale  *prometheus.GaugeVec
	connection  *prometheus.GaugeVec
	dropped     *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var connPhases = []models.ConnectionPhase{
	models.ConnDisconnected,
	models.ConnConnecting,
	models.ConnConnected,
	models.ConnReconnecting,
}

// New creates a recorder on its own registry, with Go runtime and process
// collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_ticks_total",
			Help: "Ticks accepted by the tick gate",
		}, []string{"symbol"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "binpull_last_price",
			Help: "Last accepted quote per symbol",
		}, []string{"symbol"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_signals_total",
			Help: "Actionable signals by strategy, direction and gate outcome",
		}, []string{"strategy", "direction", "allowed"}),
		trades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_trades_total",
			Help: "Settled trades by result",
		}, []string{"symbol", "result"}),
		profit: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_trade_profit_abs_total",
			Help: "Absolute settled profit by sign",
		}, []string{"sign"}),
		balance: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "binpull_session_balance",
			Help: "Last known account balance per session",
		}, []string{"session_id"}),
		martingale: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "binpull_martingale_level",
			Help: "Current martingale level per session",
		}, []string{"session_id"}),
		connection: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "binpull_venue_connection_phase",
			Help: "One-hot venue connection phase per session",
		}, []string{"session_id", "phase"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_events_dropped_total",
			Help: "Events shed by bounded queues",
		}, []string{"kind"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "binpull_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "binpull_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Registry exposes the recorder's registry for the /metrics endpoint and for
// other components that register their own collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) RecordTick(symbol string, price float64) {
	r.ticks.WithLabelValues(symbol).Inc()
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordSignal(strategy, direction string, allowed bool) {
	a := "false"
	if allowed {
		a = "true"
	}
	r.signals.WithLabelValues(strategy, direction, a).Inc()
}

func (r *Recorder) RecordTrade(symbol string, result models.TradeResult, profit float64) {
	r.trades.WithLabelValues(symbol, string(result)).Inc()
	switch {
	case profit > 0:
		r.profit.WithLabelValues("gain").Add(profit)
	case profit < 0:
		r.profit.WithLabelValues("loss").Add(-profit)
	}
}

func (r *Recorder) RecordBalance(sessionID string, balance float64) {
	r.balance.WithLabelValues(sessionID).Set(balance)
}

func (r *Recorder) RecordMartingaleLevel(sessionID string, level int) {
	r.martingale.WithLabelValues(sessionID).Set(float64(level))
}

func (r *Recorder) RecordConnectionPhase(sessionID string, phase models.ConnectionPhase) {
	for _, p := range connPhases {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.connection.WithLabelValues(sessionID, string(p)).Set(v)
	}
}

func (r *Recorder) RecordEventDropped(kind string) {
	r.dropped.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
