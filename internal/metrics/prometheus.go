// Package metrics records trading activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes the bot's counters and gauges. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	workflows       *prometheus.CounterVec
	orders          *prometheus.CounterVec
	stopLosses      *prometheus.CounterVec
	trackedPos      prometheus.Gauge
	portfolioValue  prometheus.Gauge
	allocation      *prometheus.GaugeVec
	dataFetches     *prometheus.CounterVec
	dataLatency     *prometheus.HistogramVec
	cache           *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// New creates a recorder on its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "sessions_total",
			Help:      "Trading sessions run, by type",
		}, []string{"type"}),
		sessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "robotrader",
			Name:      "session_duration_seconds",
			Help:      "Wall time of a trading session",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"type"}),
		workflows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "workflows_total",
			Help:      "Asset-class workflow outcomes",
		}, []string{"asset_class", "result"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "orders_total",
			Help:      "Orders submitted, by side and resulting status",
		}, []string{"side", "status"}),
		stopLosses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "stop_loss_total",
			Help:      "Stop-loss triggers and executions",
		}, []string{"stage"}),
		trackedPos: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "robotrader",
			Name:      "tracked_positions",
			Help:      "Positions tracked by the stop-loss engine",
		}),
		portfolioValue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "robotrader",
			Name:      "portfolio_value",
			Help:      "Total portfolio value from the last snapshot",
		}),
		allocation: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "robotrader",
			Name:      "allocation_fraction",
			Help:      "Current allocation fraction by asset class",
		}, []string{"asset_class"}),
		dataFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "market_data_requests_total",
			Help:      "Market data requests by source and result",
		}, []string{"source", "result"}),
		dataLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "robotrader",
			Name:      "market_data_duration_seconds",
			Help:      "Market data request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "cache_lookups_total",
			Help:      "Market data cache lookups",
		}, []string{"result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotrader",
			Name:      "notifications_total",
			Help:      "Notifications attempted, by result",
		}, []string{"result"}),
	}
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordSession records a completed session.
func (r *Recorder) RecordSession(sessionType string, d time.Duration) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(sessionType).Inc()
	r.sessionDuration.WithLabelValues(sessionType).Observe(d.Seconds())
}

// RecordWorkflow records one asset-class workflow outcome.
func (r *Recorder) RecordWorkflow(assetClass string, ok bool) {
	if r == nil {
		return
	}
	r.workflows.WithLabelValues(assetClass, result(ok)).Inc()
}

// RecordOrder records a submitted order.
func (r *Recorder) RecordOrder(side, status string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(side, status).Inc()
}

// RecordStopLoss records a trigger ("triggered") or an executed sell ("executed").
func (r *Recorder) RecordStopLoss(stage string) {
	if r == nil {
		return
	}
	r.stopLosses.WithLabelValues(stage).Inc()
}

// SetTrackedPositions sets the tracker count.
func (r *Recorder) SetTrackedPositions(n int) {
	if r == nil {
		return
	}
	r.trackedPos.Set(float64(n))
}

// SetPortfolio records the portfolio value and per-class fractions.
func (r *Recorder) SetPortfolio(total float64, allocation map[string]float64) {
	if r == nil {
		return
	}
	r.portfolioValue.Set(total)
	for class, v := range allocation {
		r.allocation.WithLabelValues(class).Set(v)
	}
}

// RecordDataFetch records a market data request.
func (r *Recorder) RecordDataFetch(source string, ok bool, d time.Duration) {
	if r == nil {
		return
	}
	r.dataFetches.WithLabelValues(source, result(ok)).Inc()
	r.dataLatency.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.cache.WithLabelValues("hit").Inc()
		return
	}
	r.cache.WithLabelValues("miss").Inc()
}

// RecordNotification records a notifier send.
func (r *Recorder) RecordNotification(ok bool) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
