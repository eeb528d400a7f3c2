package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SignalSentinel/internal/model"
)

// Registry holds every engine metric on its own prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	scanDuration   *prometheus.HistogramVec
	signalsEmitted *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	quotaBlocked   *prometheus.CounterVec
	activeTrades   prometheus.Gauge
	outcomes       *prometheus.CounterVec
	regimeReadings *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_scan_duration_seconds",
				Help:    "Duration of one class scan",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
			},
			[]string{"class"},
		),
		signalsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_signals_emitted_total",
				Help: "Signals emitted by class and tier",
			},
			[]string{"class", "tier"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_rejections_total",
				Help: "Candidates rejected by the scorer or post-filters",
			},
			[]string{"reason"},
		),
		quotaBlocked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_quota_blocked_total",
				Help: "Graded candidates withheld by the quota gate",
			},
			[]string{"class", "tier"},
		),
		activeTrades: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_active_trades",
				Help: "Open trades tracked by the ledger",
			},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_trade_outcomes_total",
				Help: "Resolved trades by outcome",
			},
			[]string{"outcome"},
		),
		regimeReadings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_regime_readings_total",
				Help: "Slow dominance readings by source",
			},
			[]string{"source", "estimated"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_fetch_errors_total",
				Help: "Upstream request failures by endpoint",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler serves the registry in the exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) ObserveScan(class model.TradeClass, d time.Duration) {
	r.scanDuration.WithLabelValues(string(class)).Observe(d.Seconds())
}

func (r *Registry) SignalEmitted(class model.TradeClass, tier model.Tier) {
	r.signalsEmitted.WithLabelValues(string(class), string(tier)).Inc()
}

func (r *Registry) Rejected(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Registry) QuotaBlocked(class model.TradeClass, tier model.Tier) {
	r.quotaBlocked.WithLabelValues(string(class), string(tier)).Inc()
}

func (r *Registry) SetActiveTrades(n int) { r.activeTrades.Set(float64(n)) }

func (r *Registry) TradeOutcome(outcome string) { r.outcomes.WithLabelValues(outcome).Inc() }

// RegimeReading counts a slow reading under its BTC source.
func (r *Registry) RegimeReading(rd model.DominanceReading) {
	r.regimeReadings.WithLabelValues(rd.BTCSource, strconv.FormatBool(rd.Estimated)).Inc()
}

func (r *Registry) FetchError(endpoint string) { r.fetchErrors.WithLabelValues(endpoint).Inc() }
