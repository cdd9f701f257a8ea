// Package metrics exposes Prometheus instruments for the refresh loop, the
// price feed, signal ingestion and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh item results.
const (
	ResultUpdated = "updated"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Recorder holds the service instruments.
type Recorder struct {
	gatherer prometheus.Gatherer

	refreshItems    *prometheus.CounterVec
	refreshPasses   prometheus.Counter
	refreshDuration prometheus.Histogram
	priceFetch      *prometheus.HistogramVec
	signalsIngested *prometheus.CounterVec
	trackedTokens   prometheus.Gauge
	trackedCalls    prometheus.Gauge
	ignoredEntities prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the instruments on reg. A nil reg uses a fresh registry,
// which keeps tests and multiple instances independent.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		refreshItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_refresh_items_total",
				Help: "Refresh queue items by outcome",
			},
			[]string{"result"},
		),
		refreshPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "oracle_refresh_passes_total",
			Help: "Completed refresh passes",
		}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_refresh_pass_seconds",
			Help:    "Duration of a refresh pass in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		priceFetch: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_price_fetch_seconds",
				Help:    "Price service request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		signalsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_signals_ingested_total",
				Help: "Signals ingested by transport",
			},
			[]string{"transport"},
		),
		trackedTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_tracked_tokens",
			Help: "Tokens with a retained price series",
		}),
		trackedCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_tracked_calls",
			Help: "Calls held in the ledger",
		}),
		ignoredEntities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_ignored_entities",
			Help: "KOLs and sources currently below the ignore threshold",
		}),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),
	}
}

func (r *Recorder) RecordRefreshItem(result string) {
	r.refreshItems.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveRefreshPass(d time.Duration) {
	r.refreshPasses.Inc()
	r.refreshDuration.Observe(d.Seconds())
}

func (r *Recorder) ObservePriceFetch(result string, d time.Duration) {
	r.priceFetch.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Recorder) RecordSignalIngested(transport string) {
	r.signalsIngested.WithLabelValues(transport).Inc()
}

func (r *Recorder) SetTrackedTokens(n int) {
	r.trackedTokens.Set(float64(n))
}

func (r *Recorder) SetTrackedCalls(n int) {
	r.trackedCalls.Set(float64(n))
}

func (r *Recorder) SetIgnoredEntities(n int) {
	r.ignoredEntities.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency labelled by the matched
// route template, so raw token ids never become label values.
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
