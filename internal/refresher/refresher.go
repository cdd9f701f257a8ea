// Package refresher periodically re-prices open calls through the price
// feed and folds the quotes into the ledger and the time-series store.
package refresher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/irfndi/oracle-alpha-go/internal/metrics"
	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/pricefeed"
	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
)

// CallStore is the ledger surface the refresher needs.
type CallStore interface {
	PendingRefresh(minAge time.Duration) []*models.Call
	UpdateCallPrice(id string, price, marketCap decimal.Decimal) (*models.Call, error)
	Len() int
}

// PriceRecorder receives every fetched quote.
type PriceRecorder interface {
	RecordPrice(obs models.PriceObservation)
	Len() int
}

// Observer receives pass and item counters.
type Observer interface {
	RecordRefreshItem(result string)
	ObserveRefreshPass(d time.Duration)
	SetTrackedCalls(n int)
	SetTrackedTokens(n int)
}

// PassHook runs after every completed pass.
type PassHook func(ctx context.Context, report Report)

// Config controls pacing and queue bounds.
type Config struct {
	Interval      time.Duration
	MinUpdateAge  time.Duration
	FetchInterval time.Duration
	Burst         int
	QueueSize     int
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Minute,
		MinUpdateAge:  30 * time.Second,
		FetchInterval: 200 * time.Millisecond,
		Burst:         1,
		QueueSize:     1000,
	}
}

// Report summarizes one pass. Queued counts calls fed to the pass worker;
// Dropped counts eligible calls left for the next pass because the pass
// was already at QueueSize.
type Report struct {
	Queued   int           `json:"queued"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
}

// Refresher drives refresh passes. Passes never overlap.
type Refresher struct {
	calls    CallStore
	prices   PriceRecorder
	source   pricefeed.Source
	limiter  *rate.Limiter
	cfg      Config
	observer Observer
	hooks    []PassHook
	logger   *logrus.Logger

	passMu sync.Mutex
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Refresher) {
		r.observer = o
	}
}

// WithPassHook appends a hook run after each pass.
func WithPassHook(h PassHook) Option {
	return func(r *Refresher) {
		if h != nil {
			r.hooks = append(r.hooks, h)
		}
	}
}

// New creates a Refresher. Zero config fields take their defaults; a zero
// FetchInterval disables pacing.
func New(calls CallStore, prices PriceRecorder, source pricefeed.Source, cfg Config, logger *logrus.Logger, opts ...Option) *Refresher {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinUpdateAge < 0 {
		cfg.MinUpdateAge = 0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	if cfg.FetchInterval > 0 {
		limit = rate.Every(cfg.FetchInterval)
	}

	r := &Refresher{
		calls:   calls,
		prices:  prices,
		source:  source,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type quoteResult struct {
	quote *pricefeed.Quote
	err   error
}

// RefreshOnce runs a single pass. Per-call fetch failures are counted and
// logged but never returned; the only error is a cancelled context, in
// which case the partial report is still returned.
func (r *Refresher) RefreshOnce(ctx context.Context) (Report, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.GetRefreshTracer(), "refresh.pass")
	defer span.End()

	start := time.Now()
	pending := r.calls.PendingRefresh(r.cfg.MinUpdateAge)

	var report Report
	if len(pending) > r.cfg.QueueSize {
		report.Dropped = len(pending) - r.cfg.QueueSize
		pending = pending[:r.cfg.QueueSize]
	}

	queue := make(chan *models.Call, r.cfg.Burst)
	drained := make(chan workerResult, 1)
	go func() {
		drained <- r.drain(ctx, queue)
	}()

	for _, call := range pending {
		queue <- call
		report.Queued++
	}
	close(queue)

	result := <-drained
	report.Updated = result.report.Updated
	report.Skipped = result.report.Skipped
	report.Failed = result.report.Failed
	ctxErr := result.err

	report.Duration = time.Since(start)
	r.finishPass(ctx, report)

	span.SetAttributes(
		attribute.Int("refresh.queued", report.Queued),
		attribute.Int("refresh.updated", report.Updated),
		attribute.Int("refresh.skipped", report.Skipped),
		attribute.Int("refresh.failed", report.Failed),
		attribute.Int("refresh.dropped", report.Dropped),
	)

	if ctxErr == nil {
		ctxErr = ctx.Err()
	}
	if ctxErr != nil {
		telemetry.RecordError(span, ctxErr)
		return report, ctxErr
	}
	telemetry.SetSpanStatus(span, codes.Ok, "")
	return report, nil
}

type workerResult struct {
	report Report
	err    error
}

// drain is the pass worker. It reads the queue until it is closed, fetching
// each token once per pass; after the context ends the remaining calls are
// counted as skipped so the producer never blocks.
func (r *Refresher) drain(ctx context.Context, queue <-chan *models.Call) workerResult {
	var res workerResult
	quotes := make(map[string]quoteResult)

	for call := range queue {
		if res.err != nil {
			res.report.Skipped++
			continue
		}

		result, seen := quotes[call.TokenID]
		if !seen {
			if err := r.limiter.Wait(ctx); err != nil {
				res.err = err
				res.report.Skipped++
				continue
			}
			quote, err := r.source.GetQuote(ctx, call.TokenID)
			result = quoteResult{quote: quote, err: err}
			quotes[call.TokenID] = result
			if err == nil {
				r.recordObservation(call, quote)
			}
		}

		r.apply(call, result, &res.report)
	}
	return res
}

func (r *Refresher) apply(call *models.Call, result quoteResult, report *Report) {
	switch {
	case errors.Is(result.err, pricefeed.ErrPriceUnavailable):
		report.Skipped++
		r.recordItem(metrics.ResultSkipped)
		return
	case result.err != nil:
		report.Failed++
		r.recordItem(metrics.ResultFailed)
		r.logger.WithFields(logrus.Fields{
			"call_id": call.ID,
			"token":   call.TokenID,
			"error":   result.err.Error(),
		}).Warn("Price fetch failed, keeping stale call data")
		return
	}

	if _, err := r.calls.UpdateCallPrice(call.ID, result.quote.Price, result.quote.MarketCap); err != nil {
		report.Failed++
		r.recordItem(metrics.ResultFailed)
		r.logger.WithFields(logrus.Fields{
			"call_id": call.ID,
			"error":   err.Error(),
		}).Warn("Failed to apply refreshed price")
		return
	}
	report.Updated++
	r.recordItem(metrics.ResultUpdated)
}

func (r *Refresher) recordObservation(call *models.Call, quote *pricefeed.Quote) {
	if r.prices == nil {
		return
	}
	r.prices.RecordPrice(models.PriceObservation{
		TokenID:   call.TokenID,
		Symbol:    call.Symbol,
		Price:     quote.Price.InexactFloat64(),
		MarketCap: quote.MarketCap.InexactFloat64(),
		Timestamp: quote.Timestamp,
	})
}

func (r *Refresher) recordItem(result string) {
	if r.observer != nil {
		r.observer.RecordRefreshItem(result)
	}
}

func (r *Refresher) finishPass(ctx context.Context, report Report) {
	if r.observer != nil {
		for i := 0; i < report.Dropped; i++ {
			r.observer.RecordRefreshItem(metrics.ResultDropped)
		}
		r.observer.ObserveRefreshPass(report.Duration)
		r.observer.SetTrackedCalls(r.calls.Len())
		if r.prices != nil {
			r.observer.SetTrackedTokens(r.prices.Len())
		}
	}

	r.logger.WithFields(logrus.Fields{
		"queued":      report.Queued,
		"updated":     report.Updated,
		"skipped":     report.Skipped,
		"failed":      report.Failed,
		"dropped":     report.Dropped,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Refresh pass completed")

	for _, hook := range r.hooks {
		hook(ctx, report)
	}
}

// Run refreshes immediately and then on every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.WithFields(logrus.Fields{
		"interval":       r.cfg.Interval.String(),
		"fetch_interval": r.cfg.FetchInterval.String(),
		"queue_size":     r.cfg.QueueSize,
	}).Info("Starting price refresher")

	for {
		if _, err := r.RefreshOnce(ctx); err != nil {
			r.logger.Info("Stopping price refresher")
			return
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Stopping price refresher")
			return
		case <-ticker.C:
		}
	}
}
