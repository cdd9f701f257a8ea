// Package ingest turns aggregated signals into price observations and
// attributed calls.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/sources"
	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
)

const (
	TransportHTTP  = "http"
	TransportKafka = "kafka"
)

var ErrInvalidSignal = errors.New("invalid signal")

// PriceRecorder stores the market snapshot of a signal.
type PriceRecorder interface {
	RecordPrice(obs models.PriceObservation)
}

// CallRecorder stores KOL calls.
type CallRecorder interface {
	RecordCall(in ledger.NewCall) (*models.Call, bool, error)
}

// SourceTracker links source calls to their signal.
type SourceTracker interface {
	TrackSignalSource(in sources.SourceCall) (*models.Call, error)
}

// KOLScorer supplies per-KOL weights and the ignore rule.
type KOLScorer interface {
	GetKOLSignalWeight(handle string) float64
	ShouldIgnoreKOL(handle string) bool
}

// Counter counts ingested signals per transport.
type Counter interface {
	RecordSignalIngested(transport string)
}

// Result describes what one signal produced.
type Result struct {
	SignalID    string   `json:"signal_id"`
	TokenID     string   `json:"token"`
	SourceCalls int      `json:"source_calls"`
	KOLCalls    int      `json:"kol_calls"`
	KOLWeight   float64  `json:"kol_weight"`
	IgnoredKOLs []string `json:"ignored_kols"`
}

// Ingestor applies signals to the stores.
type Ingestor struct {
	prices  PriceRecorder
	calls   CallRecorder
	sources SourceTracker
	scorer  KOLScorer
	counter Counter
	logger  *logrus.Logger
	now     func() time.Time
}

func NewIngestor(prices PriceRecorder, calls CallRecorder, tracker SourceTracker, scorer KOLScorer, counter Counter, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{
		prices:  prices,
		calls:   calls,
		sources: tracker,
		scorer:  scorer,
		counter: counter,
		logger:  logger,
		now:     time.Now,
	}
}

// Ingest records the market snapshot as a price observation, tracks every
// source with a positive sub-score and records a call per KOL handle.
//
// KOL weights are read before the new calls land, so KOLWeight is the mean
// weight of the non-ignored KOLs as they stood when the signal arrived, or
// 1.0 when there are none. Ignored KOLs still get their call recorded so
// they can earn their way back.
func (i *Ingestor) Ingest(ctx context.Context, transport string, sig models.Signal) (*Result, error) {
	_, span := telemetry.StartSpan(ctx, telemetry.GetIngestTracer(), "ingest.signal",
		telemetry.StringAttribute("signal.id", sig.ID),
		telemetry.StringAttribute("signal.token", sig.TokenID),
		telemetry.StringAttribute("signal.transport", transport),
	)
	defer span.End()

	if err := validate(sig); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	at := sig.Timestamp
	if at.IsZero() {
		at = i.now()
	}

	obs := models.PriceObservation{
		TokenID:       sig.TokenID,
		Symbol:        sig.Symbol,
		Price:         sig.Market.Price.InexactFloat64(),
		MarketCap:     sig.Market.MarketCap.InexactFloat64(),
		NarrativeTags: sig.Narratives,
		Timestamp:     at,
	}
	if sig.Market.Volume24h.IsPositive() {
		volume := sig.Market.Volume24h.InexactFloat64()
		obs.Volume = &volume
	}
	i.prices.RecordPrice(obs)

	result := &Result{SignalID: sig.ID, TokenID: sig.TokenID, KOLWeight: 1.0, IgnoredKOLs: []string{}}

	for _, src := range sig.Sources {
		if src.Score <= 0 || src.Source == "" {
			continue
		}
		if _, err := i.sources.TrackSignalSource(sources.SourceCall{
			SignalID:  sig.ID,
			Source:    src.Source,
			TokenID:   sig.TokenID,
			Symbol:    sig.Symbol,
			Price:     sig.Market.Price,
			MarketCap: sig.Market.MarketCap,
			At:        at,
		}); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to track source %s: %w", src.Source, err)
		}
		result.SourceCalls++
	}

	var weightSum float64
	var weighted int
	for _, raw := range sig.KOLHandles {
		handle := ledger.NormalizeHandle(raw)
		if handle == "" {
			continue
		}
		if i.scorer.ShouldIgnoreKOL(handle) {
			result.IgnoredKOLs = append(result.IgnoredKOLs, handle)
		} else {
			weightSum += i.scorer.GetKOLSignalWeight(handle)
			weighted++
		}

		if _, _, err := i.calls.RecordCall(ledger.NewCall{
			Handle:    handle,
			Kind:      models.EntityKindKOL,
			TokenID:   sig.TokenID,
			Symbol:    sig.Symbol,
			SignalID:  sig.ID,
			Price:     sig.Market.Price,
			MarketCap: sig.Market.MarketCap,
			CalledAt:  at,
		}); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to record call for %s: %w", handle, err)
		}
		result.KOLCalls++
	}
	if weighted > 0 {
		result.KOLWeight = weightSum / float64(weighted)
	}

	if i.counter != nil {
		i.counter.RecordSignalIngested(transport)
	}
	telemetry.SetSpanAttributes(span,
		telemetry.Int64Attribute("signal.source_calls", int64(result.SourceCalls)),
		telemetry.Int64Attribute("signal.kol_calls", int64(result.KOLCalls)),
		telemetry.Float64Attribute("signal.kol_weight", result.KOLWeight),
		telemetry.StringSliceAttribute("signal.ignored_kols", result.IgnoredKOLs),
	)

	i.logger.WithFields(logrus.Fields{
		"signal_id":    sig.ID,
		"token":        sig.TokenID,
		"transport":    transport,
		"source_calls": result.SourceCalls,
		"kol_calls":    result.KOLCalls,
		"kol_weight":   result.KOLWeight,
		"ignored_kols": len(result.IgnoredKOLs),
	}).Info("Signal ingested")
	return result, nil
}

func validate(sig models.Signal) error {
	switch {
	case sig.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidSignal)
	case sig.TokenID == "":
		return fmt.Errorf("%w: token is required", ErrInvalidSignal)
	case sig.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	case !sig.Market.Price.IsPositive():
		return fmt.Errorf("%w: market price must be positive", ErrInvalidSignal)
	case sig.Market.MarketCap.IsNegative():
		return fmt.Errorf("%w: negative market cap", ErrInvalidSignal)
	}
	return nil
}
