// Package sources tracks signal-source calls and their outcomes.
package sources

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/models"
)

var ErrUnknownSignal = errors.New("unknown signal")

// Ledger is the part of the call ledger the tracker writes to.
type Ledger interface {
	RecordCall(in ledger.NewCall) (*models.Call, bool, error)
	SetOutcome(id string, status models.CallStatus, exitPrice *decimal.Decimal) (*models.Call, error)
	CallsForSignal(signalID string) []*models.Call
	CallsFor(handle string) []*models.Call
}

// Scorer is the part of the reliability scorer the tracker reads.
type Scorer interface {
	AllStats(kind models.EntityKind) []models.ReliabilityStats
	GetKOLSignalWeight(handle string) float64
}

// Tracker links signal sources to calls so their outcomes feed the
// reliability scores.
type Tracker struct {
	ledger Ledger
	scorer Scorer
	logger *logrus.Logger
}

func NewTracker(l Ledger, scorer Scorer, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{ledger: l, scorer: scorer, logger: logger}
}

// SourceCall is the input of TrackSignalSource.
type SourceCall struct {
	SignalID  string
	Source    string
	TokenID   string
	Symbol    string
	Price     decimal.Decimal
	MarketCap decimal.Decimal
	At        time.Time
}

// TrackSignalSource records a call for a source and links it to the signal.
func (t *Tracker) TrackSignalSource(in SourceCall) (*models.Call, error) {
	if in.SignalID == "" {
		return nil, fmt.Errorf("%w: signal id is required", ledger.ErrInvalidCall)
	}
	call, created, err := t.ledger.RecordCall(ledger.NewCall{
		Handle:    in.Source,
		Kind:      models.EntityKindSource,
		TokenID:   in.TokenID,
		Symbol:    in.Symbol,
		SignalID:  in.SignalID,
		Price:     in.Price,
		MarketCap: in.MarketCap,
		CalledAt:  in.At,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track source %s: %w", in.Source, err)
	}

	t.logger.WithFields(logrus.Fields{
		"signal_id": in.SignalID,
		"source":    call.Handle,
		"token":     in.TokenID,
		"created":   created,
	}).Debug("Tracked signal source")
	return call, nil
}

// RecordOutcome settles every call linked to a signal. Calls that already
// expired keep their status and are left out of the result.
func (t *Tracker) RecordOutcome(signalID string, status models.CallStatus, exitPrice *decimal.Decimal) ([]*models.Call, error) {
	if !status.IsOutcome() {
		return nil, ledger.ErrInvalidOutcome
	}
	linked := t.ledger.CallsForSignal(signalID)
	if len(linked) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, signalID)
	}

	settled := make([]*models.Call, 0, len(linked))
	expired := 0
	for _, c := range linked {
		updated, err := t.ledger.SetOutcome(c.ID, status, exitPrice)
		if errors.Is(err, ledger.ErrCallFinal) {
			expired++
			continue
		}
		if err != nil {
			return settled, fmt.Errorf("failed to settle call %s: %w", c.ID, err)
		}
		settled = append(settled, updated)
	}

	t.logger.WithFields(logrus.Fields{
		"signal_id": signalID,
		"status":    status,
		"calls":     len(settled),
		"expired":   expired,
	}).Info("Recorded signal outcome")
	return settled, nil
}

// GetAllSourcePerformances returns the reliability view of every source,
// most reliable first.
func (t *Tracker) GetAllSourcePerformances() []models.SourcePerformance {
	stats := t.scorer.AllStats(models.EntityKindSource)
	out := make([]models.SourcePerformance, 0, len(stats))
	for _, s := range stats {
		signals := make(map[string]struct{})
		for _, c := range t.ledger.CallsFor(s.Handle) {
			if c.SignalID != "" {
				signals[c.SignalID] = struct{}{}
			}
		}
		out = append(out, models.SourcePerformance{
			ReliabilityStats: s,
			Signals:          len(signals),
			SignalWeight:     t.scorer.GetKOLSignalWeight(s.Handle),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReliabilityScore != out[j].ReliabilityScore {
			return out[i].ReliabilityScore > out[j].ReliabilityScore
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}
