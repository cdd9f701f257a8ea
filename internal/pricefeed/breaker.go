package pricefeed

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures the circuit breaker around a Source.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	Timeout             time.Duration
	Interval            time.Duration
	MaxRequests         uint32
}

// BreakerSource stops calling the upstream source after repeated failures
// and lets a single probe through once Timeout has elapsed. An unavailable
// price counts as a successful call.
type BreakerSource struct {
	next    Source
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewBreakerSource wraps next with a circuit breaker.
func NewBreakerSource(next Source, cfg BreakerConfig, logger *logrus.Logger) *BreakerSource {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Name == "" {
		cfg.Name = "price-feed"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}

	b := &BreakerSource{next: next, logger: logger}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPriceUnavailable) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Price feed circuit breaker changed state")
		},
	})
	return b
}

// GetQuote implements Source.
func (b *BreakerSource) GetQuote(ctx context.Context, tokenID string) (*Quote, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.GetQuote(ctx, tokenID)
	})
	if err != nil {
		return nil, err
	}
	quote, _ := result.(*Quote)
	return quote, nil
}

// State reports the breaker state name.
func (b *BreakerSource) State() string {
	return b.breaker.State().String()
}
