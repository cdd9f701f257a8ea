// Package pricefeed fetches current token quotes from the external price
// service. Sources compose: a Redis cache in front of a circuit breaker in
// front of the HTTP client.
package pricefeed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable means the service has no usable price for a token.
// It is a normal answer, not a service failure.
var ErrPriceUnavailable = errors.New("price unavailable")

// Quote is a point-in-time price for a token.
type Quote struct {
	TokenID   string          `json:"token_id"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Timestamp time.Time       `json:"timestamp"`
}

// Source returns the current quote for a token.
type Source interface {
	GetQuote(ctx context.Context, tokenID string) (*Quote, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, tokenID string) (*Quote, error)

func (f SourceFunc) GetQuote(ctx context.Context, tokenID string) (*Quote, error) {
	return f(ctx, tokenID)
}

// FetchObserver receives the latency of each upstream request.
type FetchObserver interface {
	ObservePriceFetch(result string, d time.Duration)
}
