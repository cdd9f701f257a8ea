package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const quoteKeyPrefix = "oracle:quote:"

// DefaultQuoteTTL bounds how stale a cached quote may be.
const DefaultQuoteTTL = 20 * time.Second

// CachedSource serves recent quotes from Redis and falls through to next
// on a miss. Cache errors never fail a lookup.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedSource wraps next with a Redis quote cache.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedSource{next: next, client: client, ttl: ttl, logger: logger}
}

func quoteKey(tokenID string) string {
	return quoteKeyPrefix + tokenID
}

// GetQuote implements Source.
func (c *CachedSource) GetQuote(ctx context.Context, tokenID string) (*Quote, error) {
	if quote, ok := c.lookup(ctx, tokenID); ok {
		return quote, nil
	}

	quote, err := c.next.GetQuote(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, quote)
	return quote, nil
}

func (c *CachedSource) lookup(ctx context.Context, tokenID string) (*Quote, bool) {
	data, err := c.client.Get(ctx, quoteKey(tokenID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("token", tokenID).Warn("Quote cache read failed")
		}
		return nil, false
	}

	var quote Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		c.logger.WithError(err).WithField("token", tokenID).Warn("Discarding malformed cached quote")
		return nil, false
	}
	return &quote, true
}

func (c *CachedSource) store(ctx context.Context, quote *Quote) {
	data, err := json.Marshal(quote)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode quote for cache")
		return
	}
	if err := c.client.Set(ctx, quoteKey(quote.TokenID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("token", quote.TokenID).Warn("Quote cache write failed")
	}
}
