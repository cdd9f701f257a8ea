package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
)

// ClientConfig is the subset of configuration the client needs.
type ClientConfig interface {
	GetServiceURL() string
	GetTimeout() int
}

// Client talks to the price service over HTTP.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	observer   FetchObserver
	logger     *logrus.Logger
	now        func() time.Time
}

type priceResponse struct {
	TokenID   string           `json:"tokenId"`
	Price     *decimal.Decimal `json:"price"`
	MarketCap *decimal.Decimal `json:"marketCap"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a price service client.
func NewClient(cfg ClientConfig, observer FetchObserver, logger *logrus.Logger) *Client {
	timeout := time.Duration(cfg.GetTimeout()) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		BaseURL:  strings.TrimSuffix(cfg.GetServiceURL(), "/"),
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// GetQuote fetches GET /api/price/{token}. A 404 or a non-positive price
// yields ErrPriceUnavailable.
func (c *Client) GetQuote(ctx context.Context, tokenID string) (*Quote, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetExternalTracer(), "pricefeed.GetQuote",
		attribute.String("token.id", tokenID))
	defer span.End()

	start := time.Now()
	quote, err := c.fetch(ctx, tokenID)
	c.observe(err, time.Since(start))
	telemetry.SetSpanAttributes(span, telemetry.BoolAttribute("price.available", err == nil))

	if err != nil && !errors.Is(err, ErrPriceUnavailable) {
		telemetry.RecordError(span, err)
	}
	return quote, err
}

func (c *Client) fetch(ctx context.Context, tokenID string) (*Quote, error) {
	var body priceResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/api/price/"+url.PathEscape(tokenID), &body); err != nil {
		return nil, err
	}
	if body.Price == nil || !body.Price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, tokenID)
	}

	quote := &Quote{
		TokenID:   tokenID,
		Price:     *body.Price,
		Timestamp: c.now(),
	}
	if body.MarketCap != nil {
		quote.MarketCap = *body.MarketCap
	}
	if body.Timestamp != nil && !body.Timestamp.IsZero() {
		quote.Timestamp = *body.Timestamp
	}
	return quote, nil
}

func (c *Client) observe(err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrPriceUnavailable):
		result = "unavailable"
	case err != nil:
		result = "error"
	}
	c.observer.ObservePriceFetch(result, d)
}

// makeRequest performs an HTTP request and decodes the JSON body into result.
func (c *Client) makeRequest(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Oracle-Alpha-Go/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("price service request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.WithError(cerr).Debug("Failed to close price service response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrPriceUnavailable, path)
	}
	if resp.StatusCode >= 400 {
		var errorResp errorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("price service error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("price service error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode price response: %w", err)
		}
	}
	return nil
}

// HealthCheck checks that the price service answers /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.makeRequest(ctx, http.MethodGet, "/health", nil)
}
