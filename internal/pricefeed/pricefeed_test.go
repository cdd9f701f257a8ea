package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	url     string
	timeout int
}

func (c testConfig) GetServiceURL() string { return c.url }
func (c testConfig) GetTimeout() int       { return c.timeout }

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObservePriceFetch(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newPriceServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/price/sol":
			assert.Equal(t, "Oracle-Alpha-Go/1.0", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(`{"tokenId":"sol","price":"142.35","marketCap":65000000000}`))
		case "/api/price/zero":
			_, _ = w.Write([]byte(`{"tokenId":"zero","price":0}`))
		case "/api/price/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream timeout"}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_GetQuote(t *testing.T) {
	server := newPriceServer(t)
	observer := &recordingObserver{}
	client := NewClient(testConfig{url: server.URL + "/", timeout: 2}, observer, quietLogger())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client.now = func() time.Time { return fixed }

	quote, err := client.GetQuote(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, "sol", quote.TokenID)
	assert.True(t, quote.Price.Equal(decimal.RequireFromString("142.35")))
	assert.True(t, quote.MarketCap.Equal(decimal.NewFromInt(65000000000)))
	assert.Equal(t, fixed, quote.Timestamp)

	assert.NoError(t, client.HealthCheck(context.Background()))
	assert.Equal(t, []string{"ok"}, observer.results)
}

func TestClient_Unavailable(t *testing.T) {
	server := newPriceServer(t)
	observer := &recordingObserver{}
	client := NewClient(testConfig{url: server.URL}, observer, quietLogger())

	_, err := client.GetQuote(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	_, err = client.GetQuote(context.Background(), "zero")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	_, err = client.GetQuote(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPriceUnavailable)
	assert.Contains(t, err.Error(), "price service error (502): upstream timeout")

	assert.Equal(t, []string{"unavailable", "unavailable", "error"}, observer.results)
}

func TestClient_ContextCancelled(t *testing.T) {
	server := newPriceServer(t)
	client := NewClient(testConfig{url: server.URL}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetQuote(ctx, "sol")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerSource_TripsAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	failing := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	breaker := NewBreakerSource(failing, BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Hour}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := breaker.GetQuote(context.Background(), "sol")
		require.Error(t, err)
	}
	assert.Equal(t, "open", breaker.State())

	_, err := breaker.GetQuote(context.Background(), "sol")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls)
}

func TestBreakerSource_UnavailableIsNotAFailure(t *testing.T) {
	unavailable := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		return nil, ErrPriceUnavailable
	})
	breaker := NewBreakerSource(unavailable, BreakerConfig{ConsecutiveFailures: 2}, quietLogger())

	for i := 0; i < 5; i++ {
		_, err := breaker.GetQuote(context.Background(), "rug")
		assert.ErrorIs(t, err, ErrPriceUnavailable)
	}
	assert.Equal(t, "closed", breaker.State())
}

func TestBreakerSource_PassesQuotes(t *testing.T) {
	want := &Quote{TokenID: "sol", Price: decimal.NewFromInt(1)}
	ok := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		return want, nil
	})
	breaker := NewBreakerSource(ok, BreakerConfig{}, nil)

	got, err := breaker.GetQuote(context.Background(), "sol")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedSource_HitAndExpiry(t *testing.T) {
	mr, client := newTestRedis(t)

	calls := 0
	upstream := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		calls++
		return &Quote{
			TokenID:   tokenID,
			Price:     decimal.NewFromFloat(0.0042),
			MarketCap: decimal.NewFromInt(420000),
			Timestamp: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	})
	cache := NewCachedSource(upstream, client, 10*time.Second, quietLogger())

	first, err := cache.GetQuote(context.Background(), "pepe")
	require.NoError(t, err)
	second, err := cache.GetQuote(context.Background(), "pepe")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.True(t, first.Price.Equal(second.Price))
	assert.True(t, mr.Exists("oracle:quote:pepe"))
	assert.Equal(t, 10*time.Second, mr.TTL("oracle:quote:pepe"))

	mr.FastForward(11 * time.Second)
	_, err = cache.GetQuote(context.Background(), "pepe")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedSource_DoesNotCacheErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	upstream := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		return nil, ErrPriceUnavailable
	})
	cache := NewCachedSource(upstream, client, 0, quietLogger())

	_, err := cache.GetQuote(context.Background(), "rug")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.False(t, mr.Exists("oracle:quote:rug"))
}

func TestCachedSource_FallsThroughWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	upstream := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		return &Quote{TokenID: tokenID, Price: decimal.NewFromInt(3)}, nil
	})
	cache := NewCachedSource(upstream, client, time.Second, quietLogger())

	quote, err := cache.GetQuote(context.Background(), "sol")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(3)))
}

func TestCachedSource_MalformedEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("oracle:quote:sol", "not-json"))

	upstream := SourceFunc(func(ctx context.Context, tokenID string) (*Quote, error) {
		return &Quote{TokenID: tokenID, Price: decimal.NewFromInt(5)}, nil
	})
	cache := NewCachedSource(upstream, client, time.Second, quietLogger())

	quote, err := cache.GetQuote(context.Background(), "sol")
	require.NoError(t, err)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(5)))

	require.NoError(t, cache.Invalidate(context.Background(), "sol"))
	assert.False(t, mr.Exists("oracle:quote:sol"))
}
