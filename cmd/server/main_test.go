package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/oracle-alpha-go/internal/config"
	"github.com/irfndi/oracle-alpha-go/internal/correlation"
	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/logging"
	"github.com/irfndi/oracle-alpha-go/internal/reliability"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func quietAccessLog() *logging.StandardLogger {
	return logging.NewStandardLoggerWithWriter(io.Discard, "error", "")
}

func newPriceService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		token := strings.TrimPrefix(r.URL.Path, "/api/price/")
		_, _ = w.Write([]byte(`{"tokenId":"` + token + `","price":"2","marketCap":"2000"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(priceURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Server:      config.ServerConfig{Port: 0, AdminAPIKey: "main-test-key"},
		PriceFeed: config.PriceFeedConfig{
			ServiceURL:      priceURL,
			Timeout:         5,
			BreakerFailures: 5,
			BreakerTimeout:  time.Minute,
		},
		Refresh:   config.RefreshConfig{Enabled: false, Interval: time.Hour, QueueSize: 100},
		Telemetry: config.TelemetryConfig{ServiceName: "oracle-alpha-test"},
		Security:  config.SecurityConfig{JWTSecret: "secret", JWTExpiry: "1h", BcryptCost: bcrypt.MinCost},
		Scoring: config.ScoringConfig{
			Retention:   24 * time.Hour,
			Status:      ledger.DefaultStatusPolicy(),
			Reliability: reliability.DefaultPolicy(),
		},
		Correlation: correlation.DefaultConfig(),
	}
}

func serve(a *app, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestNewApp_MinimalConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	priceService := newPriceService(t)

	a, err := newApp(context.Background(), testConfig(priceService.URL), quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.snapshotter)
	assert.Nil(t, a.consumer)

	w := serve(a, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var health struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Services["database"])
	assert.Equal(t, "disabled", health.Services["redis"])
	assert.Equal(t, "healthy", health.Services["price_feed"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/api/v1/kols/leaderboard", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(a, http.MethodPost, "/api/v1/refresh", "", nil).Code)
}

func TestNewApp_EndToEndRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	priceService := newPriceService(t)

	a, err := newApp(context.Background(), testConfig(priceService.URL), quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	auth := map[string]string{"X-API-Key": "main-test-key"}
	w := serve(a, http.MethodPost, "/api/v1/kols/alice/calls",
		`{"token_id":"bonk","symbol":"BONK","price":"1","called_at":"`+time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)+`"}`, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(a, http.MethodPost, "/api/v1/refresh", "", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report struct {
		Updated int `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Updated)

	w = serve(a, http.MethodGet, "/api/v1/tokens/bonk/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code, "refreshed quotes land in the time-series store")

	w = serve(a, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "oracle_http_requests_total")
}

func TestNewApp_WithRedisAndKafka(t *testing.T) {
	gin.SetMode(gin.TestMode)
	priceService := newPriceService(t)
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig(priceService.URL)
	cfg.Redis = config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port, QuoteTTL: time.Minute}
	cfg.Kafka = config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "oracle.signals", GroupID: "oracle-alpha-test"}

	a, err := newApp(context.Background(), cfg, quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()
	require.NotNil(t, a.consumer)

	w := serve(a, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"redis":"healthy"`)
}

func TestNewApp_InvalidKafkaConfig(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Kafka = config.KafkaConfig{Enabled: true, Topic: "oracle.signals"}

	_, err := newApp(context.Background(), cfg, quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers are required")
}

func TestNewApp_InvalidAdminHash(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Server.AdminAPIKeyHash = "not-a-hash"

	_, err := newApp(context.Background(), cfg, quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid admin credentials")
}

func TestApp_StartStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(newPriceService(t).URL)
	cfg.Refresh.Enabled = true

	a, err := newApp(context.Background(), cfg, quietLogger(), quietAccessLog(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	workers := a.start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop")
	}

	a.flush(context.Background())
}
