package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/irfndi/oracle-alpha-go/internal/api/handlers"
	"github.com/irfndi/oracle-alpha-go/internal/correlation"
	"github.com/irfndi/oracle-alpha-go/internal/ingest"
	"github.com/irfndi/oracle-alpha-go/internal/leaderboard"
	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/middleware"
	"github.com/irfndi/oracle-alpha-go/internal/pricefeed"
	"github.com/irfndi/oracle-alpha-go/internal/refresher"
	"github.com/irfndi/oracle-alpha-go/internal/reliability"
	"github.com/irfndi/oracle-alpha-go/internal/sector"
	"github.com/irfndi/oracle-alpha-go/internal/sources"
	"github.com/irfndi/oracle-alpha-go/internal/timeseries"
)

const testAdminKey = "test-admin-key"

type testServer struct {
	router *gin.Engine
	ledger *ledger.Ledger
	store  *timeseries.Store
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestServer(t *testing.T, quotes pricefeed.Source) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := quietLogger()

	store := timeseries.NewStore(logger)
	calls := ledger.New(logger)
	scorer := reliability.NewScorer(calls, reliability.DefaultPolicy(), logger)
	engine := correlation.NewEngine(store, correlation.DefaultConfig(), logger)
	sectors := sector.NewAggregator(store, engine, correlation.DefaultConfig().CorrelatedThreshold, logger)
	tracker := sources.NewTracker(calls, scorer, logger)
	ingestor := ingest.NewIngestor(store, calls, tracker, scorer, nil, logger)
	if quotes == nil {
		quotes = pricefeed.SourceFunc(func(context.Context, string) (*pricefeed.Quote, error) {
			return nil, pricefeed.ErrPriceUnavailable
		})
	}
	refresh := refresher.New(calls, store, quotes, refresher.Config{Interval: time.Hour}, logger)

	auth := middleware.NewAuthMiddleware("jwt-secret", time.Hour)
	admin, err := middleware.NewAdminMiddleware(testAdminKey, "", bcrypt.MinCost, auth, logger)
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, Handlers{
		Health:   handlers.NewHealthHandler(nil, nil, nil, store, calls),
		Analysis: handlers.NewAnalysisHandler(store, engine, sectors),
		KOL:      handlers.NewKOLHandler(scorer, leaderboard.NewAssembler(scorer, reliability.DefaultPolicy()), tracker),
		Admin:    handlers.NewAdminHandler(store, calls, tracker, ingestor, refresh, auth, logger),
	}, admin, http.NotFoundHandler())

	return &testServer{router: router, ledger: calls, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("X-API-Key", testAdminKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var health handlers.HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Services["database"])
	assert.Equal(t, "disabled", health.Services["price_feed"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil, false).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/live", nil, false).Code)
}

func TestWriteRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{
		"/api/v1/prices",
		"/api/v1/kols/alice/calls",
		"/api/v1/calls/c1/price",
		"/api/v1/signals",
		"/api/v1/signals/s1/outcome",
		"/api/v1/refresh",
		"/api/v1/auth/token",
	} {
		w := s.do(t, http.MethodPost, path, map[string]string{}, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestPriceAndTokenRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{
		"token_id": "sol", "symbol": "SOL", "price": 150.5, "market_cap": 1000,
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{
		"token_id": "sol", "symbol": "SOL", "price": 0,
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{"price": 1}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "token_id and symbol are required")

	w = s.do(t, http.MethodGet, "/api/v1/tokens/sol/history", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var history handlers.TokenHistoryResponse
	decode(t, w, &history)
	assert.Equal(t, 1, history.Count)
	assert.Equal(t, "SOL", history.Symbol)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/tokens/nope/history", nil, false).Code)

	w = s.do(t, http.MethodGet, "/api/v1/tokens/sol/correlated", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var correlated handlers.CorrelatedTokensResponse
	decode(t, w, &correlated)
	assert.Empty(t, correlated.Correlations)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/tokens/sol/related", nil, false).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/sectors", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/sectors/ai", nil, false).Code)
}

func TestCorrelationRoutesValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/correlation?a=sol", http.StatusBadRequest},
		{"/api/v1/correlation?a=sol&b=sol", http.StatusBadRequest},
		{"/api/v1/correlation?a=sol&b=bonk", http.StatusNotFound},
		{"/api/v1/leadlag?a=sol&b=bonk&max_lag=abc", http.StatusBadRequest},
		{"/api/v1/leadlag?a=sol&b=bonk&max_lag=-5", http.StatusBadRequest},
		{"/api/v1/leadlag?a=sol&b=bonk", http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, s.do(t, http.MethodGet, tt.path, nil, false).Code, tt.path)
	}
}

func TestCallLifecycleRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	body := map[string]interface{}{"token_id": "bonk", "symbol": "BONK", "price": "0.00002", "market_cap": "1500000"}
	w := s.do(t, http.MethodPost, "/api/v1/kols/Alice/calls", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created handlers.RecordCallResponse
	decode(t, w, &created)
	assert.True(t, created.Created)
	assert.Equal(t, "alice", created.Call.Handle)

	w = s.do(t, http.MethodPost, "/api/v1/kols/alice/calls", body, true)
	require.Equal(t, http.StatusOK, w.Code)
	var dup handlers.RecordCallResponse
	decode(t, w, &dup)
	assert.False(t, dup.Created)
	assert.Equal(t, created.Call.ID, dup.Call.ID)

	w = s.do(t, http.MethodPost, "/api/v1/kols/alice/calls", map[string]interface{}{"token_id": "bonk", "price": "-1"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/calls/"+created.Call.ID+"/price", map[string]interface{}{"price": "0.00004", "market_cap": "3000000"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated struct {
		CurrentROI   float64         `json:"current_roi"`
		CurrentPrice decimal.Decimal `json:"current_price"`
	}
	decode(t, w, &updated)
	assert.InDelta(t, 100.0, updated.CurrentROI, 1e-9)
	assert.True(t, updated.CurrentPrice.Equal(decimal.RequireFromString("0.00004")))

	w = s.do(t, http.MethodPost, "/api/v1/calls/missing/price", map[string]interface{}{"price": "1"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/kols/alice/stats", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Handle     string `json:"handle"`
		TotalCalls int    `json:"total_calls"`
	}
	decode(t, w, &stats)
	assert.Equal(t, "alice", stats.Handle)
	assert.Equal(t, 1, stats.TotalCalls)

	w = s.do(t, http.MethodGet, "/api/v1/kols/alice/history?limit=5", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var history handlers.KOLHistoryResponse
	decode(t, w, &history)
	assert.Equal(t, 1, history.Count)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/kols/alice/score", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/kols/nobody/stats", nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/kols/nobody/score", nil, false).Code)

	w = s.do(t, http.MethodGet, "/api/v1/kols/nobody/weight", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var weight handlers.KOLWeightResponse
	decode(t, w, &weight)
	assert.Equal(t, 1.0, weight.SignalWeight)

	w = s.do(t, http.MethodGet, "/api/v1/kols/nobody/ignore", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var ignore handlers.KOLIgnoreResponse
	decode(t, w, &ignore)
	assert.False(t, ignore.ShouldIgnore)
}

func TestLeaderboardRoute(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/kols/leaderboard", nil, false).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/kols/leaderboard?limit=3", nil, false).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/kols/leaderboard?limit=0", nil, false).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/kols/leaderboard?limit=500", nil, false).Code)
}

func TestSignalRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	signal := map[string]interface{}{
		"id":     "sig-1",
		"token":  "wif",
		"symbol": "WIF",
		"score":  72,
		"sources": []map[string]interface{}{
			{"source": "volume", "weight": 0.4, "score": 80},
			{"source": "social", "weight": 0.6, "score": 0},
		},
		"market":      map[string]interface{}{"price": "2.1", "market_cap": "2100000000"},
		"kol_handles": []string{"alice", "bob"},
	}
	w := s.do(t, http.MethodPost, "/api/v1/signals", signal, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result ingest.Result
	decode(t, w, &result)
	assert.Equal(t, 1, result.SourceCalls)
	assert.Equal(t, 2, result.KOLCalls)
	assert.Equal(t, 1.0, result.KOLWeight)

	w = s.do(t, http.MethodPost, "/api/v1/signals", map[string]interface{}{"id": "sig-2", "token": "wif", "symbol": "WIF"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "zero price is rejected by the ingestor")

	w = s.do(t, http.MethodPost, "/api/v1/signals", map[string]interface{}{"token": "wif"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/signals/sig-1/outcome", map[string]interface{}{"status": "win", "exit_price": "4.2"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var outcome handlers.OutcomeResponse
	decode(t, w, &outcome)
	assert.Equal(t, 3, outcome.Count)

	w = s.do(t, http.MethodPost, "/api/v1/signals/sig-1/outcome", map[string]interface{}{"status": "MAYBE"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/signals/unknown/outcome", map[string]interface{}{"status": "LOSS"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/sources/performance", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var perf handlers.SourcePerformanceResponse
	decode(t, w, &perf)
	require.Equal(t, 1, perf.Count)
	assert.Equal(t, "volume", perf.Sources[0].Handle)
}

func TestRefreshRoute(t *testing.T) {
	quotes := pricefeed.SourceFunc(func(_ context.Context, tokenID string) (*pricefeed.Quote, error) {
		return &pricefeed.Quote{TokenID: tokenID, Price: decimal.NewFromInt(3), MarketCap: decimal.NewFromInt(3000)}, nil
	})
	s := newTestServer(t, quotes)

	_, _, err := s.ledger.RecordCall(ledger.NewCall{
		Handle:   "alice",
		TokenID:  "jup",
		Symbol:   "JUP",
		Price:    decimal.NewFromInt(1),
		CalledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/refresh", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report refresher.Report
	decode(t, w, &report)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 1, report.Updated)
}

func TestIssueTokenRoute(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{"subject": "ops"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var token handlers.TokenResponse
	decode(t, w, &token)
	require.NotEmpty(t, token.Token)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prices", bytes.NewBufferString(`{"token_id":"sol","symbol":"SOL","price":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/auth/token", map[string]string{}, true).Code)
}
