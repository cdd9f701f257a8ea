package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/ingest"
	"github.com/irfndi/oracle-alpha-go/internal/ledger"
	"github.com/irfndi/oracle-alpha-go/internal/middleware"
	"github.com/irfndi/oracle-alpha-go/internal/models"
	"github.com/irfndi/oracle-alpha-go/internal/refresher"
	"github.com/irfndi/oracle-alpha-go/internal/sources"
)

type PriceRecorder interface {
	RecordPrice(obs models.PriceObservation)
}

// CallWriter is the write side of the call ledger.
type CallWriter interface {
	RecordCall(in ledger.NewCall) (*models.Call, bool, error)
	UpdateCallPrice(id string, price, marketCap decimal.Decimal) (*models.Call, error)
}

type OutcomeRecorder interface {
	RecordOutcome(signalID string, status models.CallStatus, exitPrice *decimal.Decimal) ([]*models.Call, error)
}

type SignalIngestor interface {
	Ingest(ctx context.Context, transport string, sig models.Signal) (*ingest.Result, error)
}

type RefreshTrigger interface {
	RefreshOnce(ctx context.Context) (refresher.Report, error)
}

type TokenIssuer interface {
	GenerateToken(subject, role string) (string, time.Time, error)
}

// AdminHandler serves the write routes. Every route sits behind the admin
// middleware.
type AdminHandler struct {
	prices   PriceRecorder
	calls    CallWriter
	outcomes OutcomeRecorder
	ingestor SignalIngestor
	refresh  RefreshTrigger
	tokens   TokenIssuer
	logger   *logrus.Logger
}

type RecordCallRequest struct {
	TokenID   string          `json:"token_id" binding:"required"`
	Symbol    string          `json:"symbol"`
	SignalID  string          `json:"signal_id"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
	CalledAt  time.Time       `json:"called_at"`
}

type RecordCallResponse struct {
	Call    *models.Call `json:"call"`
	Created bool         `json:"created"`
}

type UpdateCallPriceRequest struct {
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

type OutcomeRequest struct {
	Status    string           `json:"status" binding:"required"`
	ExitPrice *decimal.Decimal `json:"exit_price"`
}

type OutcomeResponse struct {
	SignalID string         `json:"signal_id"`
	Calls    []*models.Call `json:"calls"`
	Count    int            `json:"count"`
}

type TokenRequest struct {
	Subject string `json:"subject" binding:"required"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAdminHandler(prices PriceRecorder, calls CallWriter, outcomes OutcomeRecorder, ingestor SignalIngestor, refresh RefreshTrigger, tokens TokenIssuer, logger *logrus.Logger) *AdminHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AdminHandler{
		prices:   prices,
		calls:    calls,
		outcomes: outcomes,
		ingestor: ingestor,
		refresh:  refresh,
		tokens:   tokens,
		logger:   logger,
	}
}

// RecordPrice handles POST /prices.
func (h *AdminHandler) RecordPrice(c *gin.Context) {
	var obs models.PriceObservation
	if err := c.ShouldBindJSON(&obs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if obs.Price <= 0 || obs.MarketCap < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be positive and market_cap non-negative"})
		return
	}
	h.prices.RecordPrice(obs)
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "token_id": obs.TokenID})
}

// RecordCall handles POST /kols/:handle/calls. A duplicate of a recent open
// call returns the existing call with 200.
func (h *AdminHandler) RecordCall(c *gin.Context) {
	var req RecordCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if !req.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be positive"})
		return
	}

	call, created, err := h.calls.RecordCall(ledger.NewCall{
		Handle:    c.Param("handle"),
		Kind:      models.EntityKindKOL,
		TokenID:   req.TokenID,
		Symbol:    req.Symbol,
		SignalID:  req.SignalID,
		Price:     req.Price,
		MarketCap: req.MarketCap,
		CalledAt:  req.CalledAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, RecordCallResponse{Call: call, Created: created})
}

// UpdateCallPrice handles POST /calls/:id/price.
func (h *AdminHandler) UpdateCallPrice(c *gin.Context) {
	var req UpdateCallPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if !req.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be positive"})
		return
	}

	call, err := h.calls.UpdateCallPrice(c.Param("id"), req.Price, req.MarketCap)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// IngestSignal handles POST /signals.
func (h *AdminHandler) IngestSignal(c *gin.Context) {
	var sig models.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), ingest.TransportHTTP, sig)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.IgnoredKOLs == nil {
		result.IgnoredKOLs = []string{}
	}
	c.JSON(http.StatusCreated, result)
}

// RecordOutcome handles POST /signals/:id/outcome.
func (h *AdminHandler) RecordOutcome(c *gin.Context) {
	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if req.ExitPrice != nil && !req.ExitPrice.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exit_price must be positive"})
		return
	}

	signalID := c.Param("id")
	status := models.CallStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	settled, err := h.outcomes.RecordOutcome(signalID, status, req.ExitPrice)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, OutcomeResponse{SignalID: signalID, Calls: settled, Count: len(settled)})
}

// TriggerRefresh handles POST /refresh by running one pass synchronously.
func (h *AdminHandler) TriggerRefresh(c *gin.Context) {
	report, err := h.refresh.RefreshOnce(c.Request.Context())
	if err != nil {
		middleware.RecordError(c, err, "refresh pass interrupted")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Refresh pass interrupted", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// IssueToken handles POST /auth/token, trading an API key for an admin JWT.
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Subject, middleware.RoleAdmin)
	if err != nil {
		if errors.Is(err, middleware.ErrTokenSigningDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Token signing is not configured"})
			return
		}
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"subject":   req.Subject,
		"issued_by": c.GetString(middleware.ContextKeyAdminSubject),
	}).Info("Issued admin token")
	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrCallNotFound), errors.Is(err, sources.ErrUnknownSignal):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidCall), errors.Is(err, ledger.ErrInvalidOutcome), errors.Is(err, ingest.ErrInvalidSignal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		middleware.RecordError(c, err, "admin request failed")
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
