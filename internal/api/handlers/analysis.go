package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/oracle-alpha-go/internal/middleware"
	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// SeriesReader is the read side of the time-series store.
type SeriesReader interface {
	GetSeries(tokenID string) (*models.TokenSeries, bool)
}

// Correlator computes pairwise token statistics.
type Correlator interface {
	CalculateCorrelation(tokenA, tokenB string) (*models.CorrelationResult, bool)
	GetCorrelatedTokens(tokenID string) []models.CorrelationResult
	AnalyzeLeadLag(tokenA, tokenB string, maxLag int) (*models.LeadLagResult, bool)
}

// SectorReader aggregates tokens by sector.
type SectorReader interface {
	GetSectorCorrelation(sector string) (*models.SectorCorrelation, bool)
	GetAllSectorCorrelations() []models.SectorCorrelation
	GetRelatedTokens(tokenID string) []models.RelatedToken
}

// AnalysisHandler serves the token, correlation and sector read routes.
type AnalysisHandler struct {
	series     SeriesReader
	correlator Correlator
	sectors    SectorReader
}

type TokenHistoryResponse struct {
	*models.TokenSeries
	Count int `json:"count"`
}

type CorrelatedTokensResponse struct {
	TokenID      string                     `json:"token_id"`
	Correlations []models.CorrelationResult `json:"correlations"`
	Count        int                        `json:"count"`
}

type RelatedTokensResponse struct {
	TokenID string                `json:"token_id"`
	Related []models.RelatedToken `json:"related"`
	Count   int                   `json:"count"`
}

type SectorsResponse struct {
	Sectors []models.SectorCorrelation `json:"sectors"`
	Count   int                        `json:"count"`
}

func NewAnalysisHandler(series SeriesReader, correlator Correlator, sectors SectorReader) *AnalysisHandler {
	return &AnalysisHandler{
		series:     series,
		correlator: correlator,
		sectors:    sectors,
	}
}

// GetTokenHistory handles GET /tokens/:token/history.
func (h *AnalysisHandler) GetTokenHistory(c *gin.Context) {
	series, ok := h.series.GetSeries(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	}
	c.JSON(http.StatusOK, TokenHistoryResponse{TokenSeries: series, Count: len(series.History)})
}

// GetCorrelatedTokens handles GET /tokens/:token/correlated. An unknown
// token yields an empty list.
func (h *AnalysisHandler) GetCorrelatedTokens(c *gin.Context) {
	tokenID := c.Param("token")
	results := h.correlator.GetCorrelatedTokens(tokenID)
	if results == nil {
		results = []models.CorrelationResult{}
	}
	middleware.AddSpanAttribute(c, "token.id", tokenID)
	middleware.AddSpanAttribute(c, "correlation.count", len(results))
	c.JSON(http.StatusOK, CorrelatedTokensResponse{TokenID: tokenID, Correlations: results, Count: len(results)})
}

// GetRelatedTokens handles GET /tokens/:token/related.
func (h *AnalysisHandler) GetRelatedTokens(c *gin.Context) {
	tokenID := c.Param("token")
	related := h.sectors.GetRelatedTokens(tokenID)
	if related == nil {
		related = []models.RelatedToken{}
	}
	c.JSON(http.StatusOK, RelatedTokensResponse{TokenID: tokenID, Related: related, Count: len(related)})
}

// GetCorrelation handles GET /correlation?a=&b=.
func (h *AnalysisHandler) GetCorrelation(c *gin.Context) {
	a, b, ok := tokenPair(c)
	if !ok {
		return
	}
	result, ok := h.correlator.CalculateCorrelation(a, b)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Insufficient overlapping data for correlation"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLeadLag handles GET /leadlag?a=&b=&max_lag=. max_lag is in minutes;
// omitted or zero uses the engine default.
func (h *AnalysisHandler) GetLeadLag(c *gin.Context) {
	a, b, ok := tokenPair(c)
	if !ok {
		return
	}
	maxLag, err := strconv.Atoi(c.DefaultQuery("max_lag", "0"))
	if err != nil || maxLag < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max_lag parameter"})
		return
	}
	result, ok := h.correlator.AnalyzeLeadLag(a, b, maxLag)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No significant lead-lag relationship"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSectors handles GET /sectors.
func (h *AnalysisHandler) GetSectors(c *gin.Context) {
	sectors := h.sectors.GetAllSectorCorrelations()
	if sectors == nil {
		sectors = []models.SectorCorrelation{}
	}
	c.JSON(http.StatusOK, SectorsResponse{Sectors: sectors, Count: len(sectors)})
}

// GetSector handles GET /sectors/:sector.
func (h *AnalysisHandler) GetSector(c *gin.Context) {
	result, ok := h.sectors.GetSectorCorrelation(c.Param("sector"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sector not found or has fewer than two tokens"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func tokenPair(c *gin.Context) (string, string, bool) {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a and b parameters are required"})
		return "", "", false
	}
	if a == b {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a and b must be different tokens"})
		return "", "", false
	}
	return a, b, true
}
