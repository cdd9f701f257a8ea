package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

const (
	defaultLeaderboardLimit = 10
	defaultHistoryLimit     = 50
	maxListLimit            = 100
)

// ReliabilityReader is the read side of the reliability scorer.
type ReliabilityReader interface {
	GetKOLStats(handle string) (*models.ReliabilityStats, bool)
	GetKOLHistory(handle string, limit int) []*models.Call
	GetKOLReliabilityScore(handle string) (float64, bool)
	GetKOLSignalWeight(handle string) float64
	ShouldIgnoreKOL(handle string) bool
}

type LeaderboardReader interface {
	GetKOLLeaderboard(limit int) models.Leaderboard
}

type SourcePerformanceReader interface {
	GetAllSourcePerformances() []models.SourcePerformance
}

// KOLHandler serves entity reliability, leaderboard and source routes.
type KOLHandler struct {
	scorer      ReliabilityReader
	leaderboard LeaderboardReader
	sources     SourcePerformanceReader
}

type KOLHistoryResponse struct {
	Handle string         `json:"handle"`
	Calls  []*models.Call `json:"calls"`
	Count  int            `json:"count"`
}

type KOLScoreResponse struct {
	Handle           string  `json:"handle"`
	ReliabilityScore float64 `json:"reliability_score"`
}

type KOLWeightResponse struct {
	Handle       string  `json:"handle"`
	SignalWeight float64 `json:"signal_weight"`
}

type KOLIgnoreResponse struct {
	Handle       string `json:"handle"`
	ShouldIgnore bool   `json:"should_ignore"`
}

type SourcePerformanceResponse struct {
	Sources []models.SourcePerformance `json:"sources"`
	Count   int                        `json:"count"`
}

func NewKOLHandler(scorer ReliabilityReader, leaderboard LeaderboardReader, sources SourcePerformanceReader) *KOLHandler {
	return &KOLHandler{
		scorer:      scorer,
		leaderboard: leaderboard,
		sources:     sources,
	}
}

// GetLeaderboard handles GET /kols/leaderboard?limit=.
func (h *KOLHandler) GetLeaderboard(c *gin.Context) {
	limit, ok := parseLimit(c, defaultLeaderboardLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.leaderboard.GetKOLLeaderboard(limit))
}

// GetStats handles GET /kols/:handle/stats.
func (h *KOLHandler) GetStats(c *gin.Context) {
	stats, ok := h.scorer.GetKOLStats(c.Param("handle"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "KOL not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHistory handles GET /kols/:handle/history?limit=.
func (h *KOLHandler) GetHistory(c *gin.Context) {
	limit, ok := parseLimit(c, defaultHistoryLimit)
	if !ok {
		return
	}
	handle := c.Param("handle")
	calls := h.scorer.GetKOLHistory(handle, limit)
	if calls == nil {
		calls = []*models.Call{}
	}
	c.JSON(http.StatusOK, KOLHistoryResponse{Handle: handle, Calls: calls, Count: len(calls)})
}

// GetScore handles GET /kols/:handle/score.
func (h *KOLHandler) GetScore(c *gin.Context) {
	handle := c.Param("handle")
	score, ok := h.scorer.GetKOLReliabilityScore(handle)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "KOL not found"})
		return
	}
	c.JSON(http.StatusOK, KOLScoreResponse{Handle: handle, ReliabilityScore: score})
}

// GetWeight handles GET /kols/:handle/weight. Unknown handles are neutral.
func (h *KOLHandler) GetWeight(c *gin.Context) {
	handle := c.Param("handle")
	c.JSON(http.StatusOK, KOLWeightResponse{Handle: handle, SignalWeight: h.scorer.GetKOLSignalWeight(handle)})
}

// GetIgnore handles GET /kols/:handle/ignore.
func (h *KOLHandler) GetIgnore(c *gin.Context) {
	handle := c.Param("handle")
	c.JSON(http.StatusOK, KOLIgnoreResponse{Handle: handle, ShouldIgnore: h.scorer.ShouldIgnoreKOL(handle)})
}

// GetSourcePerformance handles GET /sources/performance.
func (h *KOLHandler) GetSourcePerformance(c *gin.Context) {
	perfs := h.sources.GetAllSourcePerformances()
	if perfs == nil {
		perfs = []models.SourcePerformance{}
	}
	c.JSON(http.StatusOK, SourcePerformanceResponse{Sources: perfs, Count: len(perfs)})
}

func parseLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter (1-100)"})
		return 0, false
	}
	return limit, true
}
