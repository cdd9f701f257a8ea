package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// HealthChecker is anything that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StoreCounter reports how much the in-memory stores hold.
type StoreCounter interface {
	Len() int
}

// SystemStats is a host resource snapshot.
type SystemStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryAvailableMB uint64  `json:"memory_available_mb"`
	CPUCount          int     `json:"cpu_count"`
	Goroutines        int     `json:"goroutines"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Tokens    int               `json:"tracked_tokens"`
	Calls     int               `json:"tracked_calls"`
	System    *SystemStats      `json:"system,omitempty"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// HealthHandler reports the state of the optional backing services. A
// disabled service (nil checker) is reported but never degrades the status;
// an enabled one that fails does.
type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	priceFeed HealthChecker
	tokens    StoreCounter
	calls     StoreCounter
	system    func(ctx context.Context) (*SystemStats, error)
}

func NewHealthHandler(db, redis, priceFeed HealthChecker, tokens, calls StoreCounter) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		priceFeed: priceFeed,
		tokens:    tokens,
		calls:     calls,
		system:    readSystemStats,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	services := map[string]string{
		"database":   checkService(ctx, h.db),
		"redis":      checkService(ctx, h.redis),
		"price_feed": checkService(ctx, h.priceFeed),
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status != "healthy" && status != "disabled" {
			overallStatus = "degraded"
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
	if h.tokens != nil {
		response.Tokens = h.tokens.Len()
	}
	if h.calls != nil {
		response.Calls = h.calls.Len()
	}
	if stats, err := h.system(ctx); err == nil {
		response.System = stats
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// ReadinessCheck only fails when the database is enabled and unreachable,
// since restore and snapshots depend on it.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":    false,
				"services": gin.H{"database": "not ready"},
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// LivenessCheck for container restarts.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func checkService(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return "disabled"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

func readSystemStats(ctx context.Context) (*SystemStats, error) {
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	cpuCount, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		cpuCount = runtime.NumCPU()
	}
	return &SystemStats{
		MemoryUsedPercent: memInfo.UsedPercent,
		MemoryAvailableMB: memInfo.Available / 1024 / 1024,
		CPUCount:          cpuCount,
		Goroutines:        runtime.NumGoroutine(),
	}, nil
}
