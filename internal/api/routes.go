package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/oracle-alpha-go/internal/api/handlers"
	"github.com/irfndi/oracle-alpha-go/internal/middleware"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Health   *handlers.HealthHandler
	Analysis *handlers.AnalysisHandler
	KOL      *handlers.KOLHandler
	Admin    *handlers.AdminHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, admin *middleware.AdminMiddleware, metrics http.Handler) {
	// Probes get their own spans; the router-wide tracer skips them.
	probes := router.Group("/", middleware.ProbeTelemetryMiddleware())
	{
		probes.GET("/health", h.Health.HealthCheck)
		probes.GET("/ready", h.Health.ReadinessCheck)
		probes.GET("/live", h.Health.LivenessCheck)
	}
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		tokens := v1.Group("/tokens")
		{
			tokens.GET("/:token/history", h.Analysis.GetTokenHistory)
			tokens.GET("/:token/correlated", h.Analysis.GetCorrelatedTokens)
			tokens.GET("/:token/related", h.Analysis.GetRelatedTokens)
		}

		v1.GET("/correlation", h.Analysis.GetCorrelation)
		v1.GET("/leadlag", h.Analysis.GetLeadLag)

		sectors := v1.Group("/sectors")
		{
			sectors.GET("", h.Analysis.GetSectors)
			sectors.GET("/:sector", h.Analysis.GetSector)
		}

		kols := v1.Group("/kols")
		{
			kols.GET("/leaderboard", h.KOL.GetLeaderboard)
			kols.GET("/:handle/stats", h.KOL.GetStats)
			kols.GET("/:handle/history", h.KOL.GetHistory)
			kols.GET("/:handle/score", h.KOL.GetScore)
			kols.GET("/:handle/weight", h.KOL.GetWeight)
			kols.GET("/:handle/ignore", h.KOL.GetIgnore)
			kols.POST("/:handle/calls", admin.RequireAdminAuth(), h.Admin.RecordCall)
		}

		v1.GET("/sources/performance", h.KOL.GetSourcePerformance)

		write := v1.Group("", admin.RequireAdminAuth())
		{
			write.POST("/prices", h.Admin.RecordPrice)
			write.POST("/calls/:id/price", h.Admin.UpdateCallPrice)
			write.POST("/signals", h.Admin.IngestSignal)
			write.POST("/signals/:id/outcome", h.Admin.RecordOutcome)
			write.POST("/refresh", h.Admin.TriggerRefresh)
			write.POST("/auth/token", h.Admin.IssueToken)
		}
	}
}
