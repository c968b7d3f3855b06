package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/auth"
	"resumeforge/internal/config"
	"resumeforge/internal/metrics"
)

// Deps 汇总路由需要的外部依赖。RateCounter 为 nil 时不限流。
type Deps struct {
	Service       ResumeService
	Verifier      auth.Verifier
	Notifications Subscriber
	RateCounter   RateCounter
	Logger        *slog.Logger

	now func() time.Time
}

// NewRouter 构建 Gin 路由引擎：/api 下为业务接口，其余路径交给前端单页应用。
func NewRouter(cfg config.APIConfig, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
		middleware.CanonicalHostMiddleware(cfg.CanonicalHost),
		middleware.CORSMiddleware(cfg.Origins()),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsSecret != "" {
		router.GET("/metrics", middleware.MetricsSecretMiddleware(cfg.MetricsSecret), gin.WrapH(promhttp.Handler()))
	}

	RegisterRoutes(router.Group("/api"), cfg, deps, logger)
	router.NoRoute(spaHandler(cfg.StaticDir))

	return router
}

// RegisterRoutes 注册 /api 下的路由。
func RegisterRoutes(api *gin.RouterGroup, cfg config.APIConfig, deps Deps, logger *slog.Logger) {
	resumeHandler := NewResumeHandler(deps.Service)
	templateHandler := NewTemplateHandler()
	wsHandler := NewWsHandler(deps.Notifications, deps.Verifier, logger, cfg.Origins())
	authMiddleware := middleware.AuthMiddleware(deps.Verifier)
	now := deps.now
	if now == nil {
		now = time.Now
	}
	renderLimit := renderRateLimit(deps.RateCounter, cfg.RenderPerMinute, now)

	api.GET("/ws", wsHandler.HandleConnection)

	api.GET("/templates", templateHandler.ListTemplates)
	templateGroup := api.Group("/template")
	{
		templateGroup.GET("/:id", templateHandler.GetTemplate)
		templateGroup.GET("/:id/download", templateHandler.DownloadTemplate)
	}

	resumeGroup := api.Group("/resumes")
	resumeGroup.Use(authMiddleware)
	{
		resumeGroup.POST("/create", resumeHandler.CreateResume)
		resumeGroup.POST("", resumeHandler.SaveResume)
		resumeGroup.GET("", resumeHandler.ListResumes)
		resumeGroup.GET("/count", resumeHandler.CountResumes)
		resumeGroup.GET("/:id", resumeHandler.GetResume)
		resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
		resumeGroup.PATCH("/:id", resumeHandler.RenameResume)
		resumeGroup.POST("/:id/duplicate", resumeHandler.DuplicateResume)
		resumeGroup.POST("/:id/pdf", renderLimit, resumeHandler.RenderPDF)
		resumeGroup.POST("/:id/thumbnail", renderLimit, resumeHandler.GenerateThumbnail)
	}

	userGroup := api.Group("/user")
	userGroup.Use(authMiddleware)
	{
		userGroup.GET("/preferences", resumeHandler.GetPreferences)
		userGroup.POST("/preferences", resumeHandler.UpdatePreferences)
	}
}
