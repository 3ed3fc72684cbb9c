package api

import (
	"photoai/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 创建 gin 路由
func SetupRouter(c *AppContainer) *gin.Engine {
	if mode := c.Config.Server.Mode; mode != "" {
		gin.SetMode(mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(c.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, NewHandlers(c))
	return router
}
