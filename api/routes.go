package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	aiGroup := router.Group("/api/ai")
	registerMetricsRoutes(aiGroup, h)
	registerVisionRoutes(aiGroup, h)
}

// registerMetricsRoutes 遥测只读接口
func registerMetricsRoutes(g *gin.RouterGroup, h *Handlers) {
	m := g.Group("/metrics")
	{
		m.GET("", h.Metrics.GetLedger)
		m.GET("/queue", h.Metrics.GetQueue)
		m.POST("/flush", h.Metrics.FlushQueue)
		m.GET("/summary", h.Metrics.GetSummary)
		m.GET("/recent", h.Metrics.GetRecent)
	}
	g.GET("/room-classifier/stats", h.Metrics.GetRoomClassifierStats)
}

// registerVisionRoutes 识别接口
func registerVisionRoutes(g *gin.RouterGroup, h *Handlers) {
	g.POST("/photos/analyze", h.Vision.AnalyzePhoto)
	g.POST("/photos/detect-room", h.Vision.DetectRoom)
	g.POST("/rooms/:roomType/analyze", h.Vision.AnalyzeRoom)
	g.POST("/room-classifier/classify", h.Vision.ClassifyRoom)
}
