package metrics

import (
	"net/http"
	"strconv"
	"time"

	"photoai/internal/abtest"
	"photoai/internal/ai"
	"photoai/internal/metrics"

	"github.com/gin-gonic/gin"
)

// defaultSummaryWindow 未指定 since 时的汇总窗口
const defaultSummaryWindow = 24 * time.Hour

// Handler AI 调用遥测只读接口
type Handler struct {
	ledger    *ai.Ledger
	collector *metrics.Collector
	service   *metrics.Service
	tracker   *abtest.Tracker
}

// NewHandler 创建 Handler；service 为 nil 时落盘查询接口返回 503
func NewHandler(ledger *ai.Ledger, collector *metrics.Collector, service *metrics.Service, tracker *abtest.Tracker) *Handler {
	return &Handler{
		ledger:    ledger,
		collector: collector,
		service:   service,
		tracker:   tracker,
	}
}

// parseSince 解析 since 参数(RFC3339)，缺省返回 def
func parseSince(c *gin.Context, def *time.Time) (*time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since 参数必须是 RFC3339 时间"})
		return nil, false
	}
	return &t, true
}

// GetLedger 获取同步台账
// @Summary 获取 AI 调用台账
// @Description 返回进程内全部逻辑调用记录及聚合统计
// @Tags AIMetrics
// @Produce json
// @Success 200 {object} ai.LedgerSnapshot
// @Router /api/ai/metrics [get]
func (h *Handler) GetLedger(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Snapshot())
}

// GetQueue 获取采集队列状态
// @Summary 获取遥测队列状态
// @Tags AIMetrics
// @Produce json
// @Success 200 {object} metrics.CollectorStats
// @Router /api/ai/metrics/queue [get]
func (h *Handler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Stats())
}

// FlushQueue 立即刷盘
// @Summary 立即刷写遥测队列
// @Tags AIMetrics
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/ai/metrics/flush [post]
func (h *Handler) FlushQueue(c *gin.Context) {
	n := h.collector.Flush(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"flushed": n, "queue_length": h.collector.Len()})
}

// GetSummary 获取落盘遥测汇总
// @Summary 获取 AI 调用成本汇总
// @Description 按提供商/模型/操作分组，默认统计最近 24 小时
// @Tags AIMetrics
// @Produce json
// @Param since query string false "开始时间(RFC3339)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/ai/metrics/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置遥测数据库"})
		return
	}

	def := time.Now().Add(-defaultSummaryWindow)
	since, ok := parseSince(c, &def)
	if !ok {
		return
	}

	rows, err := h.service.Summary(c.Request.Context(), *since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"since": since.UTC(),
		"items": rows,
	})
}

// GetRecent 获取最近的落盘记录
// @Summary 获取最近的 AI 调用记录
// @Tags AIMetrics
// @Produce json
// @Param limit query int false "条数(1-500)"
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]string
// @Router /api/ai/metrics/recent [get]
func (h *Handler) GetRecent(c *gin.Context) {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置遥测数据库"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	records, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": records})
}

// GetRoomClassifierStats 获取房间分类实验统计
// @Summary 获取房间分类 A/B 统计
// @Tags AIMetrics
// @Produce json
// @Param since query string false "开始时间(RFC3339)"
// @Success 200 {object} abtest.RoomClassifierStats
// @Failure 400 {object} map[string]string
// @Router /api/ai/room-classifier/stats [get]
func (h *Handler) GetRoomClassifierStats(c *gin.Context) {
	since, ok := parseSince(c, nil)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.tracker.Stats(since))
}
