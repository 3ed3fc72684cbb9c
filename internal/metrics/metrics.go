package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoai_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// AI 调用指标（由 Collector 对每个上报事件观测，包括被丢弃的事件）
var (
	// AICallsTotal AI 调用次数
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_ai_calls_total",
			Help: "AI 调用总数",
		},
		[]string{"provider", "model", "operation", "status"},
	)

	// AICallDuration AI 调用耗时（秒）
	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photoai_ai_call_duration_seconds",
			Help:    "AI 调用耗时分布",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	// AIErrorsTotal 按错误分类统计
	AIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_ai_errors_total",
			Help: "AI 调用错误总数",
		},
		[]string{"provider", "error_type"},
	)

	// AITokensTotal 估算 Token 数
	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_ai_tokens_total",
			Help: "AI 调用估算 Token 总数",
		},
		[]string{"provider", "model", "direction"}, // direction: input, output
	)

	// AICostUSDTotal 估算成本（美元）
	AICostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_ai_cost_usd_total",
			Help: "AI 调用估算成本总额（美元）",
		},
		[]string{"provider", "model"},
	)
)

// 采集器自身指标
var (
	// CollectorQueueLength 当前队列长度
	CollectorQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photoai_metrics_queue_length",
			Help: "遥测队列当前长度",
		},
	)

	// CollectorDroppedTotal 队列满被丢弃的事件数
	CollectorDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photoai_metrics_dropped_total",
			Help: "队列已满被丢弃的遥测事件总数",
		},
	)

	// CollectorFlushedTotal 已刷出的事件数
	CollectorFlushedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photoai_metrics_flushed_total",
			Help: "已刷出的遥测事件总数",
		},
	)

	// CollectorSinkFailuresTotal 各落盘目标的写入失败次数
	CollectorSinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_metrics_sink_failures_total",
			Help: "遥测落盘失败次数",
		},
		[]string{"sink"},
	)
)

// A/B 实验指标
var (
	// RoomClassifierCallsTotal 房间分类器按变体统计
	RoomClassifierCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photoai_room_classifier_calls_total",
			Help: "房间分类器调用总数",
		},
		[]string{"variant", "status", "fallback"},
	)
)

// 数据库连接池指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photoai_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // open, in_use, idle
	)
)
