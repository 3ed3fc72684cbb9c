package api

import (
	"context"
	"fmt"

	metricsHandlers "photoai/api/handlers/metrics"
	visionHandlers "photoai/api/handlers/vision"
	"photoai/internal/abtest"
	"photoai/internal/ai"
	"photoai/internal/config"
	"photoai/internal/engine"
	"photoai/internal/logger"
	"photoai/internal/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用容器，集中管理所有服务依赖
type AppContainer struct {
	// 基础设施
	DB     *gorm.DB
	Config *config.Config

	// AI 调用链
	Registry  *ai.Registry
	Ledger    *ai.Ledger
	Collector *metrics.Collector
	Engine    *engine.Engine

	// 房间分类实验
	Router     *abtest.Router
	Tracker    *abtest.Tracker
	Classifier *abtest.Classifier

	// 查询服务，未配置数据库时为 nil
	MetricsService *metrics.Service
}

// Handlers 所有 HTTP Handler
type Handlers struct {
	Metrics *metricsHandlers.Handler
	Vision  *visionHandlers.Handler
}

// BuildContainer 按配置组装依赖；db 可为 nil，此时只写 JSONL
func BuildContainer(cfg *config.Config, db *gorm.DB) (*AppContainer, error) {
	c := &AppContainer{DB: db, Config: cfg}

	if cfg.AI.PricingFile != "" {
		n, err := ai.LoadPricingOverrides(cfg.AI.PricingFile)
		if err != nil {
			return nil, fmt.Errorf("加载模型价格失败: %w", err)
		}
		logger.Info("已加载模型价格覆盖", zap.String("file", cfg.AI.PricingFile), zap.Int("models", n))
	}

	registry, err := ai.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		return nil, err
	}
	if len(registry.Providers()) == 0 {
		logger.Warn("未配置任何 AI 提供商，识别接口将返回 503")
	}
	c.Registry = registry
	c.Ledger = ai.NewLedger(cfg.Metrics.LedgerFile)

	var sinks []metrics.Sink
	if db != nil {
		sinks = append(sinks, metrics.NewGormSink(db))
		c.MetricsService = metrics.NewService(db)
	}
	if cfg.Metrics.Dir != "" {
		sinks = append(sinks, metrics.NewJSONLSink(cfg.Metrics.Dir))
	}
	c.Collector = metrics.NewCollector(metrics.CollectorConfig{
		Enabled:       cfg.Metrics.Enabled,
		QueueMax:      cfg.Metrics.QueueMax,
		BatchSize:     cfg.Metrics.BatchSize,
		FlushInterval: cfg.Metrics.FlushInterval(),
	}, sinks...)

	c.Engine = engine.New(registry, c.Ledger, c.Collector, engine.SettingsFromConfig(cfg.AI),
		engine.WithEstimator(newEstimator(cfg.AI.TokenEstimator)),
	)

	c.Router = abtest.NewRouter(cfg.Live())
	c.Tracker = abtest.NewTracker(c.Router)
	variantA, variantB := c.Engine.RoomClassifierVariants()
	c.Classifier = abtest.NewClassifier(c.Router, c.Tracker, c.Ledger, variantA, variantB)

	logger.Info("AI 调用链初始化完成",
		zap.Int("providers", len(registry.Providers())),
		zap.String("strategy", cfg.AI.ModelStrategy),
		zap.Int("sinks", len(sinks)),
		zap.Bool("ab_enabled", c.Router.IsEnabled()),
		zap.Int("ab_split", c.Router.Split()),
	)
	return c, nil
}

// newEstimator 按配置选择 Token 估算器，tiktoken 初始化失败时回退到字节估算
func newEstimator(kind string) ai.TokenEstimator {
	if kind != "tiktoken" {
		return ai.ByteEstimator{}
	}
	est, err := ai.NewTiktokenEstimator("gpt-4o")
	if err != nil {
		logger.Warn("初始化 tiktoken 失败，回退到字节估算", zap.Error(err))
		return ai.ByteEstimator{}
	}
	return est
}

// NewHandlers 创建所有 Handler
func NewHandlers(c *AppContainer) *Handlers {
	return &Handlers{
		Metrics: metricsHandlers.NewHandler(c.Ledger, c.Collector, c.MetricsService, c.Tracker),
		Vision:  visionHandlers.NewHandler(c.Engine, c.Classifier),
	}
}

// Start 启动后台任务
func (c *AppContainer) Start() {
	c.Collector.Start()
}

// Close 停止后台任务并排空遥测队列
func (c *AppContainer) Close(ctx context.Context) error {
	if err := c.Collector.Stop(ctx); err != nil {
		return fmt.Errorf("停止遥测采集器失败: %w", err)
	}
	return nil
}
