package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"photoai/internal/logger"
	"photoai/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// dropWarnEvery 首次丢弃之后，每丢弃这么多条才告警一次
const dropWarnEvery = 100

// Sink 遥测落盘目标
type Sink interface {
	// Name 用于日志与失败计数
	Name() string

	// Write 写入一批事件，错误由 Collector 记录，不会重试
	Write(ctx context.Context, events []types.AiMetricEvent) error
}

// CollectorConfig 采集器配置
type CollectorConfig struct {
	Enabled       bool
	QueueMax      int
	BatchSize     int
	FlushInterval time.Duration
}

// CollectorStats 采集器运行状态
type CollectorStats struct {
	Enabled      bool             `json:"enabled"`
	QueueLength  int              `json:"queue_length"`
	QueueMax     int              `json:"queue_max"`
	Enqueued     int64            `json:"enqueued"`
	Dropped      int64            `json:"dropped"`
	Flushed      int64            `json:"flushed"`
	SinkFailures map[string]int64 `json:"sink_failures"`
}

// Collector 有界队列 + 批量异步落盘
// Enqueue 永不阻塞在 I/O 上，队列满即丢弃；落盘失败只记录不传播
type Collector struct {
	cfg   CollectorConfig
	sinks []Sink

	mu    sync.Mutex
	queue []types.AiMetricEvent

	flushing atomic.Bool
	kick     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
	started   atomic.Bool

	enqueued     atomic.Int64
	dropped      atomic.Int64
	flushed      atomic.Int64
	sinkFailures map[string]*atomic.Int64
}

// NewCollector 创建采集器
func NewCollector(cfg CollectorConfig, sinks ...Sink) *Collector {
	if cfg.QueueMax <= 0 {
		cfg.QueueMax = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	failures := make(map[string]*atomic.Int64, len(sinks))
	for _, s := range sinks {
		failures[s.Name()] = &atomic.Int64{}
	}

	return &Collector{
		cfg:          cfg,
		sinks:        sinks,
		kick:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		sinkFailures: failures,
	}
}

// Enqueue 实现 ai.EventSink
// 返回 false 表示事件被丢弃（未启用或队列已满）
func (c *Collector) Enqueue(event types.AiMetricEvent) bool {
	if !c.cfg.Enabled {
		return false
	}
	observeEvent(event)

	c.mu.Lock()
	if len(c.queue) >= c.cfg.QueueMax {
		c.mu.Unlock()
		n := c.dropped.Add(1)
		CollectorDroppedTotal.Inc()
		if n == 1 || n%dropWarnEvery == 0 {
			logger.Named("collector").Warn("AI 遥测队列已满，丢弃事件",
				zap.Int("queue_max", c.cfg.QueueMax),
				zap.Int64("dropped_total", n),
				zap.String("operation", event.Operation),
			)
		}
		return false
	}
	c.queue = append(c.queue, event)
	size := len(c.queue)
	c.mu.Unlock()

	c.enqueued.Add(1)
	CollectorQueueLength.Set(float64(size))
	if size >= c.cfg.BatchSize {
		c.signal()
	}
	return true
}

// signal 非阻塞地唤醒后台循环
func (c *Collector) signal() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Flush 取出至多 BatchSize 条事件并发写入所有落盘目标，返回本次处理条数
// 同一时刻只允许一个 Flush 执行，重入调用直接返回 0
func (c *Collector) Flush(ctx context.Context) int {
	if !c.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer c.flushing.Store(false)

	c.mu.Lock()
	n := min(len(c.queue), c.cfg.BatchSize)
	if n == 0 {
		c.mu.Unlock()
		return 0
	}
	batch := make([]types.AiMetricEvent, n)
	copy(batch, c.queue[:n])
	c.queue = c.queue[n:]
	remaining := len(c.queue)
	c.mu.Unlock()
	CollectorQueueLength.Set(float64(remaining))

	var g errgroup.Group
	for _, s := range c.sinks {
		g.Go(func() error {
			if err := s.Write(ctx, batch); err != nil {
				c.sinkFailures[s.Name()].Add(1)
				CollectorSinkFailuresTotal.WithLabelValues(s.Name()).Inc()
				logger.Named("collector").Error("AI 遥测落盘失败",
					zap.String("sink", s.Name()),
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.flushed.Add(int64(n))
	CollectorFlushedTotal.Add(float64(n))

	if remaining > 0 {
		c.signal()
	}
	return n
}

// Start 启动后台定时刷盘，重复调用无效
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.loop()
	})
}

func (c *Collector) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Flush(context.Background())
		case <-c.kick:
			c.Flush(context.Background())
		}
	}
}

// Stop 停止后台循环并排空队列
func (c *Collector) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.started.Load() {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.Drain(ctx)
}

// Drain 反复刷盘直到队列为空
func (c *Collector) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Flush(ctx) == 0 {
			if c.Len() == 0 {
				return nil
			}
			// 另一个 Flush 正在进行，稍后再试
			t := time.NewTimer(5 * time.Millisecond)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}
	}
}

// Len 当前队列长度
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats 返回运行状态快照
func (c *Collector) Stats() CollectorStats {
	failures := make(map[string]int64, len(c.sinkFailures))
	for name, n := range c.sinkFailures {
		failures[name] = n.Load()
	}
	return CollectorStats{
		Enabled:      c.cfg.Enabled,
		QueueLength:  c.Len(),
		QueueMax:     c.cfg.QueueMax,
		Enqueued:     c.enqueued.Load(),
		Dropped:      c.dropped.Load(),
		Flushed:      c.flushed.Load(),
		SinkFailures: failures,
	}
}

// Reset 清空队列与计数，仅供测试使用
func (c *Collector) Reset() {
	c.mu.Lock()
	c.queue = nil
	c.mu.Unlock()

	c.enqueued.Store(0)
	c.dropped.Store(0)
	c.flushed.Store(0)
	for _, n := range c.sinkFailures {
		n.Store(0)
	}
	CollectorQueueLength.Set(0)
}

// observeEvent 更新 Prometheus 指标
func observeEvent(e types.AiMetricEvent) {
	provider := string(e.Provider)
	status := "success"
	if !e.Success {
		status = "failed"
		AIErrorsTotal.WithLabelValues(provider, e.ErrorType()).Inc()
	}

	AICallsTotal.WithLabelValues(provider, e.Model, e.Operation, status).Inc()
	AICallDuration.WithLabelValues(provider, e.Operation).Observe(float64(e.LatencyMs) / 1000)

	if e.TokensIn != nil && *e.TokensIn > 0 {
		AITokensTotal.WithLabelValues(provider, e.Model, "input").Add(float64(*e.TokensIn))
	}
	if e.TokensOut != nil && *e.TokensOut > 0 {
		AITokensTotal.WithLabelValues(provider, e.Model, "output").Add(float64(*e.TokensOut))
	}
	if e.CostUSD != nil && *e.CostUSD > 0 {
		AICostUSDTotal.WithLabelValues(provider, e.Model).Add(*e.CostUSD)
	}
}

