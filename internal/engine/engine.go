package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"photoai/internal/ai"
	"photoai/internal/config"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 模型选择策略
const (
	StrategyClaudeFirst = "claude-first"
	StrategyOpenAIFirst = "openai-first"
	StrategyRoundRobin  = "round-robin"
)

// 操作名，同时用作台账与遥测的 operation 字段
const (
	OpAnalyzePhoto      = "analyzePhoto"
	OpDetectRoom        = "detectRoom"
	OpAnalyzeByRoomType = "analyzeByRoomType"
)

// ErrNoProvider 没有任何可用的提供商
var ErrNoProvider = errors.New("no AI provider configured")

// Settings 进程级可靠性参数，启动时从配置读取一次
type Settings struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	ModelStrategy string
}

// SettingsFromConfig 从 AI 配置构建 Settings
func SettingsFromConfig(cfg config.AIConfig) Settings {
	return Settings{
		Timeout:       cfg.Timeout(),
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay(),
		ModelStrategy: cfg.ModelStrategy,
	}
}

// Options 单次调用参数，零值使用 Settings 中的默认值
type Options struct {
	Provider   types.Provider
	TimeoutMs  int
	MaxRetries int
	RoomType   string
	UserID     string
}

// Engine AI 调用门面
// 组合顺序：台账(外层) → 重试 → 遥测事件(每次尝试) → 超时(内层) → 适配器
type Engine struct {
	registry  aiinterface.ProviderRegistry
	ledger    *ai.Ledger
	sink      ai.EventSink
	settings  Settings
	estimator ai.TokenEstimator
	tracer    trace.Tracer
	rr        atomic.Uint64
}

// Option 引擎可选项
type Option func(*Engine)

// WithEstimator 注入 Token 估算器
func WithEstimator(est ai.TokenEstimator) Option {
	return func(e *Engine) { e.estimator = est }
}

// WithTracer 注入 Tracer，默认使用全局 TracerProvider
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// New 创建引擎；ledger 与 sink 可为 nil
func New(registry aiinterface.ProviderRegistry, ledger *ai.Ledger, sink ai.EventSink, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		ledger:   ledger,
		sink:     sink,
		settings: settings,
		tracer:   otel.Tracer("photoai/internal/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnalyzePhoto 识别单张照片中的物品
func (e *Engine) AnalyzePhoto(ctx context.Context, photo []byte, opts Options) (*aiinterface.PhotoAnalysis, error) {
	analyzeOpts := aiinterface.AnalyzeOptions{RoomType: opts.RoomType, UserID: opts.UserID}
	return run(ctx, e, OpAnalyzePhoto, opts, e.timeout(opts, 1), photo, len(photo),
		func(ctx context.Context, p aiinterface.VisionProvider, in []byte) (*aiinterface.PhotoAnalysis, error) {
			return p.AnalyzePhoto(ctx, in, analyzeOpts)
		})
}

// DetectRoom 识别照片所属房间类型
func (e *Engine) DetectRoom(ctx context.Context, photo []byte, opts Options) (string, error) {
	return run(ctx, e, OpDetectRoom, opts, e.timeout(opts, 1), photo, len(photo),
		func(ctx context.Context, p aiinterface.VisionProvider, in []byte) (string, error) {
			return p.DetectRoomType(ctx, in)
		})
}

// AnalyzeByRoomType 按房间类型批量分析，默认超时为基础超时的两倍
func (e *Engine) AnalyzeByRoomType(ctx context.Context, roomType string, photos []aiinterface.PhotoInput, opts Options) (*aiinterface.RoomAnalysis, error) {
	size := 0
	for _, p := range photos {
		size += len(p.Data)
	}
	analyzeOpts := aiinterface.AnalyzeOptions{RoomType: roomType, UserID: opts.UserID}
	return run(ctx, e, OpAnalyzeByRoomType, opts, e.timeout(opts, 2), photos, size,
		func(ctx context.Context, p aiinterface.VisionProvider, in []aiinterface.PhotoInput) (*aiinterface.RoomAnalysis, error) {
			return p.AnalyzeRoom(ctx, roomType, in, analyzeOpts)
		})
}

func (e *Engine) timeout(opts Options, factor int) time.Duration {
	if opts.TimeoutMs > 0 {
		return time.Duration(opts.TimeoutMs) * time.Millisecond
	}
	return e.settings.Timeout * time.Duration(factor)
}

func (e *Engine) maxRetries(opts Options) int {
	if opts.MaxRetries > 0 {
		return opts.MaxRetries
	}
	return e.settings.MaxRetries
}

// resolve 按显式指定或模型策略选出适配器
func (e *Engine) resolve(opts Options) (aiinterface.VisionProvider, error) {
	if opts.Provider != "" {
		if !opts.Provider.Valid() {
			return nil, fmt.Errorf("%w: %s", ai.ErrUnknownProvider, opts.Provider)
		}
		p, ok := e.registry.Get(opts.Provider)
		if !ok {
			return nil, fmt.Errorf("%w: %s 未配置", ai.ErrUnknownProvider, opts.Provider)
		}
		return p, nil
	}

	switch e.settings.ModelStrategy {
	case StrategyRoundRobin:
		registered := e.registry.Providers()
		if len(registered) == 0 {
			return nil, ErrNoProvider
		}
		idx := (e.rr.Add(1) - 1) % uint64(len(registered))
		if p, ok := e.registry.Get(registered[idx]); ok {
			return p, nil
		}
		return nil, ErrNoProvider
	case StrategyOpenAIFirst:
		return e.firstOf(types.ProviderOpenAI, types.ProviderAnthropic)
	default:
		return e.firstOf(types.ProviderAnthropic, types.ProviderOpenAI)
	}
}

func (e *Engine) firstOf(order ...types.Provider) (aiinterface.VisionProvider, error) {
	for _, name := range order {
		if p, ok := e.registry.Get(name); ok {
			return p, nil
		}
	}
	return nil, ErrNoProvider
}

// run 执行一次逻辑调用：一个 span、一条台账记录，每次尝试一条遥测事件
func run[In, Out any](
	ctx context.Context,
	e *Engine,
	operation string,
	opts Options,
	timeout time.Duration,
	input In,
	inputSize int,
	call func(ctx context.Context, p aiinterface.VisionProvider, in In) (Out, error),
) (Out, error) {
	ctx, span := e.tracer.Start(ctx, "engine."+operation)
	defer span.End()

	provider, resolveErr := e.resolve(opts)
	model := ""
	if provider != nil {
		model = provider.Model()
		span.SetAttributes(
			attribute.String("ai.provider", string(provider.Name())),
			attribute.String("ai.model", model),
		)
	}

	out, err := ai.WithMetrics(ctx, e.ledger, operation, model, inputSize, func(ctx context.Context) (Out, error) {
		if resolveErr != nil {
			var zero Out
			return zero, resolveErr
		}

		return ai.WithRetries(ctx, e.maxRetries(opts), e.settings.RetryDelay, operation, func(ctx context.Context, attempt int) (Out, error) {
			span.SetAttributes(attribute.Int("ai.attempt", attempt+1))

			metricOpts := ai.AiMetricsOptions{
				Provider:   provider.Name(),
				Model:      model,
				Operation:  operation,
				RetryCount: attempt,
				Estimator:  e.estimator,
				Metadata:   callMetadata(opts, attempt),
			}
			return ai.WithAiMetrics(ctx, e.sink, metricOpts, input, func(ctx context.Context, in In) (Out, error) {
				return ai.WithTimeout(ctx, timeout, func(ctx context.Context) (Out, error) {
					return call(ctx, provider, in)
				})
			})
		})
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ai.ClassifyError(err)))
	}
	return out, err
}

func callMetadata(opts Options, attempt int) map[string]any {
	meta := map[string]any{"attempt": attempt + 1}
	if opts.RoomType != "" {
		meta["roomType"] = opts.RoomType
	}
	if opts.UserID != "" {
		meta["userId"] = opts.UserID
	}
	return meta
}
