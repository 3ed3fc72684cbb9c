package ai

import (
	"context"
	"encoding/json"
	"time"

	"photoai/pkg/types"

	"github.com/google/uuid"
)

// EventSink 遥测事件接收方（由 metrics.Collector 实现）
// Enqueue 必须非阻塞，队列满时直接丢弃
type EventSink interface {
	Enqueue(event types.AiMetricEvent) bool
}

// AiMetricsOptions 单次调用的遥测元信息
type AiMetricsOptions struct {
	Provider   types.Provider
	Model      string
	Operation  string
	RetryCount int
	Estimator  TokenEstimator // 为空时按字节数/4 估算
	Metadata   map[string]any
}

// WithAiMetrics 包装单参数 AI 调用并异步上报一条遥测事件
// 返回值与错误原样透传，事件在 defer 中入队，绝不影响调用结果
func WithAiMetrics[In, Out any](ctx context.Context, sink EventSink, opts AiMetricsOptions, input In, fn func(ctx context.Context, in In) (Out, error)) (out Out, err error) {
	if sink == nil {
		return fn(ctx, input)
	}

	start := time.Now()
	inputBytes := payloadSize(input)

	defer func() {
		event := types.AiMetricEvent{
			ID:         uuid.NewString(),
			Timestamp:  start.UnixMilli(),
			Provider:   opts.Provider,
			Model:      opts.Model,
			Operation:  opts.Operation,
			Success:    err == nil,
			LatencyMs:  time.Since(start).Milliseconds(),
			RetryCount: opts.RetryCount,
			InputBytes: inputBytes,
			Metadata:   opts.Metadata,
		}

		tokensIn := estimatePayloadTokens(opts.Estimator, input, inputBytes)
		tokensOut := 0
		if err == nil {
			event.OutputBytes = payloadSize(out)
			tokensOut = estimatePayloadTokens(opts.Estimator, out, event.OutputBytes)
		} else {
			code := ClassifyError(err)
			event.ErrorCode = &code
		}
		cost := EstimateCost(opts.Model, tokensIn, tokensOut)
		event.TokensIn = &tokensIn
		event.TokensOut = &tokensOut
		event.CostUSD = &cost

		sink.Enqueue(event)
	}()

	return fn(ctx, input)
}

// WrapAiMetrics 返回带遥测的函数，便于复用同一组选项
func WrapAiMetrics[In, Out any](sink EventSink, opts AiMetricsOptions, fn func(ctx context.Context, in In) (Out, error)) func(ctx context.Context, in In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		return WithAiMetrics(ctx, sink, opts, in, fn)
	}
}

func estimatePayloadTokens(estimator TokenEstimator, payload any, size int) int {
	if estimator != nil {
		return estimator.Estimate(payload)
	}
	return estimateTokensFromBytes(size)
}

// payloadSize 估算载荷字节数：二进制取长度，字符串取 UTF-8 字节数，其余取 JSON 长度
func payloadSize(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case []byte:
		return len(val)
	case string:
		return len(val)
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return 0
	}
	return len(data)
}
