package ai

import (
	"context"
	"time"

	"photoai/internal/logger"

	"go.uber.org/zap"
)

// Operation 可被包装的 AI 操作
type Operation[T any] func(ctx context.Context) (T, error)

// result 异步执行结果
type result[T any] struct {
	val T
	err error
}

// WithTimeout 让操作与计时器赛跑
// 计时器先到返回 ErrTimeout；落败的 goroutine 被放弃（不会阻塞，结果丢弃），
// 传入的 ctx 带截止时间，仅作为适配器的协作式取消提示。timeout <= 0 表示不限时。
func WithTimeout[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result[T], 1) // 带缓冲，落败方写入后即可退出
	go func() {
		val, err := op(opCtx)
		done <- result[T]{val: val, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// WithRetries 失败重试，最多 maxRetries+1 次
// 第 attempt 次失败后休眠 baseDelay * 2^attempt，无抖动；重试耗尽返回最后一次错误
func WithRetries[T any](ctx context.Context, maxRetries int, baseDelay time.Duration, opName string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var (
		val T
		err error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		val, err = fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if attempt == maxRetries {
			break
		}

		// 指数退避
		delay := baseDelay * time.Duration(1<<uint(attempt))
		logger.WithContext(ctx).Warn("AI 调用失败，准备重试",
			zap.String("operation", opName),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			return val, err
		}
	}

	logger.WithContext(ctx).Error("AI 调用重试耗尽",
		zap.String("operation", opName),
		zap.Int("attempts", maxRetries+1),
		zap.Error(err),
	)
	return val, err
}

// sleepContext 可被取消的休眠
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithMetrics 记录一次逻辑调用的耗时与成败
// 无论成功失败都只在 defer 中记录一次；错误原样返回
func WithMetrics[T any](ctx context.Context, ledger *Ledger, operation, model string, inputSize int, fn Operation[T]) (val T, err error) {
	if ledger == nil {
		return fn(ctx)
	}

	start := time.Now()
	defer func() {
		m := AIMetric{
			Timestamp: start.UTC().Format(time.RFC3339Nano),
			Operation: operation,
			LatencyMs: time.Since(start).Milliseconds(),
			Success:   err == nil,
			Model:     model,
			InputSize: inputSize,
		}
		if err != nil {
			code := err.Error()
			m.ErrorCode = &code
		}
		ledger.Record(m)
	}()

	return fn(ctx)
}
