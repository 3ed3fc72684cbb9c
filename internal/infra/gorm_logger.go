package infra

import (
	"context"
	"errors"
	"time"

	"photoai/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap）
// 请求上下文中带有 trace id 时一并输出
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) with(ctx context.Context) *zap.Logger {
	if traceID := logger.GetTraceID(ctx); traceID != "" {
		return l.ZapLogger.With(zap.String("trace_id", traceID))
	}
	return l.ZapLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		l.with(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		l.with(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		l.with(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志；批量写入的 SQL 很长，只在 Info 级别输出正文
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := l.with(ctx)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}
	if l.LogLevel >= gormLogger.Info {
		fields = append(fields, zap.String("sql", sql))
	}

	switch {
	case err != nil && (!errors.Is(err, gormLogger.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		log.Warn("SQL 慢查询", fields...)
	case l.LogLevel >= gormLogger.Info:
		log.Debug("SQL 执行", fields...)
	}
}
