package metrics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SummaryRow 按提供商/模型/操作分组的汇总
type SummaryRow struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Operation    string  `json:"operation"`
	Calls        int64   `json:"calls"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Retries      int64   `json:"retries"`
	TokensIn     int64   `json:"tokens_in"`
	TokensOut    int64   `json:"tokens_out"`
	CostUSD      float64 `json:"cost_usd"`
}

// Service 已落盘遥测的查询服务
type Service struct {
	db *gorm.DB
}

// NewService 创建查询服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Summary 统计 since 之后的调用，按成本降序
func (s *Service) Summary(ctx context.Context, since time.Time) ([]SummaryRow, error) {
	var rows []SummaryRow

	err := s.db.WithContext(ctx).
		Model(&AiMetricRecord{}).
		Select(`
			provider,
			model,
			operation,
			COUNT(*) AS calls,
			SUM(CASE WHEN success THEN 0 ELSE 1 END) AS failures,
			AVG("latencyMs") AS avg_latency_ms,
			COALESCE(SUM(retries), 0) AS retries,
			COALESCE(SUM("tokensIn"), 0) AS tokens_in,
			COALESCE(SUM("tokensOut"), 0) AS tokens_out,
			COALESCE(SUM("costUsd"), 0) AS cost_usd
		`).
		Where("ts >= ?", since.UTC()).
		Group("provider, model, operation").
		Order("cost_usd DESC, calls DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询 AI 调用汇总失败: %w", err)
	}
	return rows, nil
}

// Recent 返回最近的调用记录
func (s *Service) Recent(ctx context.Context, limit int) ([]AiMetricRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var records []AiMetricRecord
	if err := s.db.WithContext(ctx).
		Order("ts DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询 AI 调用记录失败: %w", err)
	}
	return records, nil
}
