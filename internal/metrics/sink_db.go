package metrics

import (
	"context"
	"fmt"

	"photoai/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSink 关系库落盘
// 一批事件写成一条 INSERT，整批成功或整批失败；主键冲突的行跳过
type GormSink struct {
	db *gorm.DB
}

// NewGormSink 创建数据库落盘目标
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Name 实现 Sink
func (s *GormSink) Name() string {
	return "db"
}

// Write 实现 Sink
func (s *GormSink) Write(ctx context.Context, events []types.AiMetricEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]AiMetricRecord, 0, len(events))
	for _, e := range events {
		records = append(records, NewAiMetricRecord(e))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&records, len(records)).Error
	if err != nil {
		return fmt.Errorf("写入 ai_metrics 失败: %w", err)
	}
	return nil
}
