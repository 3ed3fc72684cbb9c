package metrics

import (
	"encoding/json"
	"time"

	"photoai/pkg/types"

	"gorm.io/datatypes"
)

// AiMetricRecord ai_metrics 表的一行，对应一条遥测事件
// 列名沿用驼峰写法，与既有报表查询保持一致
type AiMetricRecord struct {
	ID        string         `json:"id" gorm:"column:id;primaryKey;size:36"`
	Ts        time.Time      `json:"ts" gorm:"column:ts;not null;index"`
	Provider  string         `json:"provider" gorm:"column:provider;size:32;not null;index"`
	Model     string         `json:"model" gorm:"column:model;size:128"`
	Operation string         `json:"operation" gorm:"column:operation;size:64;not null;index"`
	LatencyMs int64          `json:"latencyMs" gorm:"column:latencyMs;not null"`
	Success   bool           `json:"success" gorm:"column:success;not null"`
	ErrorType *string        `json:"errorType,omitempty" gorm:"column:errorType;size:32"`
	Retries   int            `json:"retries" gorm:"column:retries;not null;default:0"`
	TokensIn  *int           `json:"tokensIn,omitempty" gorm:"column:tokensIn"`
	TokensOut *int           `json:"tokensOut,omitempty" gorm:"column:tokensOut"`
	CostUSD   *float64       `json:"costUsd,omitempty" gorm:"column:costUsd"`
	Meta      datatypes.JSON `json:"meta,omitempty" gorm:"column:meta"`
}

// TableName 指定表名
func (AiMetricRecord) TableName() string {
	return "ai_metrics"
}

// NewAiMetricRecord 将事件转换为数据库行
// 输入/输出字节数不在表结构中，合并进 meta 保留
func NewAiMetricRecord(e types.AiMetricEvent) AiMetricRecord {
	r := AiMetricRecord{
		ID:        e.ID,
		Ts:        time.UnixMilli(e.Timestamp).UTC(),
		Provider:  string(e.Provider),
		Model:     e.Model,
		Operation: e.Operation,
		LatencyMs: e.LatencyMs,
		Success:   e.Success,
		Retries:   e.RetryCount,
		TokensIn:  e.TokensIn,
		TokensOut: e.TokensOut,
		CostUSD:   e.CostUSD,
	}
	if code := e.ErrorType(); code != "" {
		r.ErrorType = &code
	}

	meta := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["inputBytes"] = e.InputBytes
	meta["outputBytes"] = e.OutputBytes
	if data, err := json.Marshal(meta); err == nil {
		r.Meta = datatypes.JSON(data)
	}
	return r
}
