package ai

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"photoai/internal/logger"

	"go.uber.org/zap"
)

// ledgerFileMaxEntries 镜像文件只保留最近的条目数
const ledgerFileMaxEntries = 1000

// AIMetric 同步台账中的单次逻辑调用记录
type AIMetric struct {
	Timestamp string  `json:"timestamp"` // ISO-8601
	Operation string  `json:"operation"`
	LatencyMs int64   `json:"latency_ms"`
	Success   bool    `json:"success"`
	Model     string  `json:"model"`
	InputSize int     `json:"input_size"`
	ErrorCode *string `json:"error_code,omitempty"`
}

// OperationStats 单个操作的统计
type OperationStats struct {
	Total        int     `json:"total"`
	Success      int     `json:"success"`
	Failed       int     `json:"failed"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// MetricsStats 台账聚合统计
type MetricsStats struct {
	Total        int                       `json:"total"`
	Success      int                       `json:"success"`
	Failed       int                       `json:"failed"`
	AvgLatencyMs float64                   `json:"avg_latency_ms"`
	P95LatencyMs float64                   `json:"p95_latency_ms"`
	ByOperation  map[string]OperationStats `json:"by_operation"`
}

// LedgerSnapshot 台账全量读取结果
type LedgerSnapshot struct {
	Metrics []AIMetric   `json:"metrics"`
	Stats   MetricsStats `json:"stats"`
}

// Ledger 进程内同步指标台账
// 显式构造并注入，只追加；可选镜像到 JSON 文件（最近 1000 条）
type Ledger struct {
	mu      sync.RWMutex
	entries []AIMetric

	filePath string
	fileMu   sync.Mutex
}

// NewLedger 创建台账，filePath 为空时不落盘
func NewLedger(filePath string) *Ledger {
	return &Ledger{filePath: filePath}
}

// Record 追加一条记录
func (l *Ledger) Record(m AIMetric) {
	l.mu.Lock()
	l.entries = append(l.entries, m)
	var tail []AIMetric
	if l.filePath != "" {
		start := len(l.entries) - ledgerFileMaxEntries
		if start < 0 {
			start = 0
		}
		tail = append([]AIMetric(nil), l.entries[start:]...)
	}
	l.mu.Unlock()

	if tail != nil {
		l.persist(tail)
	}
}

// persist 覆盖写入镜像文件，失败只记日志
func (l *Ledger) persist(tail []AIMetric) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	data, err := json.MarshalIndent(tail, "", "  ")
	if err != nil {
		logger.Warn("序列化 AI 指标台账失败", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o755); err != nil {
		logger.Warn("创建 AI 指标台账目录失败", zap.String("path", l.filePath), zap.Error(err))
		return
	}
	tmp := l.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warn("写入 AI 指标台账失败", zap.String("path", l.filePath), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, l.filePath); err != nil {
		logger.Warn("替换 AI 指标台账失败", zap.String("path", l.filePath), zap.Error(err))
	}
}

// Metrics 返回全部记录的副本
func (l *Ledger) Metrics() []AIMetric {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]AIMetric(nil), l.entries...)
}

// Stats 计算聚合统计
func (l *Ledger) Stats() MetricsStats {
	return computeStats(l.Metrics())
}

// Snapshot 返回全量记录与统计（供运维读取接口使用）
func (l *Ledger) Snapshot() LedgerSnapshot {
	entries := l.Metrics()
	return LedgerSnapshot{Metrics: entries, Stats: computeStats(entries)}
}

// Reset 清空台账，仅供测试使用
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

func computeStats(entries []AIMetric) MetricsStats {
	stats := MetricsStats{ByOperation: make(map[string]OperationStats)}
	if len(entries) == 0 {
		return stats
	}

	latencySum := make(map[string]int64)
	latencies := make([]float64, 0, len(entries))
	var total int64
	for _, m := range entries {
		stats.Total++
		op := stats.ByOperation[m.Operation]
		op.Total++
		if m.Success {
			stats.Success++
			op.Success++
		} else {
			stats.Failed++
			op.Failed++
		}
		stats.ByOperation[m.Operation] = op
		latencySum[m.Operation] += m.LatencyMs
		total += m.LatencyMs
		latencies = append(latencies, float64(m.LatencyMs))
	}

	stats.AvgLatencyMs = float64(total) / float64(stats.Total)
	for name, op := range stats.ByOperation {
		op.AvgLatencyMs = float64(latencySum[name]) / float64(op.Total)
		stats.ByOperation[name] = op
	}

	sort.Float64s(latencies)
	idx := int(float64(len(latencies)-1) * 95 / 100)
	stats.P95LatencyMs = latencies[idx]
	return stats
}
