package abtest

import (
	"strconv"
	"sync"
	"time"

	"photoai/internal/metrics"
)

// RoomClassifierMetric 房间分类器单次调用记录
type RoomClassifierMetric struct {
	Variant    Variant   `json:"variant"`
	Success    bool      `json:"success"`
	LatencyMs  int64     `json:"latency_ms"`
	RoomType   string    `json:"room_type,omitempty"`
	Confidence float64   `json:"confidence"`
	UserID     string    `json:"user_id,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	PhotoID    string    `json:"photo_id,omitempty"`
	Fallback   bool      `json:"fallback"` // B 失败后改用 A
	ErrorCode  *string   `json:"error_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// VariantStats 单个变体的聚合
type VariantStats struct {
	Count         int     `json:"count"`
	Success       int     `json:"success"`
	Errors        int     `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// FallbackStats 回退调用的聚合
type FallbackStats struct {
	Count        int     `json:"count"`
	Success      int     `json:"success"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// RoomClassifierStats 实验整体统计
type RoomClassifierStats struct {
	Total    int           `json:"total"`
	A        VariantStats  `json:"A"`
	B        VariantStats  `json:"B"`
	Fallback FallbackStats `json:"fallback"`
	Config   ABTestConfig  `json:"config"`
}

// Tracker 房间分类实验台账，只追加，按需聚合
type Tracker struct {
	router *Router

	mu      sync.RWMutex
	entries []RoomClassifierMetric
}

// NewTracker 创建台账；router 用于在统计结果中附带当前配置
func NewTracker(router *Router) *Tracker {
	return &Tracker{router: router}
}

// Record 追加一条记录，时间戳为空时取当前时间
func (t *Tracker) Record(m RoomClassifierMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.entries = append(t.entries, m)
	t.mu.Unlock()

	status := "success"
	if !m.Success {
		status = "failed"
	}
	metrics.RoomClassifierCallsTotal.WithLabelValues(string(m.Variant), status, strconv.FormatBool(m.Fallback)).Inc()
}

// Metrics 返回全部记录的副本
func (t *Tracker) Metrics() []RoomClassifierMetric {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]RoomClassifierMetric(nil), t.entries...)
}

// Stats 聚合 since 之后（含）的记录，since 为 nil 表示全部
// 回退记录单独统计，不计入任何变体
func (t *Tracker) Stats(since *time.Time) RoomClassifierStats {
	var (
		stats      RoomClassifierStats
		latency    = map[Variant]int64{}
		confidence = map[Variant]float64{}
		fbLatency  int64
	)

	for _, m := range t.Metrics() {
		if since != nil && m.Timestamp.Before(*since) {
			continue
		}
		stats.Total++

		if m.Fallback {
			stats.Fallback.Count++
			if m.Success {
				stats.Fallback.Success++
			}
			fbLatency += m.LatencyMs
			continue
		}

		vs := stats.variant(m.Variant)
		if vs == nil {
			continue
		}
		vs.Count++
		if m.Success {
			vs.Success++
		} else {
			vs.Errors++
		}
		latency[m.Variant] += m.LatencyMs
		confidence[m.Variant] += m.Confidence
	}

	for _, v := range []Variant{VariantA, VariantB} {
		vs := stats.variant(v)
		if vs.Count > 0 {
			vs.AvgLatencyMs = float64(latency[v]) / float64(vs.Count)
			vs.AvgConfidence = confidence[v] / float64(vs.Count)
		}
	}
	if stats.Fallback.Count > 0 {
		stats.Fallback.AvgLatencyMs = float64(fbLatency) / float64(stats.Fallback.Count)
	}

	if t.router != nil {
		stats.Config = t.router.Config()
	}
	return stats
}

func (s *RoomClassifierStats) variant(v Variant) *VariantStats {
	switch v {
	case VariantA:
		return &s.A
	case VariantB:
		return &s.B
	}
	return nil
}

// Reset 清空台账，仅供测试使用
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
