package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photoai/pkg/types"
)

// JSONLSink 按 UTC 日期分文件追加写入 JSON Lines
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLSink 创建 JSONL 落盘目标，目录在首次写入时创建
func NewJSONLSink(dir string) *JSONLSink {
	return &JSONLSink{dir: dir}
}

// Name 实现 Sink
func (s *JSONLSink) Name() string {
	return "jsonl"
}

// FileFor 返回指定时刻对应的日志文件路径
func (s *JSONLSink) FileFor(t time.Time) string {
	return filepath.Join(s.dir, "ai-metrics-"+t.UTC().Format("2006-01-02")+".jsonl")
}

// Write 实现 Sink
func (s *JSONLSink) Write(ctx context.Context, events []types.AiMetricEvent) error {
	if len(events) == 0 {
		return nil
	}

	// 按事件自身的 UTC 日期分组，保持原有顺序
	var order []string
	groups := make(map[string][]types.AiMetricEvent)
	for _, e := range events {
		path := s.FileFor(time.UnixMilli(e.Timestamp))
		if _, ok := groups[path]; !ok {
			order = append(order, path)
		}
		groups[path] = append(groups[path], e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建遥测目录失败: %w", err)
	}
	for _, path := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := appendLines(path, groups[path]); err != nil {
			return err
		}
	}
	return nil
}

func appendLines(path string, events []types.AiMetricEvent) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("打开遥测文件失败: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("写入遥测文件失败: %w", err)
		}
	}
	return nil
}
