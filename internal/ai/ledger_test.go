package ai

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStats(t *testing.T) {
	l := NewLedger("")
	l.Record(AIMetric{Operation: "analyzePhoto", LatencyMs: 100, Success: true})
	l.Record(AIMetric{Operation: "analyzePhoto", LatencyMs: 300, Success: false})
	l.Record(AIMetric{Operation: "detectRoom", LatencyMs: 200, Success: true})

	stats := l.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 200.0, stats.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 200.0, stats.P95LatencyMs, 1e-9)

	photo := stats.ByOperation["analyzePhoto"]
	assert.Equal(t, 2, photo.Total)
	assert.Equal(t, 1, photo.Failed)
	assert.InDelta(t, 200.0, photo.AvgLatencyMs, 1e-9)
	assert.Equal(t, 1, stats.ByOperation["detectRoom"].Total)
}

func TestLedgerEmptyStats(t *testing.T) {
	stats := NewLedger("").Stats()
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AvgLatencyMs)
	assert.NotNil(t, stats.ByOperation)
}

func TestLedgerConcurrentRecord(t *testing.T) {
	l := NewLedger("")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(AIMetric{Operation: "op", Success: true})
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Len(t, snap.Metrics, 50)
	assert.Equal(t, 50, snap.Stats.Total)

	l.Reset()
	assert.Empty(t, l.Metrics())
}

func TestLedgerFileMirrorKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ai-metrics.json")
	l := NewLedger(path)
	for i := 0; i < ledgerFileMaxEntries+5; i++ {
		l.Record(AIMetric{Operation: "op", LatencyMs: int64(i), Success: true})
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []AIMetric
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, ledgerFileMaxEntries)
	assert.Equal(t, int64(5), onDisk[0].LatencyMs)

	// 内存台账不受文件上限影响
	assert.Len(t, l.Metrics(), ledgerFileMaxEntries+5)
}
