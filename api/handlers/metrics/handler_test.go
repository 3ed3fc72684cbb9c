package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photoai/internal/abtest"
	"photoai/internal/ai"
	"photoai/internal/metrics"
	"photoai/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	router    *gin.Engine
	ledger    *ai.Ledger
	collector *metrics.Collector
	tracker   *abtest.Tracker
}

func setupHandler(t *testing.T, withDB bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		ledger:  ai.NewLedger(""),
		tracker: abtest.NewTracker(abtest.NewRouter(nil)),
	}

	var service *metrics.Service
	var sinks []metrics.Sink
	if withDB {
		dsn := fmt.Sprintf("file:handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(&metrics.AiMetricRecord{}))
		sqlDB, err := db.DB()
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlDB.Close() })

		service = metrics.NewService(db)
		sinks = append(sinks, metrics.NewGormSink(db))
	}
	f.collector = metrics.NewCollector(metrics.CollectorConfig{Enabled: true, QueueMax: 10, BatchSize: 10}, sinks...)

	h := NewHandler(f.ledger, f.collector, service, f.tracker)
	r := gin.New()
	r.GET("/api/ai/metrics", h.GetLedger)
	r.GET("/api/ai/metrics/queue", h.GetQueue)
	r.POST("/api/ai/metrics/flush", h.FlushQueue)
	r.GET("/api/ai/metrics/summary", h.GetSummary)
	r.GET("/api/ai/metrics/recent", h.GetRecent)
	r.GET("/api/ai/room-classifier/stats", h.GetRoomClassifierStats)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func event(id string, cost float64) types.AiMetricEvent {
	in, out := 1000, 200
	return types.AiMetricEvent{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Provider:  types.ProviderAnthropic,
		Model:     "claude-3-5-haiku-latest",
		Operation: "detectRoom",
		Success:   true,
		LatencyMs: 300,
		TokensIn:  &in,
		TokensOut: &out,
		CostUSD:   &cost,
	}
}

func TestGetLedger(t *testing.T) {
	f := setupHandler(t, false)
	f.ledger.Record(ai.AIMetric{Operation: "analyzePhoto", Success: true, LatencyMs: 100, Model: "gpt-4o-mini"})
	f.ledger.Record(ai.AIMetric{Operation: "analyzePhoto", Success: false, LatencyMs: 300, Model: "gpt-4o-mini"})

	w := f.do(t, http.MethodGet, "/api/ai/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	var snap ai.LedgerSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Metrics, 2)
	assert.Equal(t, 2, snap.Stats.Total)
	assert.Equal(t, 1, snap.Stats.Failed)
	assert.InDelta(t, 200.0, snap.Stats.AvgLatencyMs, 1e-9)
}

func TestQueueAndFlush(t *testing.T) {
	f := setupHandler(t, true)
	require.True(t, f.collector.Enqueue(event("e1", 0.01)))
	require.True(t, f.collector.Enqueue(event("e2", 0.02)))

	w := f.do(t, http.MethodGet, "/api/ai/metrics/queue")
	require.Equal(t, http.StatusOK, w.Code)
	var stats metrics.CollectorStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.QueueLength)
	assert.Equal(t, 10, stats.QueueMax)

	w = f.do(t, http.MethodPost, "/api/ai/metrics/flush")
	require.Equal(t, http.StatusOK, w.Code)
	var flushed struct {
		Flushed     int `json:"flushed"`
		QueueLength int `json:"queue_length"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flushed))
	assert.Equal(t, 2, flushed.Flushed)
	assert.Equal(t, 0, flushed.QueueLength)

	w = f.do(t, http.MethodGet, "/api/ai/metrics/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Items []metrics.SummaryRow `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Len(t, summary.Items, 1)
	assert.Equal(t, int64(2), summary.Items[0].Calls)
	assert.Equal(t, int64(2000), summary.Items[0].TokensIn)
	assert.InDelta(t, 0.03, summary.Items[0].CostUSD, 1e-9)

	w = f.do(t, http.MethodGet, "/api/ai/metrics/recent?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Items []metrics.AiMetricRecord `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Len(t, recent.Items, 1)
}

func TestSummaryRejectsBadSince(t *testing.T) {
	f := setupHandler(t, true)
	w := f.do(t, http.MethodGet, "/api/ai/metrics/summary?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryWithoutDatabase(t *testing.T) {
	f := setupHandler(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/ai/metrics/summary").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/ai/metrics/recent").Code)
}

func TestGetRoomClassifierStats(t *testing.T) {
	f := setupHandler(t, false)
	old := time.Now().Add(-2 * time.Hour)
	f.tracker.Record(abtest.RoomClassifierMetric{Variant: abtest.VariantA, Success: true, LatencyMs: 80, Confidence: 0.5, Timestamp: old})
	f.tracker.Record(abtest.RoomClassifierMetric{Variant: abtest.VariantB, Success: true, LatencyMs: 40, Confidence: 0.9, Timestamp: time.Now()})

	w := f.do(t, http.MethodGet, "/api/ai/room-classifier/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var all abtest.RoomClassifierStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Total)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	w = f.do(t, http.MethodGet, "/api/ai/room-classifier/stats?since="+since)
	require.Equal(t, http.StatusOK, w.Code)
	var recent abtest.RoomClassifierStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Equal(t, 1, recent.Total)
	assert.Equal(t, 1, recent.B.Count)
	assert.Equal(t, 0, recent.A.Count)
}
