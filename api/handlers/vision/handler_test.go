package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photoai/internal/abtest"
	"photoai/internal/ai"
	"photoai/internal/engine"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider 固定返回值的提供商
type stubProvider struct {
	name     types.Provider
	roomType string
	err      error
}

func (p *stubProvider) Name() types.Provider { return p.name }
func (p *stubProvider) Model() string        { return "stub-model" }

func (p *stubProvider) AnalyzePhoto(ctx context.Context, photo []byte, opts aiinterface.AnalyzeOptions) (*aiinterface.PhotoAnalysis, error) {
	if p.err != nil {
		return nil, p.err
	}
	conf := 0.9
	return &aiinterface.PhotoAnalysis{
		Items:      []aiinterface.DetectedItem{{Name: "sofa", Condition: "good"}},
		RoomType:   &p.roomType,
		Confidence: &conf,
	}, nil
}

func (p *stubProvider) DetectRoomType(ctx context.Context, photo []byte) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.roomType, nil
}

func (p *stubProvider) AnalyzeRoom(ctx context.Context, roomType string, photos []aiinterface.PhotoInput, opts aiinterface.AnalyzeOptions) (*aiinterface.RoomAnalysis, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &aiinterface.RoomAnalysis{RoomType: roomType, PhotoCount: len(photos)}, nil
}

func setupRouter(t *testing.T, provider *stubProvider) (*gin.Engine, *ai.Ledger, *abtest.Tracker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := ai.NewRegistry()
	registry.Register(provider)
	ledger := ai.NewLedger("")
	eng := engine.New(registry, ledger, nil, engine.Settings{
		Timeout:       time.Second,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
		ModelStrategy: engine.StrategyClaudeFirst,
	})

	router := abtest.NewRouter(nil)
	tracker := abtest.NewTracker(router)
	a, b := eng.RoomClassifierVariants()
	classifier := abtest.NewClassifier(router, tracker, ledger, a, b)

	h := NewHandler(eng, classifier)
	r := gin.New()
	r.POST("/api/ai/photos/analyze", h.AnalyzePhoto)
	r.POST("/api/ai/photos/detect-room", h.DetectRoom)
	r.POST("/api/ai/rooms/:roomType/analyze", h.AnalyzeRoom)
	r.POST("/api/ai/room-classifier/classify", h.ClassifyRoom)
	return r, ledger, tracker
}

func multipartBody(t *testing.T, field string, files int, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for i := 0; i < files; i++ {
		part, err := w.CreateFormFile(field, "photo.jpg")
		require.NoError(t, err)
		_, err = part.Write([]byte("fake-jpeg-bytes"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func post(r *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzePhoto(t *testing.T) {
	r, ledger, _ := setupRouter(t, &stubProvider{name: types.ProviderOpenAI, roomType: "kitchen"})

	body, ct := multipartBody(t, "photo", 1, map[string]string{"user_id": "u1"})
	w := post(r, "/api/ai/photos/analyze", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var result aiinterface.PhotoAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "sofa", result.Items[0].Name)

	stats := ledger.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByOperation[engine.OpAnalyzePhoto].Success)
}

func TestDetectRoomAndAnalyzeRoom(t *testing.T) {
	r, _, _ := setupRouter(t, &stubProvider{name: types.ProviderAnthropic, roomType: "bedroom"})

	body, ct := multipartBody(t, "photo", 1, nil)
	w := post(r, "/api/ai/photos/detect-room", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room_type":"bedroom"}`, w.Body.String())

	body, ct = multipartBody(t, "photos", 3, nil)
	w = post(r, "/api/ai/rooms/living_room/analyze", body, ct)
	require.Equal(t, http.StatusOK, w.Code)
	var room aiinterface.RoomAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, "living_room", room.RoomType)
	assert.Equal(t, 3, room.PhotoCount)
}

func TestMissingPhoto(t *testing.T) {
	r, _, _ := setupRouter(t, &stubProvider{name: types.ProviderOpenAI})

	body, ct := multipartBody(t, "other", 1, nil)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/ai/photos/analyze", body, ct).Code)

	body, ct = multipartBody(t, "photo", 1, nil)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/ai/rooms/kitchen/analyze", body, ct).Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fields map[string]string
		status int
	}{
		{"限流", &ai.ClientError{Kind: types.ErrorCodeRateLimit, Message: "429"}, nil, http.StatusTooManyRequests},
		{"超时", ai.ErrTimeout, nil, http.StatusGatewayTimeout},
		{"上游错误", errors.New("boom"), nil, http.StatusBadGateway},
		{"未知提供商", nil, map[string]string{"provider": "gemini"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := setupRouter(t, &stubProvider{name: types.ProviderOpenAI, err: tt.err})
			body, ct := multipartBody(t, "photo", 1, tt.fields)
			assert.Equal(t, tt.status, post(r, "/api/ai/photos/detect-room", body, ct).Code)
		})
	}
}

func TestClassifyRoom(t *testing.T) {
	r, ledger, tracker := setupRouter(t, &stubProvider{name: types.ProviderOpenAI, roomType: "bathroom"})

	body, ct := multipartBody(t, "photo", 1, map[string]string{"photo_id": "p-1"})
	w := post(r, "/api/ai/room-classifier/classify", body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var resp abtest.ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, abtest.VariantA, resp.Variant)
	assert.Equal(t, "bathroom", resp.RoomType)
	assert.Equal(t, 1, tracker.Stats(nil).A.Count)

	// 引擎一条 detectRoom 加分类器一条
	assert.Equal(t, 2, ledger.Stats().Total)

	body, ct = multipartBody(t, "photo", 1, nil)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/ai/room-classifier/classify", body, ct).Code)
}
