package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"photoai/internal/abtest"
	"photoai/internal/ai"
	"photoai/internal/engine"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"

	"github.com/gin-gonic/gin"
)

// maxPhotoBytes 单张照片上传上限
const maxPhotoBytes = 10 << 20

// Analyzer 引擎门面中对外暴露的识别操作
type Analyzer interface {
	AnalyzePhoto(ctx context.Context, photo []byte, opts engine.Options) (*aiinterface.PhotoAnalysis, error)
	DetectRoom(ctx context.Context, photo []byte, opts engine.Options) (string, error)
	AnalyzeByRoomType(ctx context.Context, roomType string, photos []aiinterface.PhotoInput, opts engine.Options) (*aiinterface.RoomAnalysis, error)
}

// RoomClassifier 房间分类实验入口
type RoomClassifier interface {
	Classify(ctx context.Context, req abtest.ClassifyRequest) (*abtest.ClassifyResponse, error)
}

// Handler 照片识别 Handler
type Handler struct {
	analyzer   Analyzer
	classifier RoomClassifier
}

// NewHandler 创建 Handler
func NewHandler(analyzer Analyzer, classifier RoomClassifier) *Handler {
	return &Handler{analyzer: analyzer, classifier: classifier}
}

// AnalyzePhoto 识别单张照片
// @Summary 识别照片中的物品
// @Tags Vision
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "照片"
// @Param provider formData string false "提供商(openai/anthropic)"
// @Param room_type formData string false "已知房间类型"
// @Param timeout_ms formData int false "单次尝试超时"
// @Success 200 {object} aiinterface.PhotoAnalysis
// @Failure 400 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /api/ai/photos/analyze [post]
func (h *Handler) AnalyzePhoto(c *gin.Context) {
	photo, ok := readPhoto(c, "photo")
	if !ok {
		return
	}

	result, err := h.analyzer.AnalyzePhoto(c.Request.Context(), photo, parseOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DetectRoom 识别照片所属房间
// @Summary 识别房间类型
// @Tags Vision
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "照片"
// @Success 200 {object} map[string]string
// @Router /api/ai/photos/detect-room [post]
func (h *Handler) DetectRoom(c *gin.Context) {
	photo, ok := readPhoto(c, "photo")
	if !ok {
		return
	}

	roomType, err := h.analyzer.DetectRoom(c.Request.Context(), photo, parseOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_type": roomType})
}

// AnalyzeRoom 按房间批量分析
// @Summary 按房间类型批量分析照片
// @Tags Vision
// @Accept multipart/form-data
// @Produce json
// @Param roomType path string true "房间类型"
// @Param photos formData file true "照片(可多张)"
// @Success 200 {object} aiinterface.RoomAnalysis
// @Router /api/ai/rooms/{roomType}/analyze [post]
func (h *Handler) AnalyzeRoom(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["photos"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少照片文件 photos"})
		return
	}

	photos := make([]aiinterface.PhotoInput, 0, len(form.File["photos"]))
	for _, fh := range form.File["photos"] {
		data, err := readFileHeader(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		photos = append(photos, aiinterface.PhotoInput{Data: data})
	}

	result, err := h.analyzer.AnalyzeByRoomType(c.Request.Context(), c.Param("roomType"), photos, parseOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ClassifyRoom 经 A/B 实验分类房间
// @Summary 房间分类(A/B 实验)
// @Tags Vision
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "照片"
// @Param seed formData string false "分桶种子，缺省依次使用 photo_id、user_id"
// @Success 200 {object} abtest.ClassifyResponse
// @Router /api/ai/room-classifier/classify [post]
func (h *Handler) ClassifyRoom(c *gin.Context) {
	photo, ok := readPhoto(c, "photo")
	if !ok {
		return
	}

	resp, err := h.classifier.Classify(c.Request.Context(), abtest.ClassifyRequest{
		Seed:    c.PostForm("seed"),
		Photo:   photo,
		UserID:  c.PostForm("user_id"),
		BatchID: c.PostForm("batch_id"),
		PhotoID: c.PostForm("photo_id"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// parseOptions 从表单读取单次调用参数
func parseOptions(c *gin.Context) engine.Options {
	opts := engine.Options{
		Provider: types.Provider(c.PostForm("provider")),
		RoomType: c.PostForm("room_type"),
		UserID:   c.PostForm("user_id"),
	}
	if v, err := strconv.Atoi(c.PostForm("timeout_ms")); err == nil && v > 0 {
		opts.TimeoutMs = v
	}
	if v, err := strconv.Atoi(c.PostForm("max_retries")); err == nil && v > 0 {
		opts.MaxRetries = v
	}
	return opts
}

func readPhoto(c *gin.Context, field string) ([]byte, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("缺少照片文件 %s", field)})
		return nil, false
	}
	data, err := readFileHeader(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return data, true
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxPhotoBytes {
		return nil, fmt.Errorf("照片 %s 超过大小限制", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("读取照片失败: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		return nil, fmt.Errorf("读取照片失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("照片 %s 为空", fh.Filename)
	}
	return data, nil
}

// respondError 按错误分类映射 HTTP 状态码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ai.ErrUnknownProvider), errors.Is(err, abtest.ErrNoSeed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, engine.ErrNoProvider):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	code := ai.ClassifyError(err)
	status := http.StatusBadGateway
	switch code {
	case types.ErrorCodeTimeout:
		status = http.StatusGatewayTimeout
	case types.ErrorCodeRateLimit:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
