package aiinterface

import (
	"context"

	"photoai/pkg/types"
)

// Provider 重新导出提供商枚举，避免调用方同时依赖两个包
type Provider = types.Provider

// AnalyzeOptions 单次识别的附加参数
type AnalyzeOptions struct {
	RoomType string `json:"room_type,omitempty"` // 已知房间类型，作为提示词上下文
	UserID   string `json:"user_id,omitempty"`
}

// DetectedItem 识别出的物品
type DetectedItem struct {
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	Condition  string  `json:"condition,omitempty"` // good, fair, poor, damaged
	Confidence float64 `json:"confidence,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// PhotoAnalysis 单张照片识别结果
type PhotoAnalysis struct {
	Items      []DetectedItem `json:"items"`
	RoomType   *string        `json:"room_type,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
}

// PhotoInput 按房间批量分析时的单张照片
// Data 序列化为 base64，与实际发送给模型的载荷大小一致
type PhotoInput struct {
	Data []byte `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// RoomAnalysis 房间聚合分析结果
type RoomAnalysis struct {
	RoomType   string         `json:"room_type"`
	Items      []DetectedItem `json:"items"`
	Summary    string         `json:"summary,omitempty"`
	PhotoCount int            `json:"photo_count"`
}

// VisionProvider 视觉模型提供商统一接口
// 各适配器（openai、anthropic）实现该接口，由引擎按字符串键选择
type VisionProvider interface {
	// Name 返回提供商标识
	Name() Provider

	// Model 返回当前使用的模型名称（用于计费与指标）
	Model() string

	// AnalyzePhoto 识别单张照片中的物品
	AnalyzePhoto(ctx context.Context, photo []byte, opts AnalyzeOptions) (*PhotoAnalysis, error)

	// DetectRoomType 识别照片所属房间类型
	DetectRoomType(ctx context.Context, photo []byte) (string, error)

	// AnalyzeRoom 按房间类型批量分析多张照片
	AnalyzeRoom(ctx context.Context, roomType string, photos []PhotoInput, opts AnalyzeOptions) (*RoomAnalysis, error)
}

// ClientConfig 客户端配置
type ClientConfig struct {
	Provider Provider // 提供商（openai, anthropic）
	APIKey   string   // API Key
	BaseURL  string   // 基础 URL
	Model    string   // 模型标识
	Timeout  int      // HTTP 超时时间（秒）
}

// ClientError 客户端错误
// 适配器在返回前完成错误分类，指标层优先使用 Kind 而不是消息匹配
type ClientError struct {
	Kind    types.ErrorCode // 错误类型
	Message string          // 错误消息
	Err     error           // 原始错误
}

// Error 实现error接口
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否可重试
func (e *ClientError) IsRetryable() bool {
	return e.Kind == types.ErrorCodeRateLimit || e.Kind == types.ErrorCodeNetwork || e.Kind == types.ErrorCodeTimeout
}
