package types

// Provider AI 视觉服务提供商（封闭枚举）
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Valid 判断是否为已知提供商
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	}
	return false
}

// ErrorCode AI 调用错误分类
type ErrorCode string

const (
	ErrorCodeTimeout       ErrorCode = "TIMEOUT"
	ErrorCodeRateLimit     ErrorCode = "RATE_LIMIT"
	ErrorCodeNetwork       ErrorCode = "NETWORK"
	ErrorCodeProviderError ErrorCode = "PROVIDER_ERROR"
	ErrorCodeUnknown       ErrorCode = "UNKNOWN"
)

// AiMetricEvent AI 调用遥测事件
// 纯数据结构,不依赖任何internal包;创建后不可修改,入队后异步落盘
type AiMetricEvent struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"ts"` // epoch 毫秒
	Provider    Provider       `json:"provider"`
	Model       string         `json:"model"`
	Operation   string         `json:"operation"`
	Success     bool           `json:"success"`
	ErrorCode   *ErrorCode     `json:"errorCode,omitempty"`
	LatencyMs   int64          `json:"latencyMs"`
	RetryCount  int            `json:"retryCount"`
	InputBytes  int            `json:"inputBytes"`
	OutputBytes int            `json:"outputBytes"`
	TokensIn    *int           `json:"tokensIn,omitempty"`
	TokensOut   *int           `json:"tokensOut,omitempty"`
	CostUSD     *float64       `json:"costUsd,omitempty"`
	Metadata    map[string]any `json:"meta,omitempty"`
}

// ErrorType 返回错误分类字符串，成功时为空
func (e AiMetricEvent) ErrorType() string {
	if e.ErrorCode == nil {
		return ""
	}
	return string(*e.ErrorCode)
}
