package ai

import (
	"context"
	"errors"
	"strings"

	"photoai/pkg/aiinterface"
	"photoai/pkg/types"
)

// ClientError 重新导出适配器错误类型
type ClientError = aiinterface.ClientError

var (
	// ErrTimeout 单次尝试超过时间预算
	ErrTimeout = &ClientError{Kind: types.ErrorCodeTimeout, Message: "AI_TIMEOUT"}

	// ErrUnknownProvider 调用方指定了未注册的提供商
	ErrUnknownProvider = errors.New("unknown AI provider")
)

// classifyRule 按优先级排列的消息匹配规则
type classifyRule struct {
	code     types.ErrorCode
	keywords []string
}

var classifyRules = []classifyRule{
	{types.ErrorCodeTimeout, []string{"ai_timeout", "timeout", "timed out", "deadline exceeded"}},
	{types.ErrorCodeRateLimit, []string{"rate limit", "rate_limit", "ratelimit", "429", "too many requests", "quota"}},
	{types.ErrorCodeNetwork, []string{"network", "econnreset", "econnrefused", "enotfound", "connection", "socket", "dial tcp", "no such host", "eof"}},
	{types.ErrorCodeProviderError, []string{"provider", "api error", "openai", "anthropic", "invalid", "500", "502", "503", "504", "overloaded"}},
}

// ClassifyError 将错误归入遥测分类
// 优先使用适配器预先分类的 ClientError，消息子串匹配仅作为不透明错误的兜底
func ClassifyError(err error) types.ErrorCode {
	if err == nil {
		return ""
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.Kind != "" {
		return clientErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorCodeTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.code
			}
		}
	}
	return types.ErrorCodeUnknown
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	return ClassifyError(err) == types.ErrorCodeTimeout
}
