package ai

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken 经验值：英文文本约 4 个字符一个 Token
const charsPerToken = 4

// EstimateTokens 按字符数估算 Token 数，ceil(len/4)
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateTokensFromObject 规范化序列化后估算 Token 数
// nil 返回 0；字符串直接计数；其他值使用 JSON（map 键有序）
func EstimateTokensFromObject(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return EstimateTokens(val)
	case []byte:
		return EstimateTokens(string(val))
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return 0
	}
	return EstimateTokens(string(data))
}

// estimateTokensFromBytes 字节数兜底估算
func estimateTokensFromBytes(size int) int {
	if size <= 0 {
		return 0
	}
	return (size + charsPerToken - 1) / charsPerToken
}

// TokenEstimator 可注入的 Token 估算器
type TokenEstimator interface {
	// Estimate 估算任意载荷的 Token 数
	Estimate(payload any) int
}

// ByteEstimator 字节数/4 的默认估算器
type ByteEstimator struct{}

// Estimate 实现 TokenEstimator
func (ByteEstimator) Estimate(payload any) int {
	return estimateTokensFromBytes(payloadSize(payload))
}

// TiktokenEstimator 基于 tiktoken 的文本 Token 估算器
// 图片等二进制载荷无法按 BPE 编码，回退到字节数/4
type TiktokenEstimator struct {
	tkm *tiktoken.Tiktoken
}

// NewTiktokenEstimator 创建 tiktoken 估算器
// 模型未识别时回退到 cl100k_base
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenEstimator{tkm: tkm}, nil
}

// Estimate 实现 TokenEstimator
func (e *TiktokenEstimator) Estimate(payload any) int {
	switch val := payload.(type) {
	case nil:
		return 0
	case []byte:
		return estimateTokensFromBytes(len(val))
	case string:
		return len(e.tkm.Encode(val, nil, nil))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(e.tkm.Encode(string(data), nil, nil))
}
