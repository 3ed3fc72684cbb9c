package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"photoai/internal/ai/converters"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"

	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxTokens = 1024

// Client OpenAI 视觉适配器
// 重试与超时由引擎统一处理，这里只做单次请求与错误分类
type Client struct {
	client  *openai.Client
	modelID string
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(config.Timeout) * time.Second}
	}

	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		modelID: model,
	}, nil
}

// Name 返回提供商标识
func (c *Client) Name() aiinterface.Provider {
	return types.ProviderOpenAI
}

// Model 返回模型名称
func (c *Client) Model() string {
	return c.modelID
}

// AnalyzePhoto 识别单张照片
func (c *Client) AnalyzePhoto(ctx context.Context, photo []byte, opts aiinterface.AnalyzeOptions) (*aiinterface.PhotoAnalysis, error) {
	text, err := c.complete(ctx, converters.AnalyzePhotoPrompt(opts), [][]byte{photo}, nil)
	if err != nil {
		return nil, err
	}
	result, err := converters.ParsePhotoAnalysis(text)
	if err != nil {
		return nil, parseError(err)
	}
	return result, nil
}

// DetectRoomType 识别房间类型
func (c *Client) DetectRoomType(ctx context.Context, photo []byte) (string, error) {
	text, err := c.complete(ctx, converters.DetectRoomPrompt(), [][]byte{photo}, nil)
	if err != nil {
		return "", err
	}
	roomType, err := converters.ParseRoomType(text)
	if err != nil {
		return "", parseError(err)
	}
	return roomType, nil
}

// AnalyzeRoom 按房间批量分析
// 有原始数据的照片内联为 data URL，否则直接引用 URL
func (c *Client) AnalyzeRoom(ctx context.Context, roomType string, photos []aiinterface.PhotoInput, opts aiinterface.AnalyzeOptions) (*aiinterface.RoomAnalysis, error) {
	var inline [][]byte
	var urls []string
	for _, p := range photos {
		if len(p.Data) > 0 {
			inline = append(inline, p.Data)
		} else if p.URL != "" {
			urls = append(urls, p.URL)
		}
	}

	text, err := c.complete(ctx, converters.AnalyzeRoomPrompt(roomType), inline, urls)
	if err != nil {
		return nil, err
	}
	result, err := converters.ParseRoomAnalysis(text, roomType, len(photos))
	if err != nil {
		return nil, parseError(err)
	}
	return result, nil
}

// complete 发送一次多模态对话请求，返回文本内容
func (c *Client) complete(ctx context.Context, prompt string, images [][]byte, urls []string) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: converters.DataURL(img), Detail: openai.ImageURLDetailAuto},
		})
	}
	for _, u := range urls {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: u, Detail: openai.ImageURLDetailAuto},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: converters.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "OpenAI API 返回空响应",
		}
	}
	return resp.Choices[0].Message.Content, nil
}

// wrapError 包装错误并预先分类
func wrapError(err error) *aiinterface.ClientError {
	kind := types.ErrorCodeProviderError

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = types.ErrorCodeTimeout
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = types.ErrorCodeRateLimit
		}
	case errors.As(err, &reqErr):
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			kind = types.ErrorCodeRateLimit
		}
	case errors.As(err, &netErr):
		kind = types.ErrorCodeNetwork
		if netErr.Timeout() {
			kind = types.ErrorCodeTimeout
		}
	}

	return &aiinterface.ClientError{
		Kind:    kind,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}

func parseError(err error) *aiinterface.ClientError {
	return &aiinterface.ClientError{
		Kind:    types.ErrorCodeProviderError,
		Message: "OpenAI 响应格式错误",
		Err:     err,
	}
}
