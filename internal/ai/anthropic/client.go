package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"photoai/internal/ai/converters"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-haiku-latest"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Client Anthropic Claude 视觉适配器
type Client struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// NewClient 创建 Anthropic 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "Anthropic API Key 不能为空",
		}
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		modelID: model,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// messagesRequest /v1/messages 请求体
type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock 文本或图片块
type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// messagesResponse /v1/messages 响应体
type messagesResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Name 返回提供商标识
func (c *Client) Name() aiinterface.Provider {
	return types.ProviderAnthropic
}

// Model 返回模型名称
func (c *Client) Model() string {
	return c.modelID
}

// AnalyzePhoto 识别单张照片
func (c *Client) AnalyzePhoto(ctx context.Context, photo []byte, opts aiinterface.AnalyzeOptions) (*aiinterface.PhotoAnalysis, error) {
	blocks := []contentBlock{imageBlock(photo), {Type: "text", Text: converters.AnalyzePhotoPrompt(opts)}}
	text, err := c.complete(ctx, blocks)
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
	blocks := []contentBlock{imageBlock(photo), {Type: "text", Text: converters.DetectRoomPrompt()}}
	text, err := c.complete(ctx, blocks)
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
func (c *Client) AnalyzeRoom(ctx context.Context, roomType string, photos []aiinterface.PhotoInput, opts aiinterface.AnalyzeOptions) (*aiinterface.RoomAnalysis, error) {
	blocks := make([]contentBlock, 0, len(photos)+1)
	for _, p := range photos {
		switch {
		case len(p.Data) > 0:
			blocks = append(blocks, imageBlock(p.Data))
		case p.URL != "":
			blocks = append(blocks, contentBlock{Type: "image", Source: &imageSource{Type: "url", URL: p.URL}})
		}
	}
	blocks = append(blocks, contentBlock{Type: "text", Text: converters.AnalyzeRoomPrompt(roomType)})

	text, err := c.complete(ctx, blocks)
	if err != nil {
		return nil, err
	}
	result, err := converters.ParseRoomAnalysis(text, roomType, len(photos))
	if err != nil {
		return nil, parseError(err)
	}
	return result, nil
}

func imageBlock(photo []byte) contentBlock {
	return contentBlock{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: converters.MediaType(photo),
			Data:      base64.StdEncoding.EncodeToString(photo),
		},
	}
}

// complete 发送一次消息请求，拼接返回的文本块
func (c *Client) complete(ctx context.Context, blocks []contentBlock) (string, error) {
	resp, err := c.doRequest(ctx, messagesRequest{
		Model:       c.modelID,
		System:      converters.SystemPrompt,
		Messages:    []message{{Role: "user", Content: blocks}},
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "Anthropic API 返回空响应",
		}
	}
	return sb.String(), nil
}

// doRequest 执行 HTTP 请求
func (c *Client) doRequest(ctx context.Context, req messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "序列化请求失败",
			Err:     err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeNetwork,
			Message: "创建请求失败",
			Err:     err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := types.ErrorCodeNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = types.ErrorCodeTimeout
		}
		return nil, &aiinterface.ClientError{
			Kind:    kind,
			Message: "请求失败",
			Err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeNetwork,
			Message: "读取响应失败",
			Err:     err,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp.StatusCode, respBody)
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &aiinterface.ClientError{
			Kind:    types.ErrorCodeProviderError,
			Message: "解析响应失败",
			Err:     err,
		}
	}
	return &resp, nil
}

// statusError 按 HTTP 状态码分类错误
func statusError(statusCode int, body []byte) *aiinterface.ClientError {
	kind := types.ErrorCodeProviderError
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = types.ErrorCodeRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		kind = types.ErrorCodeTimeout
	case statusCode == 529: // overloaded
		kind = types.ErrorCodeRateLimit
	}

	return &aiinterface.ClientError{
		Kind:    kind,
		Message: fmt.Sprintf("Anthropic API 错误 (HTTP %d): %s", statusCode, string(body)),
	}
}

func parseError(err error) *aiinterface.ClientError {
	return &aiinterface.ClientError{
		Kind:    types.ErrorCodeProviderError,
		Message: "Anthropic 响应格式错误",
		Err:     err,
	}
}
