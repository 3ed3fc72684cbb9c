package converters

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"photoai/pkg/aiinterface"
)

// 视觉提示词，各提供商共用
const (
	SystemPrompt = "You are a property inspection assistant. Always answer with a single JSON object and nothing else."

	analyzePhotoPrompt = `List every notable item visible in this photo.
Respond as JSON: {"items":[{"name":"","category":"","condition":"good|fair|poor|damaged","confidence":0.0,"notes":""}],"room_type":"","confidence":0.0}`

	detectRoomPrompt = `Which room type is shown in this photo (e.g. kitchen, bathroom, bedroom, living_room, dining_room, hallway, garage, exterior, other)?
Respond as JSON: {"room_type":""}`

	analyzeRoomPrompt = `These photos all show the same %s. Produce one combined inventory for the room.
Respond as JSON: {"room_type":"%s","items":[{"name":"","category":"","condition":"","confidence":0.0,"notes":""}],"summary":""}`
)

// AnalyzePhotoPrompt 单张照片物品识别提示词
func AnalyzePhotoPrompt(opts aiinterface.AnalyzeOptions) string {
	if opts.RoomType == "" {
		return analyzePhotoPrompt
	}
	return fmt.Sprintf("The photo was taken in a %s.\n%s", opts.RoomType, analyzePhotoPrompt)
}

// DetectRoomPrompt 房间类型识别提示词
func DetectRoomPrompt() string {
	return detectRoomPrompt
}

// AnalyzeRoomPrompt 房间批量分析提示词
func AnalyzeRoomPrompt(roomType string) string {
	return fmt.Sprintf(analyzeRoomPrompt, roomType, roomType)
}

// MediaType 探测图片 MIME 类型，无法识别时按 JPEG 处理
func MediaType(photo []byte) string {
	ct := http.DetectContentType(photo)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}

// DataURL 将图片编码为 data URL
func DataURL(photo []byte) string {
	return "data:" + MediaType(photo) + ";base64," + base64.StdEncoding.EncodeToString(photo)
}

// extractJSON 截取模型输出中的首个 JSON 对象（兼容 ```json 代码块包裹）
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("模型输出中没有 JSON 对象")
	}
	return text[start : end+1], nil
}

type photoAnalysisPayload struct {
	Items      []aiinterface.DetectedItem `json:"items"`
	RoomType   string                     `json:"room_type"`
	Confidence *float64                   `json:"confidence"`
}

// ParsePhotoAnalysis 解析单张照片识别结果
func ParsePhotoAnalysis(text string) (*aiinterface.PhotoAnalysis, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var p photoAnalysisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("解析识别结果失败: %w", err)
	}
	result := &aiinterface.PhotoAnalysis{Items: p.Items, Confidence: p.Confidence}
	if result.Items == nil {
		result.Items = []aiinterface.DetectedItem{}
	}
	if rt := NormalizeRoomType(p.RoomType); rt != "" {
		result.RoomType = &rt
	}
	return result, nil
}

// ParseRoomType 解析房间类型识别结果
func ParseRoomType(text string) (string, error) {
	raw, err := extractJSON(text)
	if err != nil {
		// 部分模型直接返回纯文本房间名
		if rt := NormalizeRoomType(text); rt != "" && !strings.ContainsAny(rt, " \n") {
			return rt, nil
		}
		return "", err
	}
	var p struct {
		RoomType string `json:"room_type"`
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("解析房间类型失败: %w", err)
	}
	rt := NormalizeRoomType(p.RoomType)
	if rt == "" {
		return "", fmt.Errorf("模型未返回房间类型")
	}
	return rt, nil
}

// ParseRoomAnalysis 解析房间批量分析结果
func ParseRoomAnalysis(text, roomType string, photoCount int) (*aiinterface.RoomAnalysis, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var p struct {
		RoomType string                     `json:"room_type"`
		Items    []aiinterface.DetectedItem `json:"items"`
		Summary  string                     `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("解析房间分析结果失败: %w", err)
	}
	result := &aiinterface.RoomAnalysis{
		RoomType:   NormalizeRoomType(p.RoomType),
		Items:      p.Items,
		Summary:    p.Summary,
		PhotoCount: photoCount,
	}
	if result.RoomType == "" {
		result.RoomType = NormalizeRoomType(roomType)
	}
	if result.Items == nil {
		result.Items = []aiinterface.DetectedItem{}
	}
	return result, nil
}

// NormalizeRoomType 统一房间类型写法：小写、空格与连字符转下划线
func NormalizeRoomType(roomType string) string {
	rt := strings.ToLower(strings.TrimSpace(roomType))
	rt = strings.Trim(rt, `"'.`)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(rt)
}
