package ai

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPricingKey 兜底价格行
const DefaultPricingKey = "default"

// ModelPricing 模型价格（美元 / 1000 Token）
type ModelPricing struct {
	Model           string  `json:"model" yaml:"model"`
	InputCostPer1K  float64 `json:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k" yaml:"output_cost_per_1k"`
}

var (
	pricingMu    sync.RWMutex
	pricingTable = map[string]ModelPricing{
		"gpt-4o":            {InputCostPer1K: 2.50, OutputCostPer1K: 10.00},
		"gpt-4o-mini":       {InputCostPer1K: 0.15, OutputCostPer1K: 0.60},
		"gpt-4-turbo":       {InputCostPer1K: 10.00, OutputCostPer1K: 30.00},
		"gpt-4.1":           {InputCostPer1K: 2.00, OutputCostPer1K: 8.00},
		"gpt-4.1-mini":      {InputCostPer1K: 0.40, OutputCostPer1K: 1.60},
		"claude-3-5-sonnet": {InputCostPer1K: 3.00, OutputCostPer1K: 15.00},
		"claude-3-5-haiku":  {InputCostPer1K: 0.25, OutputCostPer1K: 1.25},
		"claude-3-7-sonnet": {InputCostPer1K: 3.00, OutputCostPer1K: 15.00},
		"claude-3-opus":     {InputCostPer1K: 15.00, OutputCostPer1K: 75.00},
		"claude-3-haiku":    {InputCostPer1K: 0.25, OutputCostPer1K: 1.25},
		"claude-sonnet-4":   {InputCostPer1K: 3.00, OutputCostPer1K: 15.00},
		DefaultPricingKey:   {InputCostPer1K: 1.00, OutputCostPer1K: 2.00},
	}
)

// NormalizeModelName 规范化模型名：小写、去空白、去掉 "provider/" 前缀
func NormalizeModelName(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// resolvePricingKey 精确匹配 → 最长前缀匹配 → default
func resolvePricingKey(model string) string {
	name := NormalizeModelName(model)
	if name == "" {
		return DefaultPricingKey
	}
	if _, ok := pricingTable[name]; ok {
		return name
	}
	best := ""
	for key := range pricingTable {
		if key == DefaultPricingKey {
			continue
		}
		if strings.HasPrefix(name, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return DefaultPricingKey
	}
	return best
}

// GetModelPricing 获取模型价格，始终可解析（未知模型使用 default 行）
func GetModelPricing(model string) ModelPricing {
	pricingMu.RLock()
	defer pricingMu.RUnlock()

	key := resolvePricingKey(model)
	p := pricingTable[key]
	p.Model = key
	return p
}

// EstimateCost 估算调用成本（美元）
// 成本 = (输入 Token / 1000) * 输入单价 + (输出 Token / 1000) * 输出单价
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	if tokensIn <= 0 && tokensOut <= 0 {
		return 0
	}
	p := GetModelPricing(model)
	inputCost := float64(tokensIn) / 1000.0 * p.InputCostPer1K
	outputCost := float64(tokensOut) / 1000.0 * p.OutputCostPer1K
	return inputCost + outputCost
}

// SetModelPricing 注册或覆盖单个模型价格
func SetModelPricing(p ModelPricing) {
	key := NormalizeModelName(p.Model)
	if key == "" {
		return
	}
	pricingMu.Lock()
	defer pricingMu.Unlock()
	pricingTable[key] = ModelPricing{InputCostPer1K: p.InputCostPer1K, OutputCostPer1K: p.OutputCostPer1K}
}

// pricingFile 价格覆盖文件格式
type pricingFile struct {
	Models []ModelPricing `yaml:"models"`
}

// LoadPricingOverrides 从 YAML 文件加载价格覆盖，返回生效行数
//
//	models:
//	  - model: gpt-4o
//	    input_cost_per_1k: 2.5
//	    output_cost_per_1k: 10
func LoadPricingOverrides(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("读取价格文件失败: %w", err)
	}
	var f pricingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("解析价格文件失败: %w", err)
	}
	n := 0
	for _, p := range f.Models {
		if p.InputCostPer1K < 0 || p.OutputCostPer1K < 0 {
			return n, fmt.Errorf("模型 %s 价格不能为负数", p.Model)
		}
		if NormalizeModelName(p.Model) == "" {
			continue
		}
		SetModelPricing(p)
		n++
	}
	return n, nil
}
