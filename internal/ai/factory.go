package ai

import (
	"fmt"
	"sync"

	"photoai/internal/ai/anthropic"
	"photoai/internal/ai/openai"
	"photoai/internal/config"
	"photoai/pkg/aiinterface"
	"photoai/pkg/types"
)

// Registry 视觉适配器注册表，按提供商键查找
type Registry struct {
	mu        sync.RWMutex
	providers map[types.Provider]aiinterface.VisionProvider
	order     []types.Provider
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{providers: make(map[types.Provider]aiinterface.VisionProvider)}
}

// Register 注册适配器，同名覆盖但保留原有顺序
func (r *Registry) Register(p aiinterface.VisionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get 实现 aiinterface.ProviderRegistry
func (r *Registry) Get(provider types.Provider) (aiinterface.VisionProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[provider]
	return p, ok
}

// Providers 实现 aiinterface.ProviderRegistry
func (r *Registry) Providers() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Provider(nil), r.order...)
}

// NewRegistryFromConfig 按配置创建适配器，未配置 API Key 的提供商跳过
func NewRegistryFromConfig(cfg config.ProvidersConfig) (*Registry, error) {
	reg := NewRegistry()

	if cfg.Anthropic.APIKey != "" {
		client, err := anthropic.NewClient(&aiinterface.ClientConfig{
			Provider: types.ProviderAnthropic,
			APIKey:   cfg.Anthropic.APIKey,
			BaseURL:  cfg.Anthropic.BaseURL,
			Model:    cfg.Anthropic.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("创建 Anthropic 客户端失败: %w", err)
		}
		reg.Register(client)
	}

	if cfg.OpenAI.APIKey != "" {
		client, err := openai.NewClient(&aiinterface.ClientConfig{
			Provider: types.ProviderOpenAI,
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("创建 OpenAI 客户端失败: %w", err)
		}
		reg.Register(client)
	}

	return reg, nil
}
