package aiinterface

// ProviderRegistry 提供商注册表接口
// 引擎只依赖该接口按键查找适配器，具体构建逻辑在 internal/ai
type ProviderRegistry interface {
	// Get 获取指定提供商的适配器
	Get(provider Provider) (VisionProvider, bool)

	// Providers 按注册顺序返回已注册的提供商
	Providers() []Provider
}
