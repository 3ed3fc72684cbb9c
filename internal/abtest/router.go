package abtest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// 实时读取的配置键
const (
	EnvEnabled   = "ROOM_CLASSIFIER_AB_ENABLED"
	EnvSplit     = "ROOM_CLASSIFIER_AB_SPLIT"
	DefaultSplit = 10
)

// Variant 实验变体
type Variant string

const (
	VariantA Variant = "A" // 基线
	VariantB Variant = "B" // 候选
)

// ConfigSource 实时配置来源，*viper.Viper 满足该接口
type ConfigSource interface {
	GetString(key string) string
}

// ABTestConfig 当前生效的实验配置
type ABTestConfig struct {
	Enabled bool `json:"enabled"`
	Split   int  `json:"split"` // 0-100，进入 B 的百分比
}

// Router 按种子确定性分桶
// 每次调用都重新读取配置，修改环境变量无需重启
type Router struct {
	src ConfigSource
}

// NewRouter 创建路由器，src 为 nil 时实验始终关闭
func NewRouter(src ConfigSource) *Router {
	return &Router{src: src}
}

// IsEnabled 仅 "true" 或 "1"（不区分大小写）视为开启
func (r *Router) IsEnabled() bool {
	if r.src == nil {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(r.src.GetString(EnvEnabled)))
	return v == "true" || v == "1"
}

// Split 读取分流比例，夹到 [0,100]，缺失或非法时为 10
func (r *Router) Split() int {
	if r.src == nil {
		return DefaultSplit
	}
	raw := strings.TrimSpace(r.src.GetString(EnvSplit))
	if raw == "" {
		return DefaultSplit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultSplit
	}
	return clamp(n, 0, 100)
}

// Config 返回当前配置快照
func (r *Router) Config() ABTestConfig {
	return ABTestConfig{Enabled: r.IsEnabled(), Split: r.Split()}
}

// ChooseVariant 按当前配置为种子分配变体
func (r *Router) ChooseVariant(seed string) Variant {
	return ChooseVariant(seed, r.Config())
}

// ChooseVariant 纯函数：相同 (seed, enabled, split) 总得到相同结果
func ChooseVariant(seed string, cfg ABTestConfig) Variant {
	if !cfg.Enabled || cfg.Split <= 0 {
		return VariantA
	}
	if cfg.Split >= 100 {
		return VariantB
	}
	if Bucket(seed) < cfg.Split {
		return VariantB
	}
	return VariantA
}

// Bucket SHA-256 摘要前 8 位十六进制转整数后对 100 取模
func Bucket(seed string) int {
	sum := sha256.Sum256([]byte(seed))
	prefix := hex.EncodeToString(sum[:4])
	n, _ := strconv.ParseUint(prefix, 16, 32)
	return int(n % 100)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
