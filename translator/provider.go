package translator

import (
	"context"
	"fmt"
	"strings"

	"pdf-replacer/layout"
)

// ProviderType 翻译提供商类型
type ProviderType string

const (
	ProviderOpenAI   ProviderType = "openai"
	ProviderDeepSeek ProviderType = "deepseek" // OpenAI 兼容接口
	ProviderOllama   ProviderType = "ollama"   // OpenAI 兼容接口，无需密钥
	ProviderStatic   ProviderType = "static"   // 预先准备的 JSON 译文
)

// PageRequest 一页的翻译请求
type PageRequest struct {
	Page      int
	Direction Direction
	Fragments []layout.Fragment
}

// Texts 按序号排列的片段文本
func (r PageRequest) Texts() []string {
	out := make([]string, len(r.Fragments))
	for i, f := range r.Fragments {
		out[i] = f.Text
	}
	return out
}

// PageTranslation 一页的翻译结果
//
// Groups 为分组模式的 (start, end, 译文)；Singles 为按片段序号的译文。
// 两者可以同时出现，分组模式优先。
type PageTranslation struct {
	Groups  []layout.GroupRange `json:"groups,omitempty"`
	Singles map[int]string      `json:"singles,omitempty"`
}

// Empty 是否没有任何译文
func (t PageTranslation) Empty() bool {
	return len(t.Groups) == 0 && len(t.Singles) == 0
}

// Provider 翻译提供商接口，每页调用一次
type Provider interface {
	TranslatePage(ctx context.Context, req PageRequest) (PageTranslation, error)
	GetName() string
}

// ProviderConfig 提供商配置
type ProviderConfig struct {
	Type        ProviderType `json:"type"`
	APIKey      string       `json:"apiKey"`
	BaseURL     string       `json:"baseUrl"`
	Model       string       `json:"model"`
	Temperature float32      `json:"temperature"`
	MaxTokens   int          `json:"maxTokens"`
	StaticFile  string       `json:"staticFile,omitempty"` // static 类型的译文文件
}

// NewProvider 创建提供商实例
func NewProvider(config ProviderConfig) (Provider, error) {
	switch ProviderType(strings.ToLower(string(config.Type))) {
	case ProviderOpenAI, ProviderDeepSeek, "":
		return NewOpenAIProvider(config)
	case ProviderOllama:
		if config.APIKey == "" {
			config.APIKey = "ollama"
		}
		return NewOpenAIProvider(config)
	case ProviderStatic:
		return LoadStaticProvider(config.StaticFile)
	default:
		return nil, fmt.Errorf("不支持的提供商类型: %s", config.Type)
	}
}
