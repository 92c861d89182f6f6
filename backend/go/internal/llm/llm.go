package llm

import (
	"context"
	"fmt"

	"memory_orchestrator/backend/go/internal/config"
)

// Generator 定义了摘要器和事实抽取器共用的单次文本生成接口。
type Generator interface {
	// Call 发送一次提示并返回生成的文本。
	Call(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// GeneratorFunc 允许把普通函数当作 Generator 使用。
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)

// Call 调用函数本身。
func (f GeneratorFunc) Call(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return f(ctx, prompt, maxTokens, temperature)
}

// NewGenerator 是一个工厂函数，根据配置创建对应提供商的 Generator。
//
// 参数:
//
//	ctx: 上下文，用于创建需要联网初始化的客户端。
//	cfg: 文本生成后端的配置。
//
// 返回值:
//
//	Generator: 实现了 Generator 接口的客户端。
//	error: 如果提供商不受支持或初始化失败，则返回错误。
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "gemini":
		return NewGemini(ctx, cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
