package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 Generator 接口的 Gemini API 客户端。
type Gemini struct {
	client *genai.Client // GenAI 客户端实例。
	model  string        // 模型名称。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的创建。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Call 发送单次生成请求。每次调用都创建独立的模型句柄，避免并发调用互相修改生成参数。
func (g *Gemini) Call(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}
	m.SetTemperature(float32(temperature))

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with gemini: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return sb.String(), nil
}

// Close 关闭底层客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}
