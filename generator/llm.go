package generator

import "context"

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMFunc adapts a plain function to LLMClient.
type LLMFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f LLMFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// StructuredMode 决定结构化输出如何下发给 openai 兼容接口。
const (
	// StructuredJSONSchema 使用 response_format=json_schema（OpenAI）。
	StructuredJSONSchema = "json_schema"
	// StructuredJSONObject 使用 response_format=json_object，schema 只出现在提示词里（DeepSeek）。
	StructuredJSONObject = "json_object"
)

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	StructuredMode string
}
