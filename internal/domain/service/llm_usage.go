package service

import "context"

// LLMUsageInput 一次模型调用的计费与观测数据
type LLMUsageInput struct {
	SessionID string

	Operation string
	Provider  string
	Model     string

	PromptTokens     int
	CachedTokens     int
	CompletionTokens int
	CostUSD          float64
	DurationMs       int
}

// LLMUsageRecorder 记录模型使用流水，实现应为 best-effort，不阻塞主流程
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
