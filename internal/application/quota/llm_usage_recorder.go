package quota

import (
	"context"
	"fmt"
	"strings"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
	"docqa-rag-api/internal/domain/service"
	"docqa-rag-api/pkg/logger"
)

// LLMUsageRecorder 写入 llm_usage_events 流水
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 || in.CachedTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	evt := &entity.LLMUsageEvent{
		SessionID:        sessionID,
		Operation:        strings.TrimSpace(in.Operation),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCached:     in.CachedTokens,
		TokensCompletion: in.CompletionTokens,
		CostUSD:          in.CostUSD,
		DurationMs:       in.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to record llm usage event", "session_id", sessionID, "error", err.Error())
	}
	return nil
}
