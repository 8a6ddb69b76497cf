package repository

import (
	"context"

	"docqa-rag-api/internal/domain/entity"
)

// LLMUsageEventRepository 计费流水存储
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	// SumCostBySession 汇总会话的流水花费
	SumCostBySession(ctx context.Context, sessionID string) (float64, error)
}
