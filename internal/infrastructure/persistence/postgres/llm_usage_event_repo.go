package postgres

import (
	"context"
	"fmt"

	"docqa-rag-api/internal/domain/entity"
)

type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create llm usage event: %w", err)
	}
	return nil
}

func (r *LLMUsageEventRepository) SumCostBySession(ctx context.Context, sessionID string) (float64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.SumCostBySession")
	defer span.End()

	var total float64
	if err := getDB(ctx, r.client.db).Model(&entity.LLMUsageEvent{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to sum llm usage cost: %w", err)
	}
	return total, nil
}
