package memory

import (
	"context"

	"docqa-rag-api/internal/domain/entity"
)

type usageRecord struct {
	event entity.LLMUsageEvent
}

// LLMUsageEventRepository 计费流水，只追加
type LLMUsageEventRepository struct {
	store *Store
}

func NewLLMUsageEventRepository(store *Store) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{store: store}
}

// Create 追加一条流水
func (r *LLMUsageEventRepository) Create(_ context.Context, event *entity.LLMUsageEvent) error {
	r.store.usageMu.Lock()
	defer r.store.usageMu.Unlock()
	r.store.usage = append(r.store.usage, usageRecord{event: *event})
	return nil
}

// SumCostBySession 汇总会话的流水花费
func (r *LLMUsageEventRepository) SumCostBySession(_ context.Context, sessionID string) (float64, error) {
	r.store.usageMu.Lock()
	defer r.store.usageMu.Unlock()

	total := 0.0
	for _, rec := range r.store.usage {
		if rec.event.SessionID == sessionID {
			total += rec.event.CostUSD
		}
	}
	return total, nil
}
