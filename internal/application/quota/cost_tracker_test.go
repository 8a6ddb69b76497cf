package quota

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
	"docqa-rag-api/internal/domain/service"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	sessions map[string]*entity.ChatSession
	addErr   error
}

func newFakeAccountStore(sessions ...*entity.ChatSession) *fakeAccountStore {
	s := &fakeAccountStore{sessions: make(map[string]*entity.ChatSession)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *fakeAccountStore) GetByID(_ context.Context, id string) (*entity.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeAccountStore) AddUsage(_ context.Context, id string, d entity.UsageDelta) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	sess.MessageCount += d.Messages
	sess.TotalTokens += d.Tokens
	sess.CachedTokens += d.CachedTokens
	sess.TotalCostUSD += d.CostUSD
	return nil
}

func TestPriceTable_Cost(t *testing.T) {
	table := DefaultPriceTable()

	cost := table.Cost("deepseek-chat", Usage{PromptTokens: 1_000_000, CachedTokens: 0, CompletionTokens: 1_000_000})
	assert.InDelta(t, 0.70, cost, 1e-9)

	cost = table.Cost("deepseek-chat", Usage{PromptTokens: 1_000_000, CachedTokens: 1_000_000})
	assert.InDelta(t, 0.028, cost, 1e-9)

	cost = table.Cost("unknown-model", Usage{PromptTokens: 2000, CachedTokens: 500, CompletionTokens: 300})
	want := 1500*0.28/1e6 + 500*0.028/1e6 + 300*0.42/1e6
	assert.InDelta(t, want, cost, 1e-12)

	assert.Zero(t, table.Cost("deepseek-chat", Usage{}))
}

func TestPriceTable_CachedNeverExceedsPrompt(t *testing.T) {
	cost := DefaultPriceTable().Cost("deepseek-chat", Usage{PromptTokens: 100, CachedTokens: 500})
	assert.InDelta(t, 100*0.028/1e6, cost, 1e-12)
}

func TestCheckSpendingLimit_StrictBoundary(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		current float64
		max     float64
		want    bool
	}{
		{"below", 9.99, 10, true},
		{"exactly at limit is blocked", 10, 10, false},
		{"above", 10.5, 10, false},
		{"zero spend", 0, 10, true},
		{"default limit", 9.5, 0, true},
		{"default limit reached", 10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeAccountStore(&entity.ChatSession{ID: "s1", TotalCostUSD: tt.current})
			tracker := NewSessionCostTracker(store, DefaultPriceTable(), "deepseek-chat", 10)

			ok, err := tracker.CheckSpendingLimit(ctx, "s1", tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCheckSpendingLimit_MissingSession(t *testing.T) {
	tracker := NewSessionCostTracker(newFakeAccountStore(), PriceTable{}, "deepseek-chat", 0)

	_, err := tracker.CheckSpendingLimit(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.InDelta(t, DefaultSpendingLimitUSD, tracker.DefaultLimit(), 1e-9)
}

func TestEnsureWithinLimit(t *testing.T) {
	store := newFakeAccountStore(&entity.ChatSession{ID: "s1", TotalCostUSD: 5})
	tracker := NewSessionCostTracker(store, DefaultPriceTable(), "deepseek-chat", 5)

	err := tracker.EnsureWithinLimit(context.Background(), "s1")
	var limitErr *SpendingLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "s1", limitErr.SessionID)
	assert.InDelta(t, 5.0, limitErr.LimitUSD, 1e-9)
}

func TestRecordUsage_Accumulates(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore(&entity.ChatSession{ID: "s1"})
	tracker := NewSessionCostTracker(store, DefaultPriceTable(), "deepseek-chat", 10)

	cost, err := tracker.RecordUsage(ctx, "s1", Usage{PromptTokens: 1000, CachedTokens: 200, CompletionTokens: 100})
	require.NoError(t, err)
	assert.InDelta(t, 800*0.28/1e6+200*0.028/1e6+100*0.42/1e6, cost, 1e-12)

	_, err = tracker.RecordUsage(ctx, "s1", Usage{PromptTokens: 10, CompletionTokens: 5})
	require.NoError(t, err)

	acc, err := tracker.Account(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1115, acc.TotalTokens)
	assert.EqualValues(t, 200, acc.CachedTokens)
	assert.Greater(t, acc.EstimatedCostUSD, cost)
}

func TestRecordUsage_ZeroUsageAddsNothing(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore(&entity.ChatSession{ID: "s1", TotalCostUSD: 1.5})
	tracker := NewSessionCostTracker(store, DefaultPriceTable(), "deepseek-chat", 10)

	cost, err := tracker.RecordUsage(ctx, "s1", Usage{})
	require.NoError(t, err)
	assert.Zero(t, cost)

	acc, _ := tracker.Account(ctx, "s1")
	assert.InDelta(t, 1.5, acc.EstimatedCostUSD, 1e-12)
}

func TestRecordUsage_Errors(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore(&entity.ChatSession{ID: "s1"})
	tracker := NewSessionCostTracker(store, DefaultPriceTable(), "deepseek-chat", 10)

	_, err := tracker.RecordUsage(ctx, "", Usage{})
	assert.Error(t, err)
	_, err = tracker.RecordUsage(ctx, "s1", Usage{PromptTokens: -1})
	assert.Error(t, err)
	_, err = tracker.RecordUsage(ctx, "missing", Usage{PromptTokens: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	store.addErr = errors.New("db down")
	_, err = tracker.RecordUsage(ctx, "s1", Usage{PromptTokens: 1})
	assert.ErrorContains(t, err, "db down")
}

type fakeUsageRepo struct {
	events []*entity.LLMUsageEvent
	err    error
}

func (r *fakeUsageRepo) Create(_ context.Context, e *entity.LLMUsageEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *fakeUsageRepo) SumCostBySession(_ context.Context, sessionID string) (float64, error) {
	total := 0.0
	for _, e := range r.events {
		if e.SessionID == sessionID {
			total += e.CostUSD
		}
	}
	return total, nil
}

func TestLLMUsageRecorder_Record(t *testing.T) {
	ctx := context.Background()
	repo := &fakeUsageRepo{}
	rec := NewLLMUsageRecorder(repo)

	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{
		SessionID:        " s1 ",
		Operation:        "answer",
		Provider:         "deepseek",
		Model:            "deepseek-chat",
		PromptTokens:     10,
		CachedTokens:     2,
		CompletionTokens: 5,
		CostUSD:          0.001,
		DurationMs:       1200,
	}))
	require.Len(t, repo.events, 1)
	assert.Equal(t, "s1", repo.events[0].SessionID)
	assert.Equal(t, "answer", repo.events[0].Operation)
	assert.Equal(t, 2, repo.events[0].TokensCached)

	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{}), "events without session are skipped")
	assert.Len(t, repo.events, 1)

	assert.Error(t, rec.Record(ctx, service.LLMUsageInput{SessionID: "s1", PromptTokens: -1}))

	repo.err = errors.New("insert failed")
	assert.NoError(t, rec.Record(ctx, service.LLMUsageInput{SessionID: "s1"}), "storage failures are best-effort")
}
