package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

func TestChatSessionRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStore(time.Hour)
	sessions := NewChatSessionRepository(store)

	s := entity.NewChatSession("")
	require.NoError(t, sessions.Create(ctx, s))

	got, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	require.NoError(t, sessions.AddUsage(ctx, s.ID, entity.UsageDelta{Messages: 1, Tokens: 100, CachedTokens: 10, CostUSD: 0.5}))
	require.NoError(t, sessions.AddUsage(ctx, s.ID, entity.UsageDelta{Tokens: 15, CostUSD: 0.25}))
	got, err = sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
	assert.EqualValues(t, 115, got.TotalTokens)
	assert.EqualValues(t, 10, got.CachedTokens)
	assert.InDelta(t, 0.75, got.TotalCostUSD, 1e-9)

	require.NoError(t, sessions.Delete(ctx, s.ID))
	_, err = sessions.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, sessions.Delete(ctx, s.ID), repository.ErrNotFound)
	assert.ErrorIs(t, sessions.AddUsage(ctx, s.ID, entity.UsageDelta{Messages: 1}), repository.ErrNotFound)
}

func TestChatSessionRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	sessions := NewChatSessionRepository(NewStore(time.Hour))
	s := entity.NewChatSession("")
	require.NoError(t, sessions.Create(ctx, s))

	got, _ := sessions.GetByID(ctx, s.ID)
	got.MessageCount = 99

	again, _ := sessions.GetByID(ctx, s.ID)
	assert.Equal(t, 0, again.MessageCount)
}

func TestChatSessionRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	sessions := NewChatSessionRepository(NewStore(time.Hour))

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		s := entity.NewChatSession("")
		s.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, sessions.Create(ctx, s))
		ids = append(ids, s.ID)
	}

	list, err := sessions.List(ctx, repository.Page{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)

	page, err := sessions.List(ctx, repository.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	empty, err := sessions.List(ctx, repository.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChatMessageRepository_OrderAndRecent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(time.Hour)
	sessions := NewChatSessionRepository(store)
	messages := NewChatMessageRepository(store)

	s := entity.NewChatSession("")
	require.NoError(t, sessions.Create(ctx, s))
	for _, c := range []string{"a", "b", "c", "d"} {
		require.NoError(t, messages.Create(ctx, entity.NewChatMessage(s.ID, entity.RoleUser, c, nil)))
	}

	all, err := messages.ListBySession(ctx, s.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Content)

	recent, err := messages.ListRecent(ctx, s.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "d", recent[1].Content)

	assert.ErrorIs(t, messages.Create(ctx, entity.NewChatMessage("missing", entity.RoleUser, "x", nil)), repository.ErrNotFound)

	require.NoError(t, sessions.Delete(ctx, s.ID))
	gone, err := messages.ListRecent(ctx, s.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestStore_SessionsExpire(t *testing.T) {
	ctx := context.Background()
	sessions := NewChatSessionRepository(NewStore(20 * time.Millisecond))
	s := entity.NewChatSession("")
	require.NoError(t, sessions.Create(ctx, s))

	time.Sleep(40 * time.Millisecond)
	_, err := sessions.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	docs := NewDocumentRepository(NewStore(time.Hour))
	docs.Put(&entity.Document{ID: "d1", Title: "Handbook", Summary: "An employee handbook."})

	titles, err := docs.GetTitles(ctx, []string{"d1", "d2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"d1": "Handbook"}, titles)

	summary, err := docs.DocumentSummary(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "An employee handbook.", summary)

	docs.Remove("d1")
	_, err = docs.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLLMUsageEventRepository_SumCost(t *testing.T) {
	ctx := context.Background()
	repo := NewLLMUsageEventRepository(NewStore(time.Hour))
	require.NoError(t, repo.Create(ctx, &entity.LLMUsageEvent{SessionID: "s1", CostUSD: 0.1}))
	require.NoError(t, repo.Create(ctx, &entity.LLMUsageEvent{SessionID: "s1", CostUSD: 0.2}))
	require.NoError(t, repo.Create(ctx, &entity.LLMUsageEvent{SessionID: "s2", CostUSD: 5}))

	total, err := repo.SumCostBySession(ctx, "s1")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, total, 1e-9)
}
