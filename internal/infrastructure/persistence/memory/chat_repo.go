package memory

import (
	"context"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

type sessionRecord struct {
	session  entity.ChatSession
	messages []*entity.ChatMessage
}

// ChatSessionRepository 会话仓储
type ChatSessionRepository struct {
	store *Store
}

func NewChatSessionRepository(store *Store) *ChatSessionRepository {
	return &ChatSessionRepository{store: store}
}

// Create 创建会话
func (r *ChatSessionRepository) Create(_ context.Context, session *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.sessions.Set(session.ID, &sessionRecord{session: *session}, cache.DefaultExpiration)
	return nil
}

// GetByID 返回副本
func (r *ChatSessionRepository) GetByID(_ context.Context, id string) (*entity.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	s := rec.session
	return &s, nil
}

// List 按更新时间倒序
func (r *ChatSessionRepository) List(_ context.Context, page repository.Page) ([]*entity.ChatSession, error) {
	r.store.mu.Lock()
	items := r.store.sessions.Items()
	out := make([]*entity.ChatSession, 0, len(items))
	for _, item := range items {
		s := item.Object.(*sessionRecord).session
		out = append(out, &s)
	}
	r.store.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return paginate(out, page), nil
}

// Delete 会话与消息一起删除
func (r *ChatSessionRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.get(id); !ok {
		return repository.ErrNotFound
	}
	r.store.sessions.Delete(id)
	return nil
}

// AddUsage 累加计数并刷新过期时间
func (r *ChatSessionRepository) AddUsage(_ context.Context, id string, delta entity.UsageDelta) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.get(id)
	if !ok {
		return repository.ErrNotFound
	}
	rec.session.MessageCount += delta.Messages
	rec.session.TotalTokens += delta.Tokens
	rec.session.CachedTokens += delta.CachedTokens
	rec.session.TotalCostUSD += delta.CostUSD
	rec.session.UpdatedAt = time.Now()
	r.store.sessions.Set(id, rec, cache.DefaultExpiration)
	return nil
}

// ChatMessageRepository 消息仓储，消息挂在会话记录上
type ChatMessageRepository struct {
	store *Store
}

func NewChatMessageRepository(store *Store) *ChatMessageRepository {
	return &ChatMessageRepository{store: store}
}

// Create 追加消息，会话不存在时返回 ErrNotFound
func (r *ChatMessageRepository) Create(_ context.Context, msg *entity.ChatMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.get(msg.SessionID)
	if !ok {
		return repository.ErrNotFound
	}
	m := *msg
	rec.messages = append(rec.messages, &m)
	rec.session.UpdatedAt = time.Now()
	r.store.sessions.Set(msg.SessionID, rec, cache.DefaultExpiration)
	return nil
}

// ListBySession 按创建时间正序分页
func (r *ChatMessageRepository) ListBySession(_ context.Context, sessionID string, page repository.Page) ([]*entity.ChatMessage, error) {
	msgs, err := r.snapshot(sessionID)
	if err != nil {
		return nil, err
	}
	return paginate(msgs, page), nil
}

// ListRecent 取最近 limit 条，正序返回
func (r *ChatMessageRepository) ListRecent(_ context.Context, sessionID string, limit int) ([]*entity.ChatMessage, error) {
	msgs, err := r.snapshot(sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (r *ChatMessageRepository) snapshot(sessionID string) ([]*entity.ChatMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.get(sessionID)
	if !ok {
		return []*entity.ChatMessage{}, nil
	}
	out := make([]*entity.ChatMessage, len(rec.messages))
	for i, m := range rec.messages {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// get 调用方需持有 store.mu
func (s *Store) get(id string) (*sessionRecord, bool) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*sessionRecord), true
}

func paginate[T any](items []T, page repository.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
