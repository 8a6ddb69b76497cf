package repository

import (
	"context"

	"docqa-rag-api/internal/domain/entity"
)

// ChatSessionRepository 会话存储
type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	// GetByID 不存在时返回 ErrNotFound
	GetByID(ctx context.Context, id string) (*entity.ChatSession, error)
	// List 按更新时间倒序
	List(ctx context.Context, page Page) ([]*entity.ChatSession, error)
	// Delete 级联删除消息，不存在时返回 ErrNotFound
	Delete(ctx context.Context, id string) error
	// AddUsage 原子累加会话的消息数、token 与花费
	AddUsage(ctx context.Context, id string, delta entity.UsageDelta) error
}

// ChatMessageRepository 消息存储
type ChatMessageRepository interface {
	Create(ctx context.Context, msg *entity.ChatMessage) error
	// ListBySession 按创建时间正序分页
	ListBySession(ctx context.Context, sessionID string, page Page) ([]*entity.ChatMessage, error)
	// ListRecent 取最近 limit 条，按创建时间正序返回
	ListRecent(ctx context.Context, sessionID string, limit int) ([]*entity.ChatMessage, error)
}
