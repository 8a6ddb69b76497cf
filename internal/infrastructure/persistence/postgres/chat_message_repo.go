package postgres

import (
	"context"
	"fmt"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

type ChatMessageRepository struct {
	client *Client
}

func NewChatMessageRepository(client *Client) *ChatMessageRepository {
	return &ChatMessageRepository{client: client}
}

func (r *ChatMessageRepository) Create(ctx context.Context, msg *entity.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatMessageRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(msg).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

func (r *ChatMessageRepository) ListBySession(ctx context.Context, sessionID string, page repository.Page) ([]*entity.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatMessageRepository.ListBySession")
	defer span.End()

	query := getDB(ctx, r.client.db).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Offset(page.Offset)
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	var msgs []*entity.ChatMessage
	if err := query.Find(&msgs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	return msgs, nil
}

// ListRecent 倒序取最近 limit 条后反转为正序
func (r *ChatMessageRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]*entity.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatMessageRepository.ListRecent")
	defer span.End()

	var msgs []*entity.ChatMessage
	if err := getDB(ctx, r.client.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent chat messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
