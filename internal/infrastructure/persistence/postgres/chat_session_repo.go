package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

type ChatSessionRepository struct {
	client *Client
}

func NewChatSessionRepository(client *Client) *ChatSessionRepository {
	return &ChatSessionRepository{client: client}
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *entity.ChatSession) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatSessionRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) GetByID(ctx context.Context, id string) (*entity.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatSessionRepository.GetByID")
	defer span.End()

	var session entity.ChatSession
	if err := getDB(ctx, r.client.db).First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) List(ctx context.Context, page repository.Page) ([]*entity.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChatSessionRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.ChatSession{}).
		Order("updated_at DESC").
		Offset(page.Offset)
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	var sessions []*entity.ChatSession
	if err := query.Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	return sessions, nil
}

// Delete 消息由外键级联删除
func (r *ChatSessionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatSessionRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("session_id = ?", id).Delete(&entity.ChatMessage{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	result := db.Delete(&entity.ChatSession{}, "id = ?", id)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to delete chat session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddUsage 单条 UPDATE 原子累加，避免并发流互相覆盖
func (r *ChatSessionRepository) AddUsage(ctx context.Context, id string, delta entity.UsageDelta) error {
	ctx, span := tracer.Start(ctx, "postgres.ChatSessionRepository.AddUsage")
	defer span.End()

	result := getDB(ctx, r.client.db).Model(&entity.ChatSession{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"message_count":  gorm.Expr("message_count + ?", delta.Messages),
			"total_tokens":   gorm.Expr("total_tokens + ?", delta.Tokens),
			"cached_tokens":  gorm.Expr("cached_tokens + ?", delta.CachedTokens),
			"total_cost_usd": gorm.Expr("total_cost_usd + ?", delta.CostUSD),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to add session usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
