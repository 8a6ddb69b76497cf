package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
)

type DocumentRepository struct {
	client *Client
}

func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	var doc entity.Document
	if err := getDB(ctx, r.client.db).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetTitles(ctx context.Context, ids []string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetTitles")
	defer span.End()

	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID    string
		Title string
	}
	if err := getDB(ctx, r.client.db).Model(&entity.Document{}).
		Select("id, title").
		Where("id IN ?", ids).
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document titles: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = row.Title
	}
	return out, nil
}

// DocumentSummary 实现 retrieval.SummaryProvider，通常由 Redis 缓存包装
func (r *DocumentRepository) DocumentSummary(ctx context.Context, documentID string) (string, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.DocumentSummary")
	defer span.End()

	var summary string
	result := getDB(ctx, r.client.db).Model(&entity.Document{}).
		Select("summary").
		Where("id = ?", documentID).
		Limit(1).
		Scan(&summary)
	if result.Error != nil {
		span.RecordError(result.Error)
		return "", fmt.Errorf("failed to get document summary: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", repository.ErrNotFound
	}
	return summary, nil
}
