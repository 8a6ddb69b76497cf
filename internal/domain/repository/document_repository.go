package repository

import (
	"context"

	"docqa-rag-api/internal/domain/entity"
)

// DocumentRepository 文档元数据只读访问
type DocumentRepository interface {
	// GetByID 不存在时返回 ErrNotFound
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	// GetTitles 批量获取标题，缺失的 ID 不出现在结果中
	GetTitles(ctx context.Context, ids []string) (map[string]string, error)
}
