package cache

import (
	"context"
	"fmt"
)

// SummaryInvalidator 文档摘要的外部缓存
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, documentID string) error
}

// DocumentInvalidator 文档变更后统一失效回答缓存与摘要缓存
type DocumentInvalidator struct {
	responses *ResponseCache
	summaries SummaryInvalidator
}

// NewDocumentInvalidator summaries 可为空
func NewDocumentInvalidator(responses *ResponseCache, summaries SummaryInvalidator) *DocumentInvalidator {
	return &DocumentInvalidator{responses: responses, summaries: summaries}
}

// InvalidateDocument 返回删除的回答条目数；摘要失效失败时回答缓存仍已清理
func (d *DocumentInvalidator) InvalidateDocument(ctx context.Context, documentID string) (int, error) {
	removed := 0
	if d.responses != nil {
		removed = d.responses.InvalidateDocument(ctx, documentID)
	}
	if d.summaries != nil {
		if err := d.summaries.Invalidate(ctx, documentID); err != nil {
			return removed, fmt.Errorf("invalidate summary for %s: %w", documentID, err)
		}
	}
	return removed, nil
}
