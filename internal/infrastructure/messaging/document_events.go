package messaging

import (
	"context"
	"strings"

	"docqa-rag-api/pkg/logger"
)

// DocumentInvalidator 文档变更时需要失效的缓存
type DocumentInvalidator interface {
	InvalidateDocument(ctx context.Context, documentID string) (int, error)
}

// RegisterDocumentHandlers 为文档更新与删除事件挂载缓存失效处理器
func RegisterDocumentHandlers(c *Consumer, inv DocumentInvalidator) {
	h := documentEventHandler(inv)
	c.RegisterHandler(TypeDocumentUpdated, h)
	c.RegisterHandler(TypeDocumentDeleted, h)
}

func documentEventHandler(inv DocumentInvalidator) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		docID := strings.TrimSpace(msg.DocumentID)
		if docID == "" && len(msg.Payload) > 0 {
			var ev DocumentEvent
			if err := msg.UnmarshalPayload(&ev); err == nil {
				docID = strings.TrimSpace(ev.DocumentID)
			}
		}
		if docID == "" {
			logger.Warn(ctx, "document event without document_id", "message_id", msg.ID, "type", msg.Type)
			return nil
		}

		removed, err := inv.InvalidateDocument(ctx, strings.ToLower(docID))
		if err != nil {
			return err
		}
		logger.Info(ctx, "document caches invalidated",
			"type", msg.Type,
			"document_id", docID,
			"entries_invalidated", removed,
		)
		return nil
	}
}
