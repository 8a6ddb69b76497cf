package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"docqa-rag-api/internal/application/cache"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/infrastructure/messaging"
	"docqa-rag-api/internal/interfaces/http/dto"
	"docqa-rag-api/pkg/logger"
)

// DocumentInvalidator 本地文档缓存失效
type DocumentInvalidator interface {
	InvalidateDocument(ctx context.Context, documentID string) (int, error)
}

// DocumentEventPublisher 向其它实例广播文档变更
type DocumentEventPublisher interface {
	PublishDocumentEvent(ctx context.Context, msgType string, event *messaging.DocumentEvent) (string, error)
}

// AdminHandler RAG 运行状态与缓存运维
type AdminHandler struct {
	responses   *cache.ResponseCache
	breaker     *resilience.CircuitBreaker
	invalidator DocumentInvalidator
	publisher   DocumentEventPublisher
}

// NewAdminHandler publisher 为空时只做本地失效
func NewAdminHandler(responses *cache.ResponseCache, breaker *resilience.CircuitBreaker, invalidator DocumentInvalidator, publisher DocumentEventPublisher) *AdminHandler {
	return &AdminHandler{
		responses:   responses,
		breaker:     breaker,
		invalidator: invalidator,
		publisher:   publisher,
	}
}

// RAGStatusResponse 缓存与熔断状态
type RAGStatusResponse struct {
	Cache          cache.Stats                `json:"cache"`
	CircuitBreaker resilience.CircuitSnapshot `json:"circuit_breaker"`
}

// InvalidateResponse 失效结果
type InvalidateResponse struct {
	DocumentID         string `json:"document_id"`
	EntriesInvalidated int    `json:"entries_invalidated"`
	Published          bool   `json:"published"`
}

// ClearCacheResponse 清空结果
type ClearCacheResponse struct {
	EntriesRemoved int `json:"entries_removed"`
}

// Status RAG 状态
// @Router /api/v1/admin/rag/status [get]
func (h *AdminHandler) Status(c *gin.Context) {
	dto.Success(c, RAGStatusResponse{
		Cache:          h.responses.Stats(),
		CircuitBreaker: h.breaker.Snapshot(),
	})
}

// InvalidateDocument 失效文档相关缓存并广播事件
// @Router /api/v1/admin/documents/{id}/invalidate [post]
func (h *AdminHandler) InvalidateDocument(c *gin.Context) {
	ctx := c.Request.Context()
	docID := strings.ToLower(strings.TrimSpace(dto.BindDocumentID(c)))
	if docID == "" {
		dto.BadRequest(c, "document id is required")
		return
	}

	removed, err := h.invalidator.InvalidateDocument(ctx, docID)
	if err != nil {
		// 回答缓存已清理，摘要缓存失败只记录
		logger.Error(ctx, "failed to invalidate document caches", err, "document_id", docID)
	}

	resp := InvalidateResponse{DocumentID: docID, EntriesInvalidated: removed}
	if h.publisher != nil {
		if _, err := h.publisher.PublishDocumentEvent(ctx, messaging.TypeDocumentUpdated, &messaging.DocumentEvent{DocumentID: docID}); err != nil {
			logger.Error(ctx, "failed to publish document event", err, "document_id", docID)
		} else {
			resp.Published = true
		}
	}
	dto.Success(c, resp)
}

// ResetCircuitBreaker 强制熔断器回到 Closed
// @Router /api/v1/admin/rag/circuit-breaker/reset [post]
func (h *AdminHandler) ResetCircuitBreaker(c *gin.Context) {
	ctx := c.Request.Context()
	before := h.breaker.Snapshot()
	h.breaker.Reset()
	logger.Warn(ctx, "circuit breaker reset by admin", "name", before.Name, "previous_state", before.StateName)
	dto.Success(c, h.breaker.Snapshot())
}

// ClearCache 清空回答缓存
// @Router /api/v1/admin/cache [delete]
func (h *AdminHandler) ClearCache(c *gin.Context) {
	n := h.responses.Clear(c.Request.Context())
	dto.Success(c, ClearCacheResponse{EntriesRemoved: n})
}
