package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa-rag-api/internal/application/chat"
	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/interfaces/http/dto"
	apperrors "docqa-rag-api/pkg/errors"
	"docqa-rag-api/pkg/logger"
)

// ChatService 会话与问答用例
type ChatService interface {
	CreateSession(ctx context.Context, documentID string) (*entity.ChatSession, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*entity.ChatSession, error)
	GetSession(ctx context.Context, id string) (*chat.SessionDetail, error)
	DeleteSession(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (*chat.SessionStats, error)
	ListMessages(ctx context.Context, id string, limit, offset int) ([]*entity.ChatMessage, error)
	SendMessage(ctx context.Context, in chat.SendMessageInput) (<-chan generation.Event, error)
}

// ChatHandler 会话接口与 SSE 问答
type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// CreateSession 创建会话
// @Summary 创建会话
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest false "可选关联文档"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions [post]
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		dto.UnprocessableEntity(c, "invalid request body", &dto.ErrorDetail{Details: err.Error()})
		return
	}
	documentID := ""
	if req.DocumentID != nil {
		documentID = *req.DocumentID
	}

	session, err := h.svc.CreateSession(c.Request.Context(), documentID)
	if err != nil {
		writeError(c, err, "failed to create session")
		return
	}
	dto.Created(c, dto.ToSessionResponse(session))
}

// ListSessions 会话列表，按最近更新倒序
// @Router /api/v1/chat/sessions [get]
func (h *ChatHandler) ListSessions(c *gin.Context) {
	page := dto.BindPage(c, chat.DefaultMessagePageSize)
	sessions, err := h.svc.ListSessions(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		writeError(c, err, "failed to list sessions")
		return
	}
	dto.Success(c, dto.ToSessionListResponse(sessions, page))
}

// GetSession 会话详情与最近消息
// @Router /api/v1/chat/sessions/{sid} [get]
func (h *ChatHandler) GetSession(c *gin.Context) {
	detail, err := h.svc.GetSession(c.Request.Context(), dto.BindSessionID(c))
	if err != nil {
		writeError(c, err, "failed to get session")
		return
	}
	dto.Success(c, dto.ToSessionDetailResponse(detail))
}

// DeleteSession 删除会话及其消息
// @Router /api/v1/chat/sessions/{sid} [delete]
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), dto.BindSessionID(c)); err != nil {
		writeError(c, err, "failed to delete session")
		return
	}
	dto.NoContent(c)
}

// SessionStats 会话用量
// @Router /api/v1/chat/sessions/{sid}/stats [get]
func (h *ChatHandler) SessionStats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), dto.BindSessionID(c))
	if err != nil {
		writeError(c, err, "failed to get session stats")
		return
	}
	dto.Success(c, dto.ToSessionStatsResponse(stats))
}

// ListMessages 会话消息分页，按时间正序
// @Router /api/v1/chat/sessions/{sid}/messages [get]
func (h *ChatHandler) ListMessages(c *gin.Context) {
	page := dto.BindPage(c, chat.DefaultMessagePageSize)
	msgs, err := h.svc.ListMessages(c.Request.Context(), dto.BindSessionID(c), page.Limit, page.Offset)
	if err != nil {
		writeError(c, err, "failed to list messages")
		return
	}
	dto.Success(c, dto.ToMessageListResponse(msgs, page))
}

// SendMessage 发送消息并以 SSE 返回 token/source/done/error 事件
// 请求体不合法返回 422；其余开流前的失败以单个 error 事件返回
// @Summary 发送消息（流式）
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param sid path string true "会话 ID"
// @Param body body dto.SendMessageRequest true "消息"
// @Success 200 "SSE stream"
// @Failure 422 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions/{sid}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.UnprocessableEntity(c, "invalid request body", &dto.ErrorDetail{Details: err.Error()})
		return
	}

	ctx := c.Request.Context()
	events, err := h.svc.SendMessage(ctx, chat.SendMessageInput{
		SessionID: dto.BindSessionID(c),
		Message:   req.Message,
		Focus:     req.FocusContext,
	})
	if err != nil {
		if chat.IsValidationError(err) {
			writeError(c, err, "invalid message")
			return
		}
		logger.Warn(ctx, "message rejected before streaming", "error", err)
		setSSEHeaders(c)
		c.SSEvent(dto.SSEError, dto.ErrorPayload{Error: streamErrorMessage(err)})
		return
	}

	setSSEHeaders(c)
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			name, payload := dto.SSEEvent(ev)
			c.SSEvent(name, payload)
			return !ev.Terminal()
		case <-ctx.Done():
			return false
		}
	})
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// streamErrorMessage 资源不存在时使用其文案，其它错误统一映射
func streamErrorMessage(err error) string {
	if apperrors.HasCode(err, apperrors.CodeSessionNotFound) || apperrors.HasCode(err, apperrors.CodeDocumentNotFound) {
		return apperrors.AsAppError(err).Message
	}
	return generation.UserMessage(err)
}
