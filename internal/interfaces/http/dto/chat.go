package dto

import (
	"time"

	"docqa-rag-api/internal/application/chat"
	"docqa-rag-api/internal/domain/entity"
)

// CreateSessionRequest 创建会话请求，document_id 可选
type CreateSessionRequest struct {
	DocumentID *string `json:"document_id"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Message      string           `json:"message"`
	FocusContext *chat.FocusInput `json:"focus_context,omitempty"`
}

// SessionResponse 会话
type SessionResponse struct {
	ID           string  `json:"id"`
	DocumentID   *string `json:"document_id"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	MessageCount int     `json:"message_count"`
}

// SessionListResponse 会话列表
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// MessageResponse 单条消息
type MessageResponse struct {
	ID          string                 `json:"id"`
	Role        string                 `json:"role"`
	Content     string                 `json:"content"`
	CreatedAt   string                 `json:"created_at"`
	Sources     []entity.MessageSource `json:"sources,omitempty"`
	Interrupted bool                   `json:"interrupted,omitempty"`
}

// SessionDetailResponse 会话与最近消息
type SessionDetailResponse struct {
	SessionResponse
	Messages []*MessageResponse `json:"messages"`
}

// MessageListResponse 消息列表
type MessageListResponse struct {
	Messages []*MessageResponse `json:"messages"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// SessionStatsResponse 会话用量统计
type SessionStatsResponse struct {
	SessionID     string  `json:"session_id"`
	TotalMessages int     `json:"total_messages"`
	TotalTokens   int64   `json:"total_tokens"`
	CachedTokens  int64   `json:"cached_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ToSessionResponse 实体转响应
func ToSessionResponse(s *entity.ChatSession) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID,
		DocumentID:   s.DocumentID,
		CreatedAt:    formatTime(s.CreatedAt),
		UpdatedAt:    formatTime(s.UpdatedAt),
		MessageCount: s.MessageCount,
	}
}

// ToSessionListResponse 会话列表转响应
func ToSessionListResponse(sessions []*entity.ChatSession, page PageRequest) *SessionListResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ToSessionResponse(s))
	}
	return &SessionListResponse{Sessions: out, Total: len(out), Limit: page.Limit, Offset: page.Offset}
}

// ToMessageResponse 消息转响应，来源与中断标记取自元数据
func ToMessageResponse(m *entity.ChatMessage) *MessageResponse {
	meta := m.DecodeMetadata()
	return &MessageResponse{
		ID:          m.ID,
		Role:        string(m.Role),
		Content:     m.Content,
		CreatedAt:   formatTime(m.CreatedAt),
		Sources:     meta.Sources,
		Interrupted: meta.Interrupted,
	}
}

func toMessageResponses(msgs []*entity.ChatMessage) []*MessageResponse {
	out := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToMessageResponse(m))
	}
	return out
}

// ToSessionDetailResponse 会话详情转响应
func ToSessionDetailResponse(d *chat.SessionDetail) *SessionDetailResponse {
	return &SessionDetailResponse{
		SessionResponse: *ToSessionResponse(d.Session),
		Messages:        toMessageResponses(d.Messages),
	}
}

// ToMessageListResponse 消息分页转响应
func ToMessageListResponse(msgs []*entity.ChatMessage, page PageRequest) *MessageListResponse {
	out := toMessageResponses(msgs)
	return &MessageListResponse{Messages: out, Total: len(out), Limit: page.Limit, Offset: page.Offset}
}

// ToSessionStatsResponse 统计转响应
func ToSessionStatsResponse(s *chat.SessionStats) *SessionStatsResponse {
	return &SessionStatsResponse{
		SessionID:     s.SessionID,
		TotalMessages: s.TotalMessages,
		TotalTokens:   s.TotalTokens,
		CachedTokens:  s.CachedTokens,
		TotalCostUSD:  s.TotalCostUSD,
	}
}
