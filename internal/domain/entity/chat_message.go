package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage 会话中的一条消息
type ChatMessage struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID string          `json:"session_id" gorm:"type:uuid;index:idx_chat_messages_session_created,priority:1;not null"`
	Role      Role            `json:"role" gorm:"type:varchar(16);not null"`
	Content   string          `json:"content" gorm:"type:text;not null"`
	Metadata  json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at" gorm:"index:idx_chat_messages_session_created,priority:2;autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// MessageSource 助手消息引用的片段
type MessageSource struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
}

// FocusSnapshot 用户消息发送时的阅读焦点
type FocusSnapshot struct {
	DocumentID      string `json:"document_id"`
	StartChar       int    `json:"start_char"`
	EndChar         int    `json:"end_char"`
	SurroundingText string `json:"surrounding_text"`
}

// MessageMetadata 消息的附加信息，序列化到 jsonb
type MessageMetadata struct {
	FocusContext *FocusSnapshot  `json:"focus_context,omitempty"`
	Sources      []MessageSource `json:"sources,omitempty"`
	TokenCount   int             `json:"token_count,omitempty"`
	CostUSD      float64         `json:"cost_usd,omitempty"`
	Cached       bool            `json:"cached,omitempty"`
	Interrupted  bool            `json:"interrupted,omitempty"`
}

// NewChatMessage 创建消息
func NewChatMessage(sessionID string, role Role, content string, meta *MessageMetadata) *ChatMessage {
	msg := &ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			msg.Metadata = raw
		}
	}
	return msg
}

// DecodeMetadata 解析附加信息，为空或损坏时返回零值
func (m *ChatMessage) DecodeMetadata() MessageMetadata {
	var meta MessageMetadata
	if len(m.Metadata) == 0 {
		return meta
	}
	_ = json.Unmarshal(m.Metadata, &meta)
	return meta
}
