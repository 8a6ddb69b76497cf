// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession 问答会话，同时承载会话级的 token 与花费累计
type ChatSession struct {
	ID           string    `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID   *string   `json:"document_id,omitempty" gorm:"type:uuid;index"`
	MessageCount int       `json:"message_count" gorm:"not null;default:0"`
	TotalTokens  int64     `json:"total_tokens" gorm:"not null;default:0"`
	CachedTokens int64     `json:"cached_tokens" gorm:"not null;default:0"`
	TotalCostUSD float64   `json:"total_cost_usd" gorm:"type:numeric(12,6);not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// NewChatSession 创建会话，documentID 为空表示未关联文档
func NewChatSession(documentID string) *ChatSession {
	now := time.Now()
	s := &ChatSession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if documentID != "" {
		s.DocumentID = &documentID
	}
	return s
}

// DocumentIDValue 返回关联文档 ID，未关联时为空串
func (s *ChatSession) DocumentIDValue() string {
	if s == nil || s.DocumentID == nil {
		return ""
	}
	return *s.DocumentID
}

// UsageDelta 一次生成后对会话累计值的增量
type UsageDelta struct {
	Messages     int
	Tokens       int64
	CachedTokens int64
	CostUSD      float64
}
