// Package messaging 基于 Redis Streams 的文档事件收发
package messaging

import (
	"encoding/json"
	"time"
)

// 文档事件类型
const (
	TypeDocumentUpdated = "document.updated"
	TypeDocumentDeleted = "document.deleted"
)

// Message 消息结构
type Message struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	DocumentID string            `json:"document_id"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewMessage 创建新消息，payload 为空时不序列化
func NewMessage(id, msgType, documentID string, payload any) (*Message, error) {
	msg := &Message{
		ID:         id,
		Type:       msgType,
		DocumentID: documentID,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = b
	}
	return msg, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// DocumentEvent 文档变更事件载荷
type DocumentEvent struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Version    int    `json:"version,omitempty"`
}

// Stream 流定义
type Stream string

const (
	StreamDocumentEvents Stream = "stream:documents:events"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupRAGAPI ConsumerGroup = "cg-rag-api"
)

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 计算第 retryCount 次重试前的等待时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			return c.Max
		}
	}
	return backoff
}
