package entity

import "time"

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document 已上传文档，由摄取流程写入，本服务只读
type Document struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	Title      string         `json:"title" gorm:"type:varchar(512);not null"`
	Summary    string         `json:"summary" gorm:"type:text"`
	Status     DocumentStatus `json:"status" gorm:"type:varchar(16);not null;default:'processing'"`
	ChunkCount int            `json:"chunk_count" gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}
