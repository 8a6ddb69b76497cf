package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorDisabled 表示向量检索能力未配置（Milvus 或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
)

// RetrievalError 向量库不可达或查询失败
type RetrievalError struct {
	DocumentID string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("vector search failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// EmbeddingError 查询向量化失败
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
