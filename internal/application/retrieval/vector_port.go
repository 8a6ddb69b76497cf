package retrieval

import "context"

// VectorSearcher 定义应用层对“向量检索”的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorSearcher interface {
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
}

type VectorSearchParams struct {
	DocumentID  string
	QueryVector []float32
	TopK        int
}

// VectorSearchResult Distance 为 COSINE 距离，相似度 = 1 - Distance
type VectorSearchResult struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Text          string
	Distance      float32

	ChunkIndex int
	StartChar  int
	EndChar    int
	TokenCount int
}

// SummaryProvider 文档级摘要，召回为空时兜底
type SummaryProvider interface {
	DocumentSummary(ctx context.Context, documentID string) (string, error)
}
