package retrieval

// CharRange 块在原文中的字符区间，闭区间
type CharRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps 与 [start, end] 是否有交集
func (r CharRange) Overlaps(start, end int) bool {
	return r.Start <= end && r.End >= start
}

// RetrievedChunk 一次请求内的召回块，创建后不再修改
type RetrievedChunk struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Text          string

	BaseSimilarity float64
	// BoostedSimilarity 派生值，不落库
	BoostedSimilarity float64

	ChunkIndex int
	CharRange  CharRange
	TokenCount int
}

// FocusContext 用户当前阅读位置，仅在本次请求内有效
type FocusContext struct {
	DocumentID      string
	StartChar       int
	EndChar         int
	SurroundingText string
}

// RetrieveRequest 检索输入
type RetrieveRequest struct {
	Query      string
	DocumentID string
	Focus      *FocusContext
	TopK       int

	// SimilarityThreshold 原始相似度阈值，先过滤再加权
	SimilarityThreshold float64
}

type DebugInfo struct {
	EmbeddingTimeMs    int64
	VectorSearchTimeMs int64
	TotalCandidates    int
	FilteredCandidates int
	BoostedCandidates  int
}

// RankedChunks 检索结果，Chunks 按 BoostedSimilarity 降序
type RankedChunks struct {
	Chunks []RetrievedChunk

	// Summary 无块可用时回退的文档摘要
	Summary      string
	UsedFallback bool

	DisabledReason string
	Debug          *DebugInfo
}

// Empty 既无块也无摘要
func (r *RankedChunks) Empty() bool {
	return r == nil || (len(r.Chunks) == 0 && r.Summary == "")
}
