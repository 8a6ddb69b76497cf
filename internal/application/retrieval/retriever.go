package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/attribute"

	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
	"docqa-rag-api/pkg/tracer"
)

const (
	DefaultFocusBoost   = 0.15
	DefaultTopK         = 10
	DefaultMaxRetries   = 1
	maxTopK             = 50
	defaultRetryBackoff = 200 * time.Millisecond
)

// Config 检索参数
type Config struct {
	FocusBoost   float64
	RetryBackoff time.Duration
	// MaxRetries 嵌入与向量检索各自的重试次数，0 取默认值，负数关闭重试
	MaxRetries int
}

// FocusAwareRetriever 带焦点加权的单文档检索
type FocusAwareRetriever struct {
	embedder  embedding.Embedder
	vector    VectorSearcher
	summaries SummaryProvider
	cfg       Config
}

// NewFocusAwareRetriever embedder 或 vector 为空时检索降级为摘要兜底
func NewFocusAwareRetriever(embedder embedding.Embedder, vector VectorSearcher, summaries SummaryProvider, cfg Config) *FocusAwareRetriever {
	if cfg.FocusBoost <= 0 {
		cfg.FocusBoost = DefaultFocusBoost
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	return &FocusAwareRetriever{
		embedder:  embedder,
		vector:    vector,
		summaries: summaries,
		cfg:       cfg,
	}
}

func (r *FocusAwareRetriever) Enabled() bool {
	return r != nil && r.embedder != nil && r.vector != nil
}

// Retrieve 嵌入 -> 向量召回 -> 阈值过滤 -> 焦点加权 -> 稳定排序 -> 空结果回退摘要
func (r *FocusAwareRetriever) Retrieve(ctx context.Context, req RetrieveRequest) (*RankedChunks, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	req.Query = strings.TrimSpace(req.Query)
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if req.DocumentID == "" {
		return nil, fmt.Errorf("document_id is required")
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK > maxTopK {
		req.TopK = maxTopK
	}
	span.SetAttributes(
		attribute.String("document_id", req.DocumentID),
		attribute.Int("top_k", req.TopK),
		attribute.Bool("focus", req.Focus != nil),
	)

	start := time.Now()
	out := &RankedChunks{Debug: &DebugInfo{}}

	if !r.Enabled() {
		out.DisabledReason = ErrVectorDisabled.Error()
		r.fallback(ctx, req.DocumentID, out)
		metrics.RetrievalDuration.WithLabelValues("disabled").Observe(time.Since(start).Seconds())
		return out, nil
	}

	embedStart := time.Now()
	var vec []float32
	err := r.withRetry(ctx, "embed", func(ctx context.Context) error {
		v, err := r.embedQuery(ctx, req.Query)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RetrievalDuration.WithLabelValues("embedding_error").Observe(time.Since(start).Seconds())
		return nil, &EmbeddingError{Err: err}
	}
	out.Debug.EmbeddingTimeMs = time.Since(embedStart).Milliseconds()

	searchStart := time.Now()
	var results []*VectorSearchResult
	err = r.withRetry(ctx, "search", func(ctx context.Context) error {
		res, err := r.vector.SearchChunks(ctx, &VectorSearchParams{
			DocumentID:  req.DocumentID,
			QueryVector: vec,
			TopK:        req.TopK,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		tracer.RecordError(span, err)
		metrics.RetrievalDuration.WithLabelValues("search_error").Observe(time.Since(start).Seconds())
		return nil, &RetrievalError{DocumentID: req.DocumentID, Err: err}
	}
	out.Debug.VectorSearchTimeMs = time.Since(searchStart).Milliseconds()
	out.Debug.TotalCandidates = len(results)

	chunks := FilterByThreshold(toChunks(results, req.DocumentID), req.SimilarityThreshold)
	out.Debug.FilteredCandidates = len(chunks)

	out.Chunks = ApplyFocusBoost(chunks, req.Focus, r.cfg.FocusBoost)
	for _, c := range out.Chunks {
		if c.BoostedSimilarity > c.BaseSimilarity {
			out.Debug.BoostedCandidates++
		}
	}

	if len(out.Chunks) == 0 {
		r.fallback(ctx, req.DocumentID, out)
	}

	span.SetAttributes(
		attribute.Int("chunks", len(out.Chunks)),
		attribute.Bool("fallback", out.UsedFallback),
	)
	metrics.RetrievalDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	logger.Debug(ctx, "retrieval completed",
		"document_id", req.DocumentID,
		"candidates", out.Debug.TotalCandidates,
		"kept", len(out.Chunks),
		"boosted", out.Debug.BoostedCandidates,
		"fallback", out.UsedFallback,
		"embed_ms", out.Debug.EmbeddingTimeMs,
		"search_ms", out.Debug.VectorSearchTimeMs,
	)
	return out, nil
}

// fallback 回退到文档摘要，摘要失败只记录日志
func (r *FocusAwareRetriever) fallback(ctx context.Context, documentID string, out *RankedChunks) {
	out.UsedFallback = true
	metrics.RetrievalFallbackTotal.Inc()
	if r == nil || r.summaries == nil {
		return
	}
	summary, err := r.summaries.DocumentSummary(ctx, documentID)
	if err != nil {
		logger.Warn(ctx, "document summary fallback failed", "document_id", documentID, "error", err.Error())
		return
	}
	out.Summary = strings.TrimSpace(summary)
}

// withRetry 失败后按指数退避重试 MaxRetries 次，context 取消立即返回
func (r *FocusAwareRetriever) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.cfg.RetryBackoff << (attempt - 1)
			logger.Warn(ctx, "retrieval step failed, retrying",
				"op", op,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", err.Error(),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (r *FocusAwareRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	v64, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 || len(v64[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	vec := v64[0]
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out, nil
}

func toChunks(results []*VectorSearchResult, documentID string) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		docID := strings.TrimSpace(res.DocumentID)
		if docID == "" {
			docID = documentID
		}
		sim := clamp01(1 - float64(res.Distance))
		out = append(out, RetrievedChunk{
			ChunkID:           strings.TrimSpace(res.ChunkID),
			DocumentID:        docID,
			DocumentTitle:     strings.TrimSpace(res.DocumentTitle),
			Text:              strings.TrimSpace(res.Text),
			BaseSimilarity:    sim,
			BoostedSimilarity: sim,
			ChunkIndex:        res.ChunkIndex,
			CharRange:         CharRange{Start: res.StartChar, End: res.EndChar},
			TokenCount:        res.TokenCount,
		})
	}
	return out
}

// FilterByThreshold 丢弃原始相似度低于阈值的块，保持召回顺序
func FilterByThreshold(chunks []RetrievedChunk, threshold float64) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.BaseSimilarity >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// ApplyFocusBoost 与焦点窗口重叠的块加权 min(1, base+boost)，再按加权值稳定降序排序
func ApplyFocusBoost(chunks []RetrievedChunk, focus *FocusContext, boost float64) []RetrievedChunk {
	out := make([]RetrievedChunk, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].BoostedSimilarity = out[i].BaseSimilarity
		if focus != nil && out[i].CharRange.Overlaps(focus.StartChar, focus.EndChar) {
			out[i].BoostedSimilarity = min(1.0, out[i].BaseSimilarity+boost)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BoostedSimilarity > out[j].BoostedSimilarity
	})
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
