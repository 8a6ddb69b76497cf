package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/pkg/metrics"
)

// Repository 文档分块向量检索
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

var _ retrieval.VectorSearcher = (*Repository)(nil)

// SearchChunks 在单个文档内做 COSINE 召回，Distance = 1 - score
func (r *Repository) SearchChunks(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil || len(params.QueryVector) == 0 {
		return nil, nil
	}
	collection := r.client.collection
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("document_id", params.DocumentID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	start := time.Now()
	results, err := r.search(ctx, params)
	metrics.MilvusSearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(collection, "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	metrics.MilvusSearchTotal.WithLabelValues(collection, "success").Inc()

	out := parseResults(results)
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func (r *Repository) search(ctx context.Context, params *retrieval.VectorSearchParams) ([]client.SearchResult, error) {
	sp, err := entity.NewIndexHNSWSearchParam(r.client.searchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.client.collection,
		nil,
		documentFilter(params.DocumentID),
		outputFields,
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		vectorField,
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return results, nil
}

// documentFilter 文档 ID 过滤表达式，转义引号防止表达式注入
func documentFilter(documentID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(documentID)
	return fmt.Sprintf(`document_id == "%s"`, escaped)
}

func parseResults(results []client.SearchResult) []*retrieval.VectorSearchResult {
	var out []*retrieval.VectorSearchResult
	for _, result := range results {
		varchar := func(name string) []string {
			if col, ok := result.Fields.GetColumn(name).(*entity.ColumnVarChar); ok {
				return col.Data()
			}
			return nil
		}
		int64s := func(name string) []int64 {
			if col, ok := result.Fields.GetColumn(name).(*entity.ColumnInt64); ok {
				return col.Data()
			}
			return nil
		}
		ids := varchar("id")
		docIDs := varchar("document_id")
		titles := varchar("document_title")
		texts := varchar("text")
		indexes := int64s("chunk_index")
		starts := int64s("start_char")
		ends := int64s("end_char")
		tokens := int64s("token_count")

		for i := 0; i < result.ResultCount; i++ {
			sr := &retrieval.VectorSearchResult{
				ChunkID:       at(ids, i),
				DocumentID:    at(docIDs, i),
				DocumentTitle: at(titles, i),
				Text:          at(texts, i),
				ChunkIndex:    int(at(indexes, i)),
				StartChar:     int(at(starts, i)),
				EndChar:       int(at(ends, i)),
				TokenCount:    int(at(tokens, i)),
			}
			if i < len(result.Scores) {
				sr.Distance = 1 - result.Scores[i]
			}
			out = append(out, sr)
		}
	}
	return out
}

func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

// EnsureCollection 确保分块集合与 HNSW 索引可用，不做 drop/rebuild
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return retrieval.ErrVectorDisabled
	}
	collection := r.client.collection
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	exists, err := r.client.milvus.HasCollection(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := r.client.milvus.CreateCollection(ctx, DocumentChunksSchema(collection), entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, defaultHNSWM, defaultHNSWEfC)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		// 建索引失败时集合仍可用，交给运维处理
		_ = r.client.milvus.CreateIndex(ctx, collection, vectorField, idx, false)
	}
	return r.client.LoadCollection(ctx)
}
