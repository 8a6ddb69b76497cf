package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/config"
)

func TestDocumentFilter(t *testing.T) {
	assert.Equal(t, `document_id == "d1"`, documentFilter("d1"))
	assert.Equal(t, `document_id == "a\" || \"1"`, documentFilter(`a" || "1`))
}

func TestParseResults(t *testing.T) {
	results := []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.4},
		Fields: client.ResultSet{
			entity.NewColumnVarChar("id", []string{"c1", "c2"}),
			entity.NewColumnVarChar("document_id", []string{"d1", "d1"}),
			entity.NewColumnVarChar("document_title", []string{"Guide", "Guide"}),
			entity.NewColumnVarChar("text", []string{"alpha", "beta"}),
			entity.NewColumnInt64("chunk_index", []int64{0, 1}),
			entity.NewColumnInt64("start_char", []int64{0, 100}),
			entity.NewColumnInt64("end_char", []int64{100, 200}),
		},
	}}

	out := parseResults(results)
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ChunkID)
	assert.Equal(t, "Guide", out[0].DocumentTitle)
	assert.InDelta(t, 0.1, out[0].Distance, 1e-6)
	assert.InDelta(t, 0.6, out[1].Distance, 1e-6)
	assert.Equal(t, 100, out[1].StartChar)
	assert.Equal(t, 200, out[1].EndChar)
	// token_count 缺失时为零值
	assert.Equal(t, 0, out[1].TokenCount)
}

func TestSearchChunks_Unconfigured(t *testing.T) {
	var repo *Repository
	_, err := repo.SearchChunks(context.Background(), &retrieval.VectorSearchParams{DocumentID: "d1"})
	assert.ErrorIs(t, err, retrieval.ErrVectorDisabled)
}

func TestNewClientDefaults(t *testing.T) {
	c := newClient(nil, &config.MilvusConfig{})
	assert.Equal(t, CollectionDocumentChunks, c.Collection())
	assert.Equal(t, defaultSearchEf, c.searchEf)

	c = newClient(nil, &config.MilvusConfig{Collection: "chunks_v2", SearchEf: 64})
	assert.Equal(t, "chunks_v2", c.Collection())
	assert.Equal(t, 64, c.searchEf)
}

func TestDocumentChunksSchema(t *testing.T) {
	s := DocumentChunksSchema("chunks")
	assert.Equal(t, "chunks", s.CollectionName)
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	for _, f := range outputFields {
		assert.Contains(t, names, f)
	}
	assert.True(t, s.Fields[0].PrimaryKey)
}
