package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	errs  []error
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeSearcher struct {
	results []*VectorSearchResult
	errs    []error
	calls   int
	last    *VectorSearchParams
}

func (f *fakeSearcher) SearchChunks(_ context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error) {
	f.calls++
	f.last = params
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.results, nil
}

type fakeSummaries struct {
	summary string
	err     error
}

func (f fakeSummaries) DocumentSummary(context.Context, string) (string, error) {
	return f.summary, f.err
}

func hit(id string, distance float32, start, end int) *VectorSearchResult {
	return &VectorSearchResult{
		ChunkID:    id,
		DocumentID: "doc-1",
		Text:       "text of " + id,
		Distance:   distance,
		StartChar:  start,
		EndChar:    end,
	}
}

func newTestRetriever(searcher *fakeSearcher, embedder *fakeEmbedder, summaries SummaryProvider) *FocusAwareRetriever {
	return NewFocusAwareRetriever(embedder, searcher, summaries, Config{
		FocusBoost:   0.15,
		RetryBackoff: time.Millisecond,
		MaxRetries:   1,
	})
}

func TestRetrieve_FocusBoostRanksOverlappingChunkFirst(t *testing.T) {
	searcher := &fakeSearcher{results: []*VectorSearchResult{
		hit("a", 0.10, 0, 499),     // 0.90
		hit("b", 0.20, 500, 999),   // 0.80，与焦点重叠
		hit("c", 0.15, 1000, 1499), // 0.85
	}}
	r := newTestRetriever(searcher, &fakeEmbedder{}, nil)

	out, err := r.Retrieve(context.Background(), RetrieveRequest{
		Query:               "what happens here?",
		DocumentID:          "doc-1",
		Focus:               &FocusContext{DocumentID: "doc-1", StartChar: 600, EndChar: 650},
		TopK:                5,
		SimilarityThreshold: 0.7,
	})
	require.NoError(t, err)
	require.Len(t, out.Chunks, 3)

	first := out.Chunks[0]
	assert.Equal(t, "b", first.ChunkID)
	assert.InDelta(t, 0.80, first.BaseSimilarity, 1e-6)
	assert.GreaterOrEqual(t, first.BoostedSimilarity, 0.95-1e-6)
	assert.Equal(t, []string{"b", "a", "c"}, chunkIDs(out.Chunks))
	assert.Equal(t, 1, out.Debug.BoostedCandidates)
	assert.Equal(t, 5, searcher.last.TopK)
	assert.Equal(t, "doc-1", searcher.last.DocumentID)
}

func TestRetrieve_ThresholdAppliedBeforeBoost(t *testing.T) {
	searcher := &fakeSearcher{results: []*VectorSearchResult{
		hit("weak", 0.40, 0, 100), // 0.60，重叠但低于阈值
		hit("ok", 0.25, 200, 300),
	}}
	r := newTestRetriever(searcher, &fakeEmbedder{}, nil)

	out, err := r.Retrieve(context.Background(), RetrieveRequest{
		Query:               "q",
		DocumentID:          "doc-1",
		Focus:               &FocusContext{StartChar: 10, EndChar: 20},
		SimilarityThreshold: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, chunkIDs(out.Chunks))
	assert.Equal(t, 2, out.Debug.TotalCandidates)
	assert.Equal(t, 1, out.Debug.FilteredCandidates)
}

func TestRetrieve_FallsBackToSummaryWhenEmpty(t *testing.T) {
	searcher := &fakeSearcher{results: []*VectorSearchResult{hit("far", 0.9, 0, 10)}}
	r := newTestRetriever(searcher, &fakeEmbedder{}, fakeSummaries{summary: "  A short summary.  "})

	out, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1", SimilarityThreshold: 0.7})
	require.NoError(t, err)
	assert.Empty(t, out.Chunks)
	assert.True(t, out.UsedFallback)
	assert.Equal(t, "A short summary.", out.Summary)
}

func TestRetrieve_SummaryFailureDoesNotFail(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, &fakeEmbedder{}, fakeSummaries{err: errors.New("db down")})

	out, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.True(t, out.UsedFallback)
	assert.True(t, out.Empty())
}

func TestRetrieve_DisabledDegradesToSummary(t *testing.T) {
	r := NewFocusAwareRetriever(nil, nil, fakeSummaries{summary: "summary"}, Config{})

	out, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, ErrVectorDisabled.Error(), out.DisabledReason)
	assert.Equal(t, "summary", out.Summary)
}

func TestRetrieve_RetriesOnceThenSucceeds(t *testing.T) {
	embedder := &fakeEmbedder{errs: []error{errors.New("timeout")}}
	searcher := &fakeSearcher{
		results: []*VectorSearchResult{hit("a", 0.1, 0, 10)},
		errs:    []error{errors.New("unavailable")},
	}
	r := newTestRetriever(searcher, embedder, nil)

	out, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Len(t, out.Chunks, 1)
	assert.Equal(t, 2, embedder.calls)
	assert.Equal(t, 2, searcher.calls)
}

func TestRetrieve_DefaultConfigRetriesOnce(t *testing.T) {
	embedder := &fakeEmbedder{errs: []error{errors.New("transient")}}
	searcher := &fakeSearcher{results: []*VectorSearchResult{hit("c1", 0.1, 0, 10)}}
	r := NewFocusAwareRetriever(embedder, searcher, nil, Config{FocusBoost: 0.15, RetryBackoff: time.Millisecond})

	out, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Len(t, out.Chunks, 1)
	assert.Equal(t, 2, embedder.calls)
}

func TestRetrieve_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	embedder := &fakeEmbedder{errs: []error{errors.New("transient")}}
	searcher := &fakeSearcher{results: []*VectorSearchResult{hit("c1", 0.1, 0, 10)}}
	r := NewFocusAwareRetriever(embedder, searcher, nil, Config{RetryBackoff: time.Millisecond, MaxRetries: -1})

	_, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
	require.Error(t, err)
	assert.Equal(t, 1, embedder.calls)
}

func TestRetrieve_TypedErrorsAfterRetry(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		embedder := &fakeEmbedder{errs: []error{errors.New("e1"), errors.New("e2")}}
		r := newTestRetriever(&fakeSearcher{}, embedder, nil)

		_, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
		var embErr *EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, 2, embedder.calls)
	})

	t.Run("vector index", func(t *testing.T) {
		searcher := &fakeSearcher{errs: []error{errors.New("s1"), errors.New("s2")}}
		r := newTestRetriever(searcher, &fakeEmbedder{}, nil)

		_, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "q", DocumentID: "doc-1"})
		var retErr *RetrievalError
		require.ErrorAs(t, err, &retErr)
		assert.Equal(t, "doc-1", retErr.DocumentID)
		assert.Equal(t, 2, searcher.calls)
	})
}

func TestRetrieve_RequiresQueryAndDocument(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, &fakeEmbedder{}, nil)

	_, err := r.Retrieve(context.Background(), RetrieveRequest{Query: "  ", DocumentID: "doc-1"})
	assert.Error(t, err)
	_, err = r.Retrieve(context.Background(), RetrieveRequest{Query: "q"})
	assert.Error(t, err)
}

func TestApplyFocusBoost_Property(t *testing.T) {
	focus := &FocusContext{StartChar: 100, EndChar: 200}
	chunks := []RetrievedChunk{
		{ChunkID: "before", BaseSimilarity: 0.9, CharRange: CharRange{0, 99}},
		{ChunkID: "touch-start", BaseSimilarity: 0.7, CharRange: CharRange{50, 100}},
		{ChunkID: "inside", BaseSimilarity: 0.95, CharRange: CharRange{120, 180}},
		{ChunkID: "covers", BaseSimilarity: 0.75, CharRange: CharRange{0, 500}},
		{ChunkID: "touch-end", BaseSimilarity: 0.72, CharRange: CharRange{200, 260}},
		{ChunkID: "after", BaseSimilarity: 0.8, CharRange: CharRange{201, 300}},
	}

	out := ApplyFocusBoost(chunks, focus, 0.15)
	byID := make(map[string]RetrievedChunk, len(out))
	for _, c := range out {
		byID[c.ChunkID] = c
	}

	for _, c := range chunks {
		got := byID[c.ChunkID]
		if c.CharRange.Overlaps(focus.StartChar, focus.EndChar) {
			assert.InDelta(t, min(1.0, c.BaseSimilarity+0.15), got.BoostedSimilarity, 1e-9, c.ChunkID)
		} else {
			assert.InDelta(t, c.BaseSimilarity, got.BoostedSimilarity, 1e-9, c.ChunkID)
		}
	}
	assert.InDelta(t, 1.0, byID["inside"].BoostedSimilarity, 1e-9)
	assert.InDelta(t, 0.9, byID["before"].BoostedSimilarity, 1e-9)
	assert.InDelta(t, 0.8, byID["after"].BoostedSimilarity, 1e-9)

	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].BoostedSimilarity, out[i].BoostedSimilarity)
	}
	assert.Equal(t, 0.0, chunks[0].BoostedSimilarity, "input slice is not mutated")
}

func TestApplyFocusBoost_StableOnTies(t *testing.T) {
	chunks := []RetrievedChunk{
		{ChunkID: "first", BaseSimilarity: 0.8},
		{ChunkID: "second", BaseSimilarity: 0.8},
		{ChunkID: "third", BaseSimilarity: 0.8},
	}

	out := ApplyFocusBoost(chunks, nil, 0.15)
	assert.Equal(t, []string{"first", "second", "third"}, chunkIDs(out))
}

func chunkIDs(chunks []RetrievedChunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ChunkID)
	}
	return ids
}
