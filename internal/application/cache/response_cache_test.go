package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-rag-api/internal/application/retrieval"
)

func entryFor(text string, docIDs ...string) Entry {
	return Entry{ResponseText: text, TokenCount: len(text), DocumentIDs: docIDs}
}

func TestComputeKey_Deterministic(t *testing.T) {
	focus := &retrieval.FocusContext{StartChar: 10, EndChar: 20, SurroundingText: "ignored"}

	k1 := ComputeKey("What is X?", []string{"b", "a"}, focus)
	k2 := ComputeKey("  what   is x?  ", []string{"a", "b", "a"}, &retrieval.FocusContext{StartChar: 10, EndChar: 20})

	assert.Equal(t, k1, k2)
	assert.Len(t, string(k1), 64)
}

func TestComputeKey_DistinguishesInputs(t *testing.T) {
	base := ComputeKey("q", []string{"a"}, nil)

	assert.NotEqual(t, base, ComputeKey("q2", []string{"a"}, nil))
	assert.NotEqual(t, base, ComputeKey("q", []string{"b"}, nil))
	assert.NotEqual(t, base, ComputeKey("q", []string{"a"}, &retrieval.FocusContext{StartChar: 0, EndChar: 5}))
	assert.NotEqual(t,
		ComputeKey("q", []string{"a"}, &retrieval.FocusContext{StartChar: 0, EndChar: 5}),
		ComputeKey("q", []string{"a"}, &retrieval.FocusContext{StartChar: 0, EndChar: 6}),
	)
}

func TestComputeKey_OrderIndependentProperty(t *testing.T) {
	ids := []string{"d1", "d2", "d3", "d4"}
	want := ComputeKey("q", ids, nil)
	perms := [][]string{
		{"d4", "d3", "d2", "d1"},
		{"d2", "d4", "d1", "d3"},
		{"d3", "d1", "d4", "d2", "d1"},
	}
	for _, p := range perms {
		assert.Equal(t, want, ComputeKey("q", p, nil), "%v", p)
	}
}

func TestResponseCache_GetSet(t *testing.T) {
	c := New(Config{MaxSize: 10, TTL: time.Hour})

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", Entry{
		ResponseText: "answer",
		SourceChunks: []retrieval.RetrievedChunk{{ChunkID: "c1", DocumentID: "d1"}},
		DocumentIDs:  []string{"d1"},
	})
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, Key("k"), got.Key)
	assert.Equal(t, "answer", got.ResponseText)
	assert.False(t, got.CreatedAt.IsZero())

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
}

func TestResponseCache_StrictLRU(t *testing.T) {
	c := New(Config{MaxSize: 3})
	c.Set("a", entryFor("a"))
	c.Set("b", entryFor("b"))
	c.Set("c", entryFor("c"))

	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("d", entryFor("d"))

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	for _, k := range []Key{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, string(k))
	}
}

func TestResponseCache_ReplaceDoesNotGrow(t *testing.T) {
	c := New(Config{MaxSize: 2})
	c.Set("a", entryFor("v1"))
	c.Set("a", entryFor("v2"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", got.ResponseText)
	assert.Equal(t, 1, c.Len())
}

func TestResponseCache_SizeNeverExceedsMax(t *testing.T) {
	c := New(Config{MaxSize: 7})
	for i := 0; i < 100; i++ {
		c.Set(Key(fmt.Sprintf("k%d", i%23)), entryFor("x"))
		assert.LessOrEqual(t, c.Len(), 7)
	}
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	c := New(Config{MaxSize: 10, TTL: time.Minute}, WithClock(func() time.Time { return now }))
	c.Set("k", entryFor("v"))

	now = now.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestResponseCache_InvalidateDocument(t *testing.T) {
	ctx := context.Background()
	c := New(Config{MaxSize: 10})
	c.Set("a", entryFor("a", "d1"))
	c.Set("b", entryFor("b", "d2"))
	c.Set("c", entryFor("c", "d1", "d2"))
	c.Set("d", entryFor("d", "d3"))

	assert.Equal(t, 2, c.InvalidateDocument(ctx, "d1"))
	assert.Equal(t, 0, c.InvalidateDocument(ctx, "d1"))

	_, ok := c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestResponseCache_Clear(t *testing.T) {
	c := New(Config{MaxSize: 10})
	c.Set("a", entryFor("a"))
	c.Set("b", entryFor("b"))

	assert.Equal(t, 2, c.Clear(context.Background()))
	assert.Zero(t, c.Len())
	c.Set("c", entryFor("c"))
	assert.Equal(t, 1, c.Len())
}

func TestResponseCache_SetCopiesInput(t *testing.T) {
	c := New(Config{MaxSize: 10})
	chunks := []retrieval.RetrievedChunk{{ChunkID: "c1"}}
	c.Set("k", Entry{SourceChunks: chunks})
	chunks[0].ChunkID = "mutated"

	got, _ := c.Get("k")
	assert.Equal(t, "c1", got.SourceChunks[0].ChunkID)
}

func TestResponseCache_Concurrent(t *testing.T) {
	c := New(Config{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := Key(fmt.Sprintf("k%d", (g*31+i)%120))
				c.Set(key, entryFor("v", fmt.Sprintf("d%d", i%5)))
				c.Get(key)
				if i%50 == 0 {
					c.InvalidateDocument(context.Background(), "d0")
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
