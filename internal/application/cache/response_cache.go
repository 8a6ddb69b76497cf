// Package cache 提供 RAG 回答的进程内 LRU 缓存
package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"

	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

// Entry 缓存条目，写入后不可变，只会被整体替换
type Entry struct {
	Key          Key
	ResponseText string
	SourceChunks []retrieval.RetrievedChunk
	TokenCount   int
	CreatedAt    time.Time
	DocumentIDs  []string
}

// references 条目是否引用了该文档
func (e *Entry) references(documentID string) bool {
	return slices.Contains(e.DocumentIDs, documentID)
}

// Stats 缓存统计
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	TTL     string  `json:"ttl"`
}

// Config 缓存参数
type Config struct {
	MaxSize int
	TTL     time.Duration
}

// Option 构造选项
type Option func(*ResponseCache)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// ResponseCache 按访问时间严格 LRU 的回答缓存，单锁保护
type ResponseCache struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	ll     *list.List
	items  map[Key]*list.Element
	hits   int64
	misses int64
}

// New 创建缓存
func New(cfg Config, opts ...Option) *ResponseCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	c := &ResponseCache{
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		now:     time.Now,
		ll:      list.New(),
		items:   make(map[Key]*list.Element, cfg.MaxSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 命中时刷新访问顺序；过期条目视为未命中并删除
func (c *ResponseCache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.ResponseCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	entry := el.Value.(*Entry)
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.removeLocked(el, "ttl")
		c.misses++
		metrics.ResponseCacheLookups.WithLabelValues("expired").Inc()
		return nil, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	metrics.ResponseCacheLookups.WithLabelValues("hit").Inc()
	return entry, true
}

// Set 写入或替换条目，超出容量时淘汰最久未访问的条目
func (c *ResponseCache) Set(key Key, entry Entry) {
	e := entry
	e.Key = key
	e.DocumentIDs = normalizeIDs(entry.DocumentIDs)
	e.SourceChunks = slices.Clone(entry.SourceChunks)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = &e
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&e)
	for c.ll.Len() > c.maxSize {
		c.removeLocked(c.ll.Back(), "lru")
	}
	metrics.ResponseCacheSize.Set(float64(c.ll.Len()))
}

// InvalidateDocument 删除所有引用该文档的条目，返回删除数量
func (c *ResponseCache) InvalidateDocument(ctx context.Context, documentID string) int {
	c.mu.Lock()
	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry).references(documentID) {
			c.removeLocked(el, "invalidate")
			removed++
		}
		el = next
	}
	c.mu.Unlock()

	if removed > 0 {
		logger.Info(ctx, "response cache invalidated for document",
			"document_id", documentID,
			"entries_invalidated", removed,
		)
	}
	return removed
}

// Clear 清空缓存，返回清理数量
func (c *ResponseCache) Clear(ctx context.Context) int {
	c.mu.Lock()
	n := c.ll.Len()
	c.ll.Init()
	c.items = make(map[Key]*list.Element, c.maxSize)
	metrics.ResponseCacheSize.Set(0)
	c.mu.Unlock()

	logger.Info(ctx, "response cache cleared", "entries_removed", n)
	return n
}

// Len 当前条目数
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats 返回统计信息
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.ll.Len(),
		MaxSize: c.maxSize,
		TTL:     c.ttl.String(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// removeLocked 调用方需持有锁
func (c *ResponseCache) removeLocked(el *list.Element, reason string) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*Entry).Key)
	metrics.ResponseCacheEvictions.WithLabelValues(reason).Inc()
	metrics.ResponseCacheSize.Set(float64(c.ll.Len()))
}
