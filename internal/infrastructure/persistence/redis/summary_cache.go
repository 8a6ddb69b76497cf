package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"docqa-rag-api/internal/application/retrieval"
)

var cacheTracer = otel.Tracer("redis.cache")

const DefaultSummaryTTL = time.Hour

// SummaryCache 文档摘要的 Read-Through 缓存，包装底层 SummaryProvider
type SummaryCache struct {
	client *Client
	source retrieval.SummaryProvider
	ttl    time.Duration
	group  singleflight.Group
}

// NewSummaryCache 创建摘要缓存
func NewSummaryCache(client *Client, source retrieval.SummaryProvider, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &SummaryCache{client: client, source: source, ttl: ttl}
}

// DocumentSummary 实现 retrieval.SummaryProvider；缓存故障时直接回源
func (c *SummaryCache) DocumentSummary(ctx context.Context, documentID string) (string, error) {
	key := c.key(documentID)
	ctx, span := cacheTracer.Start(ctx, "cache.DocumentSummary",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Result()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	if !IsNil(err) {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// 合并同一文档的并发回源
	result, err, shared := c.group.Do(key, func() (any, error) {
		if val, err := c.client.rdb.Get(ctx, key).Result(); err == nil {
			return val, nil
		}
		summary, err := c.source.DocumentSummary(ctx, documentID)
		if err != nil {
			return "", err
		}
		if summary != "" {
			if err := c.client.rdb.Set(ctx, key, summary, c.ttl).Err(); err != nil {
				span.RecordError(err)
			}
		}
		return summary, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return result.(string), nil
}

// Invalidate 删除文档摘要缓存
func (c *SummaryCache) Invalidate(ctx context.Context, documentID string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Invalidate",
		trace.WithAttributes(attribute.String("cache.document_id", documentID)))
	defer span.End()

	if err := c.client.rdb.Del(ctx, c.key(documentID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate summary: %w", err)
	}
	return nil
}

func (c *SummaryCache) key(documentID string) string {
	return c.client.Key("summary", documentID)
}
