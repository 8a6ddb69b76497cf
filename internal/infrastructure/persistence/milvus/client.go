// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"docqa-rag-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const (
	defaultSearchEf = 128
	defaultHNSWM    = 16
	defaultHNSWEfC  = 200
)

// Client Milvus 客户端
type Client struct {
	milvus     client.Client
	collection string
	searchEf   int
}

// NewClient 创建 Milvus 客户端
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	ccfg := client.Config{Address: addr}
	if cfg.User != "" && cfg.Password != "" {
		ccfg.Username = cfg.User
		ccfg.Password = cfg.Password
	}
	milvusClient, err := client.NewClient(ctx, ccfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return newClient(milvusClient, cfg), nil
}

func newClient(mc client.Client, cfg *config.MilvusConfig) *Client {
	collection := cfg.Collection
	if collection == "" {
		collection = CollectionDocumentChunks
	}
	ef := cfg.SearchEf
	if ef <= 0 {
		ef = defaultSearchEf
	}
	return &Client{milvus: mc, collection: collection, searchEf: ef}
}

// Milvus 获取底层 Milvus 客户端
func (c *Client) Milvus() client.Client {
	return c.milvus
}

// Collection 分块集合名
func (c *Client) Collection() string {
	return c.collection
}

// Close 关闭 Milvus 连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// LoadCollection 加载集合到内存
func (c *Client) LoadCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", c.collection)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.collection, false)
}
