// Package embedding 查询向量化客户端
package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"docqa-rag-api/internal/config"
)

const defaultModel = "text-embedding-3-small"

// NewEinoEmbedder 创建基于 Eino 的 Embedder（OpenAI 兼容协议）
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding api_key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	ecfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   model,
		Timeout: cfg.Timeout,
	}
	if cfg.Dimensions > 0 {
		ecfg.Dimensions = &cfg.Dimensions
	}

	embedder, err := openai.NewEmbedder(ctx, ecfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return embedder, nil
}
