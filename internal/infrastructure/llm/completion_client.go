package llm

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/application/quota"
)

// CompletionClient 把 eino ChatModel 的流式输出适配为 generation.CompletionStream
type CompletionClient struct {
	model    model.BaseChatModel
	provider string
	name     string
}

var _ generation.CompletionClient = (*CompletionClient)(nil)

func NewCompletionClient(m model.BaseChatModel, provider, modelName string) *CompletionClient {
	if provider == "" {
		provider = "deepseek"
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &CompletionClient{model: m, provider: provider, name: modelName}
}

func (c *CompletionClient) Provider() string { return c.provider }

func (c *CompletionClient) Model() string { return c.name }

// Stream 发起流式补全
func (c *CompletionClient) Stream(ctx context.Context, messages []*schema.Message) (generation.CompletionStream, error) {
	reader, err := c.model.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &completionStream{reader: reader}, nil
}

type completionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *completionStream) Recv() (generation.CompletionChunk, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return generation.CompletionChunk{}, err
	}
	if msg == nil {
		return generation.CompletionChunk{}, nil
	}
	return generation.CompletionChunk{
		Content: msg.Content,
		Usage:   usageOf(msg),
	}, nil
}

func (s *completionStream) Close() {
	s.reader.Close()
}

// usageOf 上游只在最后一个分片携带用量
func usageOf(msg *schema.Message) *quota.Usage {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return nil
	}
	u := msg.ResponseMeta.Usage
	return &quota.Usage{
		PromptTokens:     u.PromptTokens,
		CachedTokens:     u.PromptTokenDetails.CachedTokens,
		CompletionTokens: u.CompletionTokens,
	}
}
