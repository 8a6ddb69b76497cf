package generation

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"docqa-rag-api/internal/application/quota"
)

// CompletionChunk 上游流的一个分片：增量文本或最终用量
type CompletionChunk struct {
	Content string
	Usage   *quota.Usage
}

// CompletionStream 上游 token 流，结束时 Recv 返回 io.EOF
type CompletionStream interface {
	Recv() (CompletionChunk, error)
	Close()
}

// CompletionClient 外部补全服务（port），由基础设施层基于 eino ChatModel 实现
type CompletionClient interface {
	Stream(ctx context.Context, messages []*schema.Message) (CompletionStream, error)
	Provider() string
	Model() string
}
