//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"docqa-rag-api/internal/application/cache"
	"docqa-rag-api/internal/config"
	"docqa-rag-api/internal/interfaces/http/handler"
	"docqa-rag-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		StorageSet,
		VectorSet,
		ResilienceSet,
		RAGSet,
		MessagingSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeRepositories 仅初始化仓储（用于 migrate）
func InitializeRepositories(cfg *config.Config) (*Repositories, func(), error) {
	wire.Build(ProvideRepositories)
	return nil, nil, nil
}

// StorageSet 会话存储与 Redis
var StorageSet = wire.NewSet(
	ProvideRepositories,
	ProvideRedisClient,
	ProvideSummaryCache,
	ProvideSummaryProvider,
	ProvideSummaryInvalidator,
)

// VectorSet 可选的 Milvus 与 Embedder
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideVectorSearcher,
	ProvideEmbedderOptional,
)

// ResilienceSet 缓存、熔断与限流
var ResilienceSet = wire.NewSet(
	ProvideResponseCache,
	ProvideCircuitBreaker,
	ProvideQueryWindow,
	ProvideRateLimiter,
	cache.NewDocumentInvalidator,
)

// RAGSet 检索、生成与会话服务
var RAGSet = wire.NewSet(
	ProvideRetriever,
	ProvidePromptAssembler,
	ProvideChatModel,
	ProvideCompletionClient,
	ProvideCostTracker,
	ProvideUsageRecorder,
	ProvideGenerator,
	ProvideInputValidator,
	ProvideChatService,
)

// MessagingSet 文档事件
var MessagingSet = wire.NewSet(
	ProvideProducer,
	ProvideEventPublisher,
	ProvideConsumer,
	wire.Bind(new(handler.DocumentInvalidator), new(*cache.DocumentInvalidator)),
)

// RouterSet 处理器与路由
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideChatHandler,
	handler.NewAdminHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
