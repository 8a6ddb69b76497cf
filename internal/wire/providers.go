package wire

import (
	"context"
	"fmt"
	"os"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"

	"docqa-rag-api/internal/application/cache"
	"docqa-rag-api/internal/application/chat"
	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/config"
	"docqa-rag-api/internal/domain/repository"
	infraembedding "docqa-rag-api/internal/infrastructure/embedding"
	"docqa-rag-api/internal/infrastructure/llm"
	"docqa-rag-api/internal/infrastructure/messaging"
	"docqa-rag-api/internal/infrastructure/persistence/memory"
	"docqa-rag-api/internal/infrastructure/persistence/milvus"
	"docqa-rag-api/internal/infrastructure/persistence/postgres"
	"docqa-rag-api/internal/infrastructure/persistence/redis"
	"docqa-rag-api/internal/interfaces/http/handler"
	"docqa-rag-api/internal/interfaces/http/router"
	"docqa-rag-api/pkg/logger"
)

// 存储驱动
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// DocumentStore 文档元数据与摘要
type DocumentStore interface {
	repository.DocumentRepository
	retrieval.SummaryProvider
}

// Repositories 按存储驱动选出的仓储集合
type Repositories struct {
	// Postgres 内存驱动下为空
	Postgres  *postgres.Client
	Sessions  repository.ChatSessionRepository
	Messages  repository.ChatMessageRepository
	Documents DocumentStore
	Usage     repository.LLMUsageEventRepository
	Tx        repository.Transactor
}

// App 服务进程需要的顶层组件
type App struct {
	Router      *router.Router
	RateLimiter *resilience.RateLimiter
	// Consumer 未启用文档事件流时为空
	Consumer *messaging.Consumer
}

// ProvideRepositories 按 storage.driver 构建仓储
func ProvideRepositories(cfg *config.Config) (*Repositories, func(), error) {
	switch cfg.Storage.Driver {
	case StorageDriverMemory:
		store := memory.NewStore(cfg.Storage.MemoryTTL)
		return &Repositories{
			Sessions:  memory.NewChatSessionRepository(store),
			Messages:  memory.NewChatMessageRepository(store),
			Documents: memory.NewDocumentRepository(store),
			Usage:     memory.NewLLMUsageEventRepository(store),
			Tx:        memory.NewTxManager(),
		}, func() {}, nil
	case StorageDriverPostgres, "":
		client, err := postgres.NewClient(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		return &Repositories{
			Postgres:  client,
			Sessions:  postgres.NewChatSessionRepository(client),
			Messages:  postgres.NewChatMessageRepository(client),
			Documents: postgres.NewDocumentRepository(client),
			Usage:     postgres.NewLLMUsageEventRepository(client),
			Tx:        postgres.NewTxManager(client),
		}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// ProvideRedisClient 未启用时返回 nil，依赖方退化为进程内实现
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMilvusClientOptional Milvus 不可达时不阻塞启动，检索降级为仅摘要
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if cfg.Vector.Milvus.Host == "" {
		logger.Warn(ctx, "milvus not configured, vector search disabled")
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector search disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorSearcher 客户端为空时返回 nil 接口
func ProvideVectorSearcher(ctx context.Context, client *milvus.Client) retrieval.VectorSearcher {
	if client == nil {
		return nil
	}
	repo := milvus.NewRepository(client)
	if err := repo.EnsureCollection(ctx); err != nil {
		logger.Warn(ctx, "failed to ensure milvus collection", "error", err.Error())
	}
	return repo
}

// ProvideEmbedderOptional 不可用时返回 nil，检索降级为仅摘要
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, vector search disabled", "error", err.Error())
		return nil, nil
	}
	return embedder, nil
}

// ProvideSummaryCache 没有 Redis 时返回 nil
func ProvideSummaryCache(cfg *config.Config, client *redis.Client, repos *Repositories) *redis.SummaryCache {
	if client == nil {
		return nil
	}
	return redis.NewSummaryCache(client, repos.Documents, cfg.Cache.Redis.SummaryTTL)
}

// ProvideSummaryProvider 优先经过 Redis 摘要缓存
func ProvideSummaryProvider(summaries *redis.SummaryCache, repos *Repositories) retrieval.SummaryProvider {
	if summaries == nil {
		return repos.Documents
	}
	return summaries
}

// ProvideSummaryInvalidator 没有摘要缓存时返回 nil 接口
func ProvideSummaryInvalidator(summaries *redis.SummaryCache) cache.SummaryInvalidator {
	if summaries == nil {
		return nil
	}
	return summaries
}

func ProvideRetriever(cfg *config.Config, embedder einoembedding.Embedder, vector retrieval.VectorSearcher, summaries retrieval.SummaryProvider) *retrieval.FocusAwareRetriever {
	return retrieval.NewFocusAwareRetriever(embedder, vector, summaries, retrieval.Config{
		FocusBoost:   cfg.RAG.FocusBoostAmount,
		RetryBackoff: cfg.RAG.RetryBackoff,
		MaxRetries:   cfg.RAG.MaxRetries,
	})
}

func ProvidePromptAssembler(cfg *config.Config) *retrieval.PromptAssembler {
	return retrieval.NewPromptAssembler(cfg.RAG.MaxContextTokens)
}

func ProvideResponseCache(cfg *config.Config) *cache.ResponseCache {
	return cache.New(cache.Config{
		MaxSize: cfg.ResponseCache.MaxSize,
		TTL:     cfg.ResponseCache.TTL(),
	})
}

func ProvideCircuitBreaker(cfg *config.Config) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "llm",
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout(),
	})
}

// ProvideQueryWindow redis 后端要求已启用 Redis
func ProvideQueryWindow(cfg *config.Config, client *redis.Client) (resilience.QueryWindow, error) {
	switch cfg.RateLimit.Backend {
	case config.RateLimitBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("rate_limit.backend=redis requires cache.redis.enabled")
		}
		return redis.NewQueryWindow(client), nil
	default:
		return resilience.NewMemoryQueryWindow(nil), nil
	}
}

func ProvideRateLimiter(cfg *config.Config, window resilience.QueryWindow) *resilience.RateLimiter {
	return resilience.NewRateLimiter(resilience.RateLimiterConfig{
		QueriesPerHour:       cfg.RateLimit.QueriesPerHour,
		MaxConcurrentStreams: cfg.RateLimit.MaxConcurrentStreams,
	}, window)
}

func ProvideChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	return llm.NewChatModel(ctx, &cfg.LLM)
}

func ProvideCompletionClient(cfg *config.Config, m model.BaseChatModel) generation.CompletionClient {
	return llm.NewCompletionClient(m, cfg.LLM.Provider, cfg.LLM.Model)
}

func ProvideCostTracker(cfg *config.Config, repos *Repositories) *quota.SessionCostTracker {
	return quota.NewSessionCostTracker(repos.Sessions, quota.DefaultPriceTable(), cfg.LLM.Model, cfg.Spending.DefaultLimitUSD)
}

func ProvideUsageRecorder(repos *Repositories) *quota.LLMUsageRecorder {
	return quota.NewLLMUsageRecorder(repos.Usage)
}

func ProvideGenerator(
	responses *cache.ResponseCache,
	breaker *resilience.CircuitBreaker,
	client generation.CompletionClient,
	assembler *retrieval.PromptAssembler,
	costs *quota.SessionCostTracker,
	usage *quota.LLMUsageRecorder,
) *generation.StreamingGenerator {
	return generation.NewStreamingGenerator(responses, breaker, client, assembler, costs, usage)
}

func ProvideInputValidator(cfg *config.Config) *chat.InputValidator {
	return chat.NewInputValidator(chat.ValidatorConfig{
		MaxMessageLength:   cfg.Validation.MaxMessageLength,
		MaxFocusTextLength: cfg.Validation.MaxFocusTextLength,
		MaxFocusRange:      cfg.Validation.MaxFocusRange,
	})
}

func ProvideChatService(
	cfg *config.Config,
	repos *Repositories,
	retriever *retrieval.FocusAwareRetriever,
	generator *generation.StreamingGenerator,
	limiter *resilience.RateLimiter,
	costs *quota.SessionCostTracker,
	validator *chat.InputValidator,
) *chat.Service {
	return chat.NewService(
		repos.Sessions,
		repos.Messages,
		repos.Documents,
		repos.Tx,
		retriever,
		generator,
		limiter,
		costs,
		validator,
		chat.Config{
			TopK:                cfg.RAG.TopKChunks,
			SimilarityThreshold: cfg.RAG.SimilarityThreshold,
			HistoryTurns:        cfg.RAG.HistoryTurns,
		},
	)
}

// ProvideProducer 未启用文档事件流时返回 nil
func ProvideProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if client == nil || !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	return messaging.NewProducer(client.Redis(), cfg.Messaging.RedisStream.MaxLen)
}

// ProvideEventPublisher 生产者为空时返回 nil 接口
func ProvideEventPublisher(p *messaging.Producer) handler.DocumentEventPublisher {
	if p == nil {
		return nil
	}
	return p
}

// ProvideConsumer 订阅文档事件以失效本实例缓存
func ProvideConsumer(cfg *config.Config, client *redis.Client, inv *cache.DocumentInvalidator) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	if client == nil || !rs.Enabled {
		return nil
	}
	name := rs.Consumer
	if name == "" {
		name, _ = os.Hostname()
	}
	c := messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.Stream(rs.Stream),
		Group:        messaging.ConsumerGroup(rs.Group),
		ConsumerName: name,
		BlockTimeout: rs.BlockTimeout,
	})
	messaging.RegisterDocumentHandlers(c, inv)
	return c
}

func ProvideHealthHandler(cfg *config.Config, repos *Repositories, redisClient *redis.Client, milvusClient *milvus.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, repos.Postgres, redisClient, milvusClient)
}

func ProvideChatHandler(svc *chat.Service) *handler.ChatHandler {
	return handler.NewChatHandler(svc)
}
