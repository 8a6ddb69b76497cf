package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从默认目录加载配置
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 按优先级加载：config.yaml -> config.<APP_ENV>.yaml -> 环境变量 -> 默认值
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := loadConfigFile(v, filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env)), true); err != nil {
		return nil, err
	}

	// 环境变量直接覆盖，llm.api_key -> LLM_API_KEY
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并合并到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := v.MergeConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to merge config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符，未定义且无默认值时保留原样
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验关键参数
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, c.Storage.Driver))
	}
	switch c.RateLimit.Backend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if !c.Cache.Redis.Enabled {
			errs = append(errs, errors.New("rate_limit.backend=redis requires cache.redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend must be %q or %q, got %q", RateLimitBackendMemory, RateLimitBackendRedis, c.RateLimit.Backend))
	}
	if c.Messaging.RedisStream.Enabled && !c.Cache.Redis.Enabled {
		errs = append(errs, errors.New("messaging.redis_stream.enabled requires cache.redis.enabled"))
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("rag.similarity_threshold must be within [0,1], got %v", c.RAG.SimilarityThreshold))
	}
	if c.RAG.FocusBoostAmount < 0 || c.RAG.FocusBoostAmount > 1 {
		errs = append(errs, fmt.Errorf("rag.focus_boost_amount must be within [0,1], got %v", c.RAG.FocusBoostAmount))
	}
	if c.RAG.TopKChunks <= 0 {
		errs = append(errs, errors.New("rag.top_k_chunks must be positive"))
	}
	if c.ResponseCache.MaxSize <= 0 {
		errs = append(errs, errors.New("response_cache.max_size must be positive"))
	}
	if c.RateLimit.QueriesPerHour <= 0 || c.RateLimit.MaxConcurrentStreams <= 0 {
		errs = append(errs, errors.New("rate_limit ceilings must be positive"))
	}
	if c.CircuitBreaker.FailureThreshold <= 0 || c.CircuitBreaker.SuccessThreshold <= 0 {
		errs = append(errs, errors.New("circuit_breaker thresholds must be positive"))
	}
	if c.Spending.DefaultLimitUSD <= 0 {
		errs = append(errs, errors.New("spending.default_limit_usd must be positive"))
	}
	return errors.Join(errs...)
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "docqa-rag-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.read_timeout", "30s")
	// SSE 流可能持续较长时间，写超时需覆盖整个生成过程
	v.SetDefault("server.http.write_timeout", "180s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")

	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.memory_ttl", "24h")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "docqa")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.key_prefix", "docqa")
	v.SetDefault("cache.redis.summary_ttl", "1h")

	v.SetDefault("messaging.redis_stream.enabled", false)
	v.SetDefault("messaging.redis_stream.stream", "docqa:stream:document_events")
	v.SetDefault("messaging.redis_stream.group", "docqa-rag-api")
	v.SetDefault("messaging.redis_stream.consumer", "")
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")

	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.user", "")
	v.SetDefault("vector.milvus.password", "")
	v.SetDefault("vector.milvus.collection", "document_chunks")
	v.SetDefault("vector.milvus.search_ef", 128)

	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.voyageai.com/v1")
	v.SetDefault("embedding.model", "voyage-3.5-lite")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("rag.top_k_chunks", 10)
	v.SetDefault("rag.similarity_threshold", 0.7)
	v.SetDefault("rag.focus_boost_amount", 0.15)
	v.SetDefault("rag.max_context_tokens", 8000)
	v.SetDefault("rag.history_turns", 10)
	v.SetDefault("rag.retry_backoff", "200ms")
	v.SetDefault("rag.max_retries", 1)

	v.SetDefault("response_cache.max_size", 1000)
	v.SetDefault("response_cache.ttl_seconds", 3600)

	v.SetDefault("rate_limit.queries_per_hour", 100)
	v.SetDefault("rate_limit.max_concurrent_streams", 5)
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.backend", RateLimitBackendMemory)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 2)
	v.SetDefault("circuit_breaker.timeout_seconds", 60)

	v.SetDefault("spending.default_limit_usd", 10.0)

	v.SetDefault("validation.max_message_length", 6000)
	v.SetDefault("validation.max_focus_text_length", 500)
	v.SetDefault("validation.max_focus_range", 10000)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output", "stdout")
	v.SetDefault("observability.logging.max_size_mb", 100)
	v.SetDefault("observability.logging.max_backups", 5)
	v.SetDefault("observability.logging.max_age_days", 14)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"})
}
