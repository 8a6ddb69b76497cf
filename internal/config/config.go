// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App            AppConfig            `yaml:"app" mapstructure:"app"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Storage        StorageConfig        `yaml:"storage" mapstructure:"storage"`
	Database       DatabaseConfig       `yaml:"database" mapstructure:"database"`
	Cache          CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Messaging      MessagingConfig      `yaml:"messaging" mapstructure:"messaging"`
	Vector         VectorConfig         `yaml:"vector" mapstructure:"vector"`
	LLM            LLMConfig            `yaml:"llm" mapstructure:"llm"`
	Embedding      EmbeddingConfig      `yaml:"embedding" mapstructure:"embedding"`
	RAG            RAGConfig            `yaml:"rag" mapstructure:"rag"`
	ResponseCache  ResponseCacheConfig  `yaml:"response_cache" mapstructure:"response_cache"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Spending       SpendingConfig       `yaml:"spending" mapstructure:"spending"`
	Validation     ValidationConfig     `yaml:"validation" mapstructure:"validation"`
	Observability  ObservabilityConfig  `yaml:"observability" mapstructure:"observability"`
	Security       SecurityConfig       `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// 存储驱动
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// StorageConfig 会话存储选择
type StorageConfig struct {
	// Driver postgres 或 memory
	Driver string `yaml:"driver" mapstructure:"driver"`
	// MemoryTTL 内存驱动下会话的空闲过期时间
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	SummaryTTL   time.Duration `yaml:"summary_ttl" mapstructure:"summary_ttl"`
}

// MessagingConfig 消息配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig 文档事件流配置
type RedisStreamConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Stream       string        `yaml:"stream" mapstructure:"stream"`
	Group        string        `yaml:"group" mapstructure:"group"`
	Consumer     string        `yaml:"consumer" mapstructure:"consumer"`
	MaxLen       int64         `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	User       string `yaml:"user" mapstructure:"user"`
	Password   string `yaml:"password" mapstructure:"password"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	SearchEf   int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RAGConfig 检索与提示词参数
type RAGConfig struct {
	TopKChunks          int           `yaml:"top_k_chunks" mapstructure:"top_k_chunks"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	FocusBoostAmount    float64       `yaml:"focus_boost_amount" mapstructure:"focus_boost_amount"`
	MaxContextTokens    int           `yaml:"max_context_tokens" mapstructure:"max_context_tokens"`
	HistoryTurns        int           `yaml:"history_turns" mapstructure:"history_turns"`
	RetryBackoff        time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	MaxRetries          int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// ResponseCacheConfig 响应缓存配置
type ResponseCacheConfig struct {
	MaxSize    int `yaml:"max_size" mapstructure:"max_size"`
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// TTL 返回缓存有效期
func (c ResponseCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// 限流窗口后端
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// RateLimitConfig 会话级限流配置
type RateLimitConfig struct {
	QueriesPerHour       int           `yaml:"queries_per_hour" mapstructure:"queries_per_hour"`
	MaxConcurrentStreams int           `yaml:"max_concurrent_streams" mapstructure:"max_concurrent_streams"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	Backend              string        `yaml:"backend" mapstructure:"backend"`
}

// CircuitBreakerConfig 熔断配置
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold" mapstructure:"success_threshold"`
	TimeoutSeconds   int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Timeout 返回 Open 状态持续时间
func (c CircuitBreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SpendingConfig 会话花费上限
type SpendingConfig struct {
	DefaultLimitUSD float64 `yaml:"default_limit_usd" mapstructure:"default_limit_usd"`
}

// ValidationConfig 输入校验配置
type ValidationConfig struct {
	MaxMessageLength   int `yaml:"max_message_length" mapstructure:"max_message_length"`
	MaxFocusTextLength int `yaml:"max_focus_text_length" mapstructure:"max_focus_text_length"`
	MaxFocusRange      int `yaml:"max_focus_range" mapstructure:"max_focus_range"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	Output     string `yaml:"output" mapstructure:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
