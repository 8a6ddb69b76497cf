package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFrom_DefaultsWithoutFiles(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RAG.TopKChunks)
	assert.InDelta(t, 0.7, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.15, cfg.RAG.FocusBoostAmount, 1e-9)
	assert.Equal(t, 8000, cfg.RAG.MaxContextTokens)
	assert.Equal(t, 1, cfg.RAG.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.RAG.RetryBackoff)
	assert.Equal(t, 1000, cfg.ResponseCache.MaxSize)
	assert.Equal(t, time.Hour, cfg.ResponseCache.TTL())
	assert.Equal(t, 100, cfg.RateLimit.QueriesPerHour)
	assert.Equal(t, 5, cfg.RateLimit.MaxConcurrentStreams)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.CleanupInterval)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 2, cfg.CircuitBreaker.SuccessThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout())
	assert.InDelta(t, 10.0, cfg.Spending.DefaultLimitUSD, 1e-9)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 6000, cfg.Validation.MaxMessageLength)
}

func TestLoadFrom_EnvFileOverridesBase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	writeFile(t, dir, "config.yaml", `
rag:
  top_k_chunks: 7
  focus_boost_amount: 0.2
response_cache:
  max_size: 50
`)
	writeFile(t, dir, "config.staging.yaml", `
response_cache:
  max_size: 20
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.RAG.TopKChunks)
	assert.InDelta(t, 0.2, cfg.RAG.FocusBoostAmount, 1e-9)
	assert.Equal(t, 20, cfg.ResponseCache.MaxSize)
}

func TestLoadFrom_ExpandsPlaceholders(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("TEST_DEEPSEEK_KEY", "sk-test")
	writeFile(t, dir, "config.yaml", `
llm:
  api_key: ${TEST_DEEPSEEK_KEY}
  model: ${TEST_UNSET_MODEL:deepseek-reasoner}
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.Model)
}

func TestLoadFrom_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"threshold out of range", "rag:\n  similarity_threshold: 1.5\n"},
		{"unknown storage driver", "storage:\n  driver: mysql\n"},
		{"redis limiter without redis", "rate_limit:\n  backend: redis\n"},
		{"zero cache size", "response_cache:\n  max_size: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("APP_ENV", "test")
			writeFile(t, dir, "config.yaml", tt.yaml)

			_, err := LoadFrom(dir)
			assert.Error(t, err)
		})
	}
}

func TestExpandEnv_KeepsUnknownWithoutDefault(t *testing.T) {
	assert.Equal(t, "${TEST_SURELY_UNSET_VAR}", expandEnv("${TEST_SURELY_UNSET_VAR}"))
	assert.Equal(t, "", expandEnv("${TEST_SURELY_UNSET_VAR:}"))
}
