package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
)

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		err  error
		want UpstreamErrorKind
	}{
		{errors.New("error, status code: 429, message: Rate limit reached"), KindRateLimited},
		{errors.New("status code: 401, Unauthorized"), KindAuth},
		{errors.New("Authentication Fails (invalid api key)"), KindAuth},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("read: %w", errors.New("i/o timeout")), KindTimeout},
		{errors.New("invalid character '<' looking for beginning of value"), KindBadResponse},
		{errors.New("status code: 500, internal error"), KindService},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := ClassifyUpstreamError(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, ClassifyUpstreamError(nil))
	already := &UpstreamCompletionError{Kind: KindAuth, Err: errors.New("x")}
	assert.Same(t, already, ClassifyUpstreamError(fmt.Errorf("wrapped: %w", already)))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"circuit open", &resilience.CircuitOpenError{Name: "deepseek", RetryAfter: time.Second}, MsgCircuitOpen},
		{"query limit", &resilience.RateLimitExceededError{Reason: resilience.ReasonQueryLimit, Limit: 100}, MsgRateLimited},
		{"concurrency", &resilience.RateLimitExceededError{Reason: resilience.ReasonConcurrentStreams, Limit: 5}, MsgConcurrentStreams},
		{"spending", &quota.SpendingLimitExceededError{SessionID: "s", LimitUSD: 10}, MsgSpendingLimit},
		{"upstream rate limited", &UpstreamCompletionError{Kind: KindRateLimited}, MsgRateLimited},
		{"upstream timeout", &UpstreamCompletionError{Kind: KindTimeout}, MsgTimeout},
		{"upstream auth", &UpstreamCompletionError{Kind: KindAuth}, MsgConfiguration},
		{"upstream service", &UpstreamCompletionError{Kind: KindService}, MsgServiceUnavailable},
		{"upstream bad response", &UpstreamCompletionError{Kind: KindBadResponse}, MsgServiceUnavailable},
		{"retrieval", &retrieval.RetrievalError{Err: errors.New("down")}, MsgServiceUnavailable},
		{"embedding", &retrieval.EmbeddingError{Err: errors.New("down")}, MsgServiceUnavailable},
		{"cancelled", context.Canceled, MsgInterrupted},
		{"deadline", context.DeadlineExceeded, MsgTimeout},
		{"unknown", errors.New("secret internal detail"), MsgUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
	assert.Empty(t, UserMessage(nil))
}

func TestEvents_Terminal(t *testing.T) {
	assert.False(t, TokenEvent{}.Terminal())
	assert.False(t, SourceEvent{}.Terminal())
	assert.True(t, DoneEvent{}.Terminal())
	assert.True(t, ErrorEvent{}.Terminal())
}
