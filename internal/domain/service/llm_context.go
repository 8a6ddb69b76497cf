package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyOperation llmCtxKey = "llm_operation"
	llmCtxKeyProvider  llmCtxKey = "llm_provider"
	llmCtxKeySession   llmCtxKey = "llm_session"
)

const unknown = "unknown"

func withValue(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOr(ctx context.Context, key llmCtxKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// WithOperation 标记本次模型调用所属的业务操作，例如 answer
func WithOperation(ctx context.Context, op string) context.Context {
	return withValue(ctx, llmCtxKeyOperation, op)
}

// WithProvider 标记模型提供方
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithSession 标记调用所属会话
func WithSession(ctx context.Context, sessionID string) context.Context {
	return withValue(ctx, llmCtxKeySession, sessionID)
}

func OperationFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyOperation, unknown)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyProvider, unknown)
}

// SessionFromContext 未标记时返回空串
func SessionFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeySession, "")
}
