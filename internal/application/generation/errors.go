package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
)

// 用户可见的固定文案
const (
	MsgCircuitOpen        = "AI service temporarily unavailable. Please try again."
	MsgRateLimited        = "Rate limit exceeded. Please try again later."
	MsgConcurrentStreams  = "Too many concurrent requests. Please wait for previous requests to complete."
	MsgTimeout            = "Request timed out. Please try again."
	MsgConfiguration      = "Configuration error. Please contact support."
	MsgServiceUnavailable = "Service temporarily unavailable. Please try again in a moment."
	MsgSpendingLimit      = "Spending limit exceeded for this session."
	MsgInterrupted        = "Connection interrupted"
	MsgUnexpected         = "An unexpected error occurred. Please try again."
)

// UpstreamErrorKind 上游补全错误分类
type UpstreamErrorKind string

const (
	KindRateLimited UpstreamErrorKind = "rate_limited"
	KindTimeout     UpstreamErrorKind = "timeout"
	KindAuth        UpstreamErrorKind = "auth"
	KindBadResponse UpstreamErrorKind = "bad_response"
	KindService     UpstreamErrorKind = "service"
)

// UpstreamCompletionError 补全服务调用失败
type UpstreamCompletionError struct {
	Kind UpstreamErrorKind
	Err  error
}

func (e *UpstreamCompletionError) Error() string {
	return fmt.Sprintf("upstream completion failed (%s): %v", e.Kind, e.Err)
}

func (e *UpstreamCompletionError) Unwrap() error { return e.Err }

// ClassifyUpstreamError 按错误文本归类；已是 UpstreamCompletionError 的原样返回
func ClassifyUpstreamError(err error) *UpstreamCompletionError {
	if err == nil {
		return nil
	}
	var ue *UpstreamCompletionError
	if errors.As(err, &ue) {
		return ue
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamCompletionError{Kind: KindTimeout, Err: err}
	}

	msg := strings.ToLower(err.Error())
	kind := KindService
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"):
		kind = KindRateLimited
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"), strings.Contains(msg, "authentication"):
		kind = KindAuth
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		kind = KindTimeout
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "malformed"), strings.Contains(msg, "unexpected end of json"):
		kind = KindBadResponse
	}
	return &UpstreamCompletionError{Kind: kind, Err: err}
}

// UserMessage 将内部错误映射为固定的用户可见文案，不泄露原始错误
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		upstream *UpstreamCompletionError
		rateErr  *resilience.RateLimitExceededError
		spendErr *quota.SpendingLimitExceededError
		retErr   *retrieval.RetrievalError
		embErr   *retrieval.EmbeddingError
	)
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return MsgCircuitOpen
	case errors.As(err, &rateErr):
		if rateErr.Reason == resilience.ReasonConcurrentStreams {
			return MsgConcurrentStreams
		}
		return MsgRateLimited
	case errors.As(err, &spendErr):
		return MsgSpendingLimit
	case errors.Is(err, context.Canceled):
		return MsgInterrupted
	case errors.As(err, &upstream):
		switch upstream.Kind {
		case KindRateLimited:
			return MsgRateLimited
		case KindTimeout:
			return MsgTimeout
		case KindAuth:
			return MsgConfiguration
		case KindBadResponse, KindService:
			return MsgServiceUnavailable
		}
		return MsgUnexpected
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.As(err, &retErr), errors.As(err, &embErr):
		return MsgServiceUnavailable
	default:
		return MsgUnexpected
	}
}
