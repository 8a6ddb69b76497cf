// Package quota 提供会话级花费核算与用量流水
package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
)

// DefaultSpendingLimitUSD 单会话默认花费上限
const DefaultSpendingLimitUSD = 10.0

// SpendingLimitExceededError 会话累计花费已达上限
type SpendingLimitExceededError struct {
	SessionID  string
	CurrentUSD float64
	LimitUSD   float64
}

func (e *SpendingLimitExceededError) Error() string {
	return fmt.Sprintf("spending limit exceeded: session=%s current=%.6f limit=%.2f", e.SessionID, e.CurrentUSD, e.LimitUSD)
}

// AccountStore 会话累计值的读写端口，由会话仓储实现
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*entity.ChatSession, error)
	AddUsage(ctx context.Context, id string, delta entity.UsageDelta) error
}

// SessionAccount 会话的用量与花费视图
type SessionAccount struct {
	SessionID        string  `json:"session_id"`
	TotalTokens      int64   `json:"total_tokens"`
	CachedTokens     int64   `json:"cached_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	MessageCount     int     `json:"message_count"`
}

// SessionCostTracker 会话花费核算
type SessionCostTracker struct {
	store        AccountStore
	prices       PriceTable
	model        string
	defaultLimit float64
}

// NewSessionCostTracker model 用于查价
func NewSessionCostTracker(store AccountStore, prices PriceTable, model string, defaultLimitUSD float64) *SessionCostTracker {
	if defaultLimitUSD <= 0 {
		defaultLimitUSD = DefaultSpendingLimitUSD
	}
	if prices.Models == nil && prices.Default == (Price{}) {
		prices = DefaultPriceTable()
	}
	return &SessionCostTracker{
		store:        store,
		prices:       prices,
		model:        model,
		defaultLimit: defaultLimitUSD,
	}
}

// DefaultLimit 默认上限
func (t *SessionCostTracker) DefaultLimit() float64 {
	return t.defaultLimit
}

// Account 读取会话累计值
func (t *SessionCostTracker) Account(ctx context.Context, sessionID string) (*SessionAccount, error) {
	s, err := t.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionAccount{
		SessionID:        s.ID,
		TotalTokens:      s.TotalTokens,
		CachedTokens:     s.CachedTokens,
		EstimatedCostUSD: s.TotalCostUSD,
		MessageCount:     s.MessageCount,
	}, nil
}

// CheckSpendingLimit current < max 时返回 true；恰好等于上限视为超限。maxCostUSD <= 0 使用默认上限
func (t *SessionCostTracker) CheckSpendingLimit(ctx context.Context, sessionID string, maxCostUSD float64) (bool, error) {
	if maxCostUSD <= 0 {
		maxCostUSD = t.defaultLimit
	}
	acc, err := t.Account(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return acc.EstimatedCostUSD < maxCostUSD, nil
}

// EnsureWithinLimit 超限时返回 SpendingLimitExceededError
func (t *SessionCostTracker) EnsureWithinLimit(ctx context.Context, sessionID string) error {
	acc, err := t.Account(ctx, sessionID)
	if err != nil {
		return err
	}
	if acc.EstimatedCostUSD >= t.defaultLimit {
		logger.Warn(ctx, "spending limit reached",
			"session_id", sessionID,
			"current_usd", acc.EstimatedCostUSD,
			"limit_usd", t.defaultLimit,
		)
		return &SpendingLimitExceededError{
			SessionID:  sessionID,
			CurrentUSD: acc.EstimatedCostUSD,
			LimitUSD:   t.defaultLimit,
		}
	}
	return nil
}

// Cost 按价格表计算花费，不落库
func (t *SessionCostTracker) Cost(u Usage) float64 {
	return t.prices.Cost(t.model, u)
}

// RecordUsage 按价格表累加会话 token 与花费，返回本次花费
func (t *SessionCostTracker) RecordUsage(ctx context.Context, sessionID string, u Usage) (float64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, errors.New("session_id is required")
	}
	if u.PromptTokens < 0 || u.CachedTokens < 0 || u.CompletionTokens < 0 {
		return 0, fmt.Errorf("invalid token usage: %+v", u)
	}

	cost := t.Cost(u)
	delta := entity.UsageDelta{
		Tokens:       int64(u.Total()),
		CachedTokens: int64(u.CachedTokens),
		CostUSD:      cost,
	}
	if err := t.store.AddUsage(ctx, sessionID, delta); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return cost, err
		}
		return cost, fmt.Errorf("failed to record usage: %w", err)
	}
	metrics.SessionCostUSD.Add(cost)
	logger.Debug(ctx, "session usage recorded",
		"session_id", sessionID,
		"prompt_tokens", u.PromptTokens,
		"cached_tokens", u.CachedTokens,
		"completion_tokens", u.CompletionTokens,
		"cost_usd", cost,
	)
	return cost, nil
}
