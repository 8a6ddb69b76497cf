// Package resilience 提供上游调用的熔断与会话级限流
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
)

// CircuitState 熔断器状态
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 所有 CircuitOpenError 均可用 errors.Is 匹配到此哨兵
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError 熔断打开时的快速失败，未发起任何上游调用
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter.Round(time.Second))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// CircuitBreakerConfig 熔断参数
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	// Timeout 从进入 Open 起算，到期后的下一次调用进入 HalfOpen
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig 默认 5 次失败打开，2 次成功关闭，60s 冷却
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitSnapshot 熔断器状态快照
type CircuitSnapshot struct {
	Name                 string       `json:"name"`
	State                CircuitState `json:"-"`
	StateName            string       `json:"state"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	ConsecutiveSuccesses int          `json:"consecutive_successes"`
	OpenedAt             *time.Time   `json:"opened_at,omitempty"`
}

// CircuitBreaker 单个上游依赖的熔断器，并发安全
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu                   sync.Mutex
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
}

// CircuitOption 构造选项
type CircuitOption func(*CircuitBreaker)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// NewCircuitBreaker 创建处于 Closed 状态的熔断器
func NewCircuitBreaker(cfg CircuitBreakerConfig, opts ...CircuitOption) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cb := &CircuitBreaker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return cb
}

// Allow 判断本次调用是否放行；Open 且冷却到期时转为 HalfOpen 并放行
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.cfg.Timeout {
			metrics.CircuitBreakerRejected.WithLabelValues(cb.cfg.Name).Inc()
			return &CircuitOpenError{Name: cb.cfg.Name, RetryAfter: cb.cfg.Timeout - elapsed}
		}
		cb.transitionLocked(StateHalfOpen)
		return nil
	default:
		return nil
	}
}

// RecordSuccess 记录一次成功调用
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure 记录一次失败调用
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	}
}

// State 返回当前状态，不触发 Open 到 HalfOpen 的转换
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot 返回状态快照
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := CircuitSnapshot{
		Name:                 cb.cfg.Name,
		State:                cb.state,
		StateName:            cb.state.String(),
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
	}
	if cb.state != StateClosed {
		t := cb.openedAt
		s.OpenedAt = &t
	}
	return s
}

// Reset 强制回到 Closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}

// transitionLocked 调用方需持有锁
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.consecutiveSuccesses = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.openedAt = time.Time{}
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.cfg.Name).Set(float64(to))

	if from == to {
		return
	}
	ctx := context.Background()
	if to == StateOpen {
		logger.Warn(ctx, "circuit breaker opened",
			"name", cb.cfg.Name,
			"from", from.String(),
			"consecutive_failures", cb.consecutiveFailures,
			"timeout", cb.cfg.Timeout.String(),
		)
		return
	}
	logger.Info(ctx, "circuit breaker state changed",
		"name", cb.cfg.Name,
		"from", from.String(),
		"to", to.String(),
	)
}
