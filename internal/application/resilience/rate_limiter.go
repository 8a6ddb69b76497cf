package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
)

// QueryWindowSize 查询计数的滚动窗口
const QueryWindowSize = time.Hour

// Reason 拒绝原因
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonQueryLimit        Reason = "query_limit"
	ReasonConcurrentStreams Reason = "concurrent_streams"
)

// Admission 准入结果
type Admission struct {
	Admitted bool
	Reason   Reason
	// Limit 被触发的上限值
	Limit int
}

// RateLimitExceededError 超过任一上限
type RateLimitExceededError struct {
	Reason Reason
	Limit  int
}

func (e *RateLimitExceededError) Error() string {
	switch e.Reason {
	case ReasonConcurrentStreams:
		return fmt.Sprintf("rate limit exceeded: more than %d concurrent streams", e.Limit)
	default:
		return fmt.Sprintf("rate limit exceeded: more than %d queries per hour", e.Limit)
	}
}

// Err 将拒绝结果转换为错误，放行时返回 nil
func (a Admission) Err() error {
	if a.Admitted {
		return nil
	}
	return &RateLimitExceededError{Reason: a.Reason, Limit: a.Limit}
}

// QueryWindow 滚动窗口查询计数的存储端口
type QueryWindow interface {
	// Allow 窗口内计数小于 limit 时记录本次并返回 true，否则不记录
	Allow(ctx context.Context, sessionID string, limit int, window time.Duration) (bool, error)
	// Count 返回窗口内的查询数
	Count(ctx context.Context, sessionID string, window time.Duration) (int, error)
}

// windowCleaner 可选的过期数据清理能力
type windowCleaner interface {
	Cleanup(window time.Duration) int
}

// RateLimiterConfig 限流参数
type RateLimiterConfig struct {
	QueriesPerHour       int
	MaxConcurrentStreams int
}

// RateLimiter 会话级限流：每小时查询数与并发流数两个独立上限
type RateLimiter struct {
	cfg    RateLimiterConfig
	window QueryWindow

	mu      sync.Mutex
	streams map[string]int
}

// NewRateLimiter 创建限流器，window 为空时使用进程内窗口
func NewRateLimiter(cfg RateLimiterConfig, window QueryWindow) *RateLimiter {
	if cfg.QueriesPerHour <= 0 {
		cfg.QueriesPerHour = 100
	}
	if cfg.MaxConcurrentStreams <= 0 {
		cfg.MaxConcurrentStreams = 5
	}
	if window == nil {
		window = NewMemoryQueryWindow(nil)
	}
	return &RateLimiter{
		cfg:     cfg,
		window:  window,
		streams: make(map[string]int),
	}
}

// Admit 检查两个上限；放行时占用一个并发流名额，调用方必须在终止事件后 Release
func (l *RateLimiter) Admit(ctx context.Context, sessionID string) (Admission, error) {
	l.mu.Lock()
	if l.streams[sessionID] >= l.cfg.MaxConcurrentStreams {
		l.mu.Unlock()
		return l.reject(ctx, sessionID, ReasonConcurrentStreams, l.cfg.MaxConcurrentStreams), nil
	}
	l.streams[sessionID]++
	l.mu.Unlock()

	allowed, err := l.window.Allow(ctx, sessionID, l.cfg.QueriesPerHour, QueryWindowSize)
	if err != nil {
		l.unreserve(sessionID)
		return Admission{}, fmt.Errorf("query window: %w", err)
	}
	if !allowed {
		l.unreserve(sessionID)
		return l.reject(ctx, sessionID, ReasonQueryLimit, l.cfg.QueriesPerHour), nil
	}

	metrics.ActiveStreams.Inc()
	return Admission{Admitted: true}, nil
}

func (l *RateLimiter) reject(ctx context.Context, sessionID string, reason Reason, limit int) Admission {
	metrics.RateLimitRejected.WithLabelValues(string(reason)).Inc()
	logger.Warn(ctx, "rate limit rejected", "session_id", sessionID, "reason", string(reason), "limit", limit)
	return Admission{Reason: reason, Limit: limit}
}

// Release 归还 Admit 占用的并发流名额
func (l *RateLimiter) Release(sessionID string) {
	if l.unreserve(sessionID) {
		metrics.ActiveStreams.Dec()
	}
}

// ReleaseFunc 返回只生效一次的 Release
func (l *RateLimiter) ReleaseFunc(sessionID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.Release(sessionID) })
	}
}

func (l *RateLimiter) unreserve(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.streams[sessionID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(l.streams, sessionID)
	} else {
		l.streams[sessionID] = n - 1
	}
	return true
}

// ActiveStreams 返回会话当前并发流数
func (l *RateLimiter) ActiveStreams(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streams[sessionID]
}

// QueryCount 返回会话最近一小时的查询数
func (l *RateLimiter) QueryCount(ctx context.Context, sessionID string) (int, error) {
	return l.window.Count(ctx, sessionID, QueryWindowSize)
}

// Cleanup 清理窗口外的历史记录，返回清理的会话数
func (l *RateLimiter) Cleanup() int {
	if c, ok := l.window.(windowCleaner); ok {
		return c.Cleanup(QueryWindowSize)
	}
	return 0
}

// StartCleanup 周期清理，直到 ctx 结束
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Cleanup(); n > 0 {
					logger.Debug(ctx, "rate limiter cleanup", "sessions_removed", n)
				}
			}
		}
	}()
}

// MemoryQueryWindow 进程内滚动窗口
type MemoryQueryWindow struct {
	now func() time.Time

	mu      sync.Mutex
	queries map[string][]time.Time
}

// NewMemoryQueryWindow now 为空时使用 time.Now
func NewMemoryQueryWindow(now func() time.Time) *MemoryQueryWindow {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueryWindow{now: now, queries: make(map[string][]time.Time)}
}

// Allow 实现 QueryWindow
func (w *MemoryQueryWindow) Allow(_ context.Context, sessionID string, limit int, window time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	recent := prune(w.queries[sessionID], now.Add(-window))
	if len(recent) >= limit {
		w.queries[sessionID] = recent
		return false, nil
	}
	w.queries[sessionID] = append(recent, now)
	return true, nil
}

// Count 实现 QueryWindow
func (w *MemoryQueryWindow) Count(_ context.Context, sessionID string, window time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := prune(w.queries[sessionID], w.now().Add(-window))
	w.queries[sessionID] = recent
	return len(recent), nil
}

// Cleanup 删除窗口内已无记录的会话
func (w *MemoryQueryWindow) Cleanup(window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-window)
	removed := 0
	for id, ts := range w.queries {
		recent := prune(ts, cutoff)
		if len(recent) == 0 {
			delete(w.queries, id)
			removed++
			continue
		}
		w.queries[id] = recent
	}
	return removed
}

// prune 时间戳按升序追加，丢弃不晚于 cutoff 的前缀
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
