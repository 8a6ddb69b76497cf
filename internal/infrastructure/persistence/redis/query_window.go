package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// allowScript 在同一次调用中完成 清理窗口外记录 -> 计数 -> 未超限时记录本次
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// QueryWindow 会话级滚动窗口查询计数，实现 resilience.QueryWindow，多实例共享
type QueryWindow struct {
	client *Client
	now    func() time.Time
}

// NewQueryWindow 创建查询窗口
func NewQueryWindow(client *Client) *QueryWindow {
	return &QueryWindow{client: client, now: time.Now}
}

// Allow 滑动窗口：ZSET 以毫秒时间戳为分值
func (w *QueryWindow) Allow(ctx context.Context, sessionID string, limit int, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.session_id", sessionID),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	now := w.now().UnixMilli()
	windowStart := now - window.Milliseconds()

	res, err := allowScript.Run(ctx, w.client.rdb,
		[]string{w.key(sessionID)},
		windowStart,
		now,
		limit,
		fmt.Sprintf("%d-%s", now, uuid.NewString()),
		(window * 2).Milliseconds(),
	).Int()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("query window allow: %w", err)
	}

	allowed := res == 1
	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed, nil
}

// Count 返回窗口内的查询数
func (w *QueryWindow) Count(ctx context.Context, sessionID string, window time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Count")
	span.SetAttributes(attribute.String("ratelimit.session_id", sessionID))
	defer span.End()

	windowStart := w.now().UnixMilli() - window.Milliseconds()

	pipe := w.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, w.key(sessionID), "-inf", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, w.key(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return int(countCmd.Val()), nil
}

func (w *QueryWindow) key(sessionID string) string {
	return w.client.Key("ratelimit", "queries", sessionID)
}
