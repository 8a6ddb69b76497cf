package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"docqa-rag-api/internal/application/cache"
	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/domain/service"
	"docqa-rag-api/pkg/logger"
	"docqa-rag-api/pkg/metrics"
	"docqa-rag-api/pkg/tracer"
)

const (
	operationAnswer = "answer"
	eventBuffer     = 16
	// maxFollowAttempts 领跑请求被取消后，跟随者重新竞争的次数
	maxFollowAttempts = 3
)

// PreparedContext 缓存未命中后才需要的生成上下文
type PreparedContext struct {
	Chunks  []retrieval.RetrievedChunk
	Summary string
	History []retrieval.Turn
}

// GenerateRequest 生成输入
//
// Prepare 非空时仅在缓存未命中时调用，用于延迟执行检索与历史加载；
// 为空时直接使用 Chunks、Summary 与 History。
type GenerateRequest struct {
	Query       string
	SessionID   string
	DocumentIDs []string
	Focus       *retrieval.FocusContext

	Chunks  []retrieval.RetrievedChunk
	Summary string
	History []retrieval.Turn

	Prepare func(ctx context.Context) (*PreparedContext, error)
}

// CostRecorder 会话花费累计，由 quota.SessionCostTracker 实现
type CostRecorder interface {
	RecordUsage(ctx context.Context, sessionID string, u quota.Usage) (float64, error)
}

// StreamingGenerator 流式生成编排器，缓存、熔断器与花费核算均由外部注入
type StreamingGenerator struct {
	cache     *cache.ResponseCache
	breaker   *resilience.CircuitBreaker
	client    CompletionClient
	assembler *retrieval.PromptAssembler
	costs     CostRecorder
	usage     service.LLMUsageRecorder

	flight singleflight.Group
}

func NewStreamingGenerator(
	responseCache *cache.ResponseCache,
	breaker *resilience.CircuitBreaker,
	client CompletionClient,
	assembler *retrieval.PromptAssembler,
	costs CostRecorder,
	usage service.LLMUsageRecorder,
) *StreamingGenerator {
	if assembler == nil {
		assembler = retrieval.NewPromptAssembler(0)
	}
	return &StreamingGenerator{
		cache:     responseCache,
		breaker:   breaker,
		client:    client,
		assembler: assembler,
		costs:     costs,
		usage:     usage,
	}
}

// flightResult 一次成功生成的结果，供同 key 的等待者重放
type flightResult struct {
	entry   cache.Entry
	usage   quota.Usage
	costUSD float64
	// cached 领跑者在 singleflight 内复查时命中了其他请求刚写入的缓存
	cached bool
}

// streamError 携带失败前已累积的文本
type streamError struct {
	err     error
	partial string
}

func (e *streamError) Error() string { return e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

// Generate 返回惰性、有限、不可重启的事件序列；调用方读到终止事件后通道关闭
func (g *StreamingGenerator) Generate(ctx context.Context, req GenerateRequest) <-chan Event {
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		g.run(ctx, req, out)
	}()
	return out
}

func (g *StreamingGenerator) run(ctx context.Context, req GenerateRequest, out chan<- Event) {
	ctx, span := tracer.Start(ctx, "generation.Generate")
	defer span.End()
	start := time.Now()

	key := cache.ComputeKey(req.Query, req.DocumentIDs, req.Focus)
	span.SetAttributes(attribute.String("cache_key", key.Short()))

	if entry, ok := g.cache.Get(key); ok {
		logger.Info(ctx, "response cache hit", "cache_key", key.Short(), "session_id", req.SessionID)
		g.replay(ctx, entry, out)
		g.finish(span, "cached", start)
		return
	}

	for attempt := 0; ; attempt++ {
		leader := false
		v, err, shared := g.flight.Do(string(key), func() (any, error) {
			leader = true
			return g.lead(ctx, req, key, out)
		})

		if leader {
			if err != nil {
				g.fail(ctx, span, err, out, start)
				return
			}
			res := v.(*flightResult)
			if res.cached {
				g.replay(ctx, &res.entry, out)
				g.finish(span, "cached", start)
				return
			}
			for _, c := range res.entry.SourceChunks {
				if !emit(ctx, out, SourceEvent{Chunk: c}) {
					g.finish(span, "cancelled", start)
					return
				}
			}
			emitTerminal(ctx, out, DoneEvent{
				Usage:      res.usage,
				CostUSD:    res.costUSD,
				TokenCount: res.entry.TokenCount,
			})
			g.finish(span, "completed", start)
			return
		}

		// 跟随者：等待同 key 的领跑请求并重放其结果
		if err == nil {
			res := v.(*flightResult)
			logger.Info(ctx, "joined in-flight generation", "cache_key", key.Short(), "shared", shared)
			g.replay(ctx, &res.entry, out)
			g.finish(span, "cached", start)
			return
		}
		if errors.Is(err, context.Canceled) && ctx.Err() == nil && attempt < maxFollowAttempts {
			continue
		}
		// 跟随者未收到任何 token，不携带部分文本
		var se *streamError
		if errors.As(err, &se) {
			err = se.err
		}
		g.fail(ctx, span, err, out, start)
		return
	}
}

// lead 复查缓存，防止刚结束的领跑者写入后再次生成
func (g *StreamingGenerator) lead(ctx context.Context, req GenerateRequest, key cache.Key, out chan<- Event) (*flightResult, error) {
	if entry, ok := g.cache.Get(key); ok {
		logger.Info(ctx, "response cache hit after flight start", "cache_key", key.Short(), "session_id", req.SessionID)
		return &flightResult{entry: *entry, cached: true}, nil
	}
	return g.stream(ctx, req, key, out)
}

// stream 领跑者执行：熔断检查 -> 准备上下文 -> 组装提示词 -> 读取上游流
func (g *StreamingGenerator) stream(ctx context.Context, req GenerateRequest, key cache.Key, out chan<- Event) (*flightResult, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, &streamError{err: err}
	}

	pc := &PreparedContext{Chunks: req.Chunks, Summary: req.Summary, History: req.History}
	if req.Prepare != nil {
		prepared, err := req.Prepare(ctx)
		if err != nil {
			return nil, &streamError{err: err}
		}
		if prepared != nil {
			pc = prepared
		}
	}

	prompt := g.assembler.Assemble(retrieval.PromptInput{
		Query:   req.Query,
		Chunks:  pc.Chunks,
		Summary: pc.Summary,
		Focus:   req.Focus,
		History: pc.History,
	})

	callCtx := service.WithOperation(ctx, operationAnswer)
	callCtx = service.WithProvider(callCtx, g.client.Provider())
	callCtx = service.WithSession(callCtx, req.SessionID)

	started := time.Now()
	upstream, err := g.client.Stream(callCtx, prompt.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &streamError{err: ctx.Err()}
		}
		g.breaker.RecordFailure()
		return nil, &streamError{err: ClassifyUpstreamError(err)}
	}
	defer upstream.Close()

	var (
		buf   strings.Builder
		usage *quota.Usage
	)
	for {
		chunk, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, &streamError{err: ctx.Err(), partial: buf.String()}
			}
			g.breaker.RecordFailure()
			return nil, &streamError{err: ClassifyUpstreamError(err), partial: buf.String()}
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			usage = &u
		}
		if chunk.Content == "" {
			continue
		}
		buf.WriteString(chunk.Content)
		if !emit(ctx, out, TokenEvent{Text: chunk.Content}) {
			return nil, &streamError{err: ctx.Err(), partial: buf.String()}
		}
	}
	if ctx.Err() != nil {
		return nil, &streamError{err: ctx.Err(), partial: buf.String()}
	}
	g.breaker.RecordSuccess()

	text := buf.String()
	if usage == nil {
		usage = &quota.Usage{
			PromptTokens:     estimatePromptTokens(prompt),
			CompletionTokens: retrieval.EstimateTokens(text),
		}
	}

	// 唯一的缓存写入点：只有完整结束的回答才会进入缓存
	entry := cache.Entry{
		ResponseText: text,
		SourceChunks: prompt.Included,
		TokenCount:   usage.CompletionTokens,
		DocumentIDs:  req.DocumentIDs,
	}
	g.cache.Set(key, entry)

	bookkeeping := context.WithoutCancel(ctx)
	costUSD := 0.0
	if g.costs != nil {
		c, err := g.costs.RecordUsage(bookkeeping, req.SessionID, *usage)
		if err != nil {
			logger.Error(ctx, "failed to record session usage", err, "session_id", req.SessionID)
		}
		costUSD = c
	}
	if g.usage != nil {
		err := g.usage.Record(bookkeeping, service.LLMUsageInput{
			SessionID:        req.SessionID,
			Operation:        operationAnswer,
			Provider:         g.client.Provider(),
			Model:            g.client.Model(),
			PromptTokens:     usage.PromptTokens,
			CachedTokens:     usage.CachedTokens,
			CompletionTokens: usage.CompletionTokens,
			CostUSD:          costUSD,
			DurationMs:       int(time.Since(started).Milliseconds()),
		})
		if err != nil {
			logger.Error(ctx, "failed to record llm usage event", err, "session_id", req.SessionID)
		}
	}

	return &flightResult{entry: entry, usage: *usage, costUSD: costUSD}, nil
}

// replay 以缓存结果输出：整段文本、来源块，随后 Done(cost=0, cached=true)
func (g *StreamingGenerator) replay(ctx context.Context, entry *cache.Entry, out chan<- Event) {
	if entry.ResponseText != "" && !emit(ctx, out, TokenEvent{Text: entry.ResponseText}) {
		return
	}
	for _, c := range entry.SourceChunks {
		if !emit(ctx, out, SourceEvent{Chunk: c}) {
			return
		}
	}
	emitTerminal(ctx, out, DoneEvent{Cached: true, TokenCount: entry.TokenCount})
}

// fail 输出唯一的 Error 终止事件，保留已生成的部分文本
func (g *StreamingGenerator) fail(ctx context.Context, span trace.Span, err error, out chan<- Event, start time.Time) {
	partial := ""
	var se *streamError
	if errors.As(err, &se) {
		partial = se.partial
		err = se.err
	}

	outcome := "failed"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		outcome = "circuit_open"
		logger.Warn(ctx, "generation rejected by open circuit", "error", err.Error())
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
		logger.Info(ctx, "generation cancelled by client", "partial_chars", len(partial))
	default:
		tracer.RecordError(span, err)
		logger.Error(ctx, "generation failed", err, "partial_chars", len(partial))
	}

	emitTerminal(ctx, out, ErrorEvent{
		Message:         UserMessage(err),
		PartialResponse: partial,
		Err:             err,
	})
	g.finish(span, outcome, start)
}

func (g *StreamingGenerator) finish(span trace.Span, outcome string, start time.Time) {
	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.GenerationTotal.WithLabelValues(outcome).Inc()
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
}

// emit 发送非终止事件，ctx 结束时放弃
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal ctx 已结束时仅在缓冲区有空位时投递
func emitTerminal(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
		select {
		case out <- ev:
		default:
		}
	}
}

func estimatePromptTokens(p *retrieval.Prompt) int {
	n := 0
	for _, m := range p.Messages {
		n += retrieval.EstimateTokens(m.Content)
	}
	return n
}
