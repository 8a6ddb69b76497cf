package chat

import (
	"context"
	"strings"

	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/domain/entity"
	apperrors "docqa-rag-api/pkg/errors"
	"docqa-rag-api/pkg/logger"
)

const relayBuffer = 16

// SendMessageInput 发送消息请求
type SendMessageInput struct {
	SessionID string
	Message   string
	Focus     *FocusInput
}

// SendMessage 校验、准入并持久化用户消息后返回事件流
//
// 准入之前的失败以 error 返回，不占用并发名额；之后的失败以 ErrorEvent 结束事件流。
// 读到终止事件后通道关闭，此时助手消息已落库、并发名额已归还。
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (<-chan generation.Event, error) {
	query, err := s.validator.ValidateMessage(in.Message)
	if err != nil {
		return nil, err
	}
	focus, err := s.validator.ValidateFocus(in.Focus)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithSession(ctx, session.ID)

	if s.spending != nil {
		if err := s.spending.EnsureWithinLimit(ctx, session.ID); err != nil {
			return nil, err
		}
	}

	admission, err := s.limiter.Admit(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to check rate limit")
	}
	if err := admission.Err(); err != nil {
		return nil, err
	}
	release := s.limiter.ReleaseFunc(session.ID)

	userMsg := entity.NewChatMessage(session.ID, entity.RoleUser, query, &entity.MessageMetadata{
		FocusContext: focusSnapshot(focus),
	})
	if err := s.persistMessage(ctx, userMsg); err != nil {
		release()
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save message")
	}

	var documentIDs []string
	if id := session.DocumentIDValue(); id != "" {
		documentIDs = []string{id}
	}
	events := s.generator.Generate(ctx, generation.GenerateRequest{
		Query:       query,
		SessionID:   session.ID,
		DocumentIDs: documentIDs,
		Focus:       focus,
		Prepare:     s.prepare(session, query, focus, userMsg.ID),
	})

	out := make(chan generation.Event, relayBuffer)
	go s.relay(ctx, session.ID, events, out, release)
	return out, nil
}

// relay 转发事件并在生成结束后保存助手消息；客户端断开后继续排空上游通道
func (s *Service) relay(ctx context.Context, sessionID string, in <-chan generation.Event, out chan<- generation.Event, release func()) {
	defer close(out)
	defer release()

	var rec answerRecord
	for ev := range in {
		rec.observe(ev)
		select {
		case out <- ev:
		case <-ctx.Done():
			if ev.Terminal() {
				select {
				case out <- ev:
				default:
				}
			}
		}
	}
	s.saveAnswer(context.WithoutCancel(ctx), sessionID, &rec)
}

// answerRecord 从事件流累积助手消息
type answerRecord struct {
	text     strings.Builder
	sources  []entity.MessageSource
	done     *generation.DoneEvent
	failed   *generation.ErrorEvent
	terminal bool
}

func (r *answerRecord) observe(ev generation.Event) {
	switch e := ev.(type) {
	case generation.TokenEvent:
		r.text.WriteString(e.Text)
	case generation.SourceEvent:
		r.sources = append(r.sources, entity.MessageSource{
			ChunkID:    e.Chunk.ChunkID,
			DocumentID: e.Chunk.DocumentID,
			Similarity: e.Chunk.BoostedSimilarity,
			Text:       e.Chunk.Text,
			ChunkIndex: e.Chunk.ChunkIndex,
		})
	case generation.DoneEvent:
		r.done = &e
		r.terminal = true
	case generation.ErrorEvent:
		r.failed = &e
		r.terminal = true
	}
}

func (r *answerRecord) content() string {
	if s := r.text.String(); s != "" {
		return s
	}
	if r.failed != nil {
		return r.failed.PartialResponse
	}
	return ""
}

// saveAnswer 有文本就保存，包括被中断的部分回答
func (s *Service) saveAnswer(ctx context.Context, sessionID string, rec *answerRecord) {
	text := rec.content()
	if text == "" {
		return
	}
	meta := &entity.MessageMetadata{
		Sources:     rec.sources,
		Interrupted: rec.failed != nil || !rec.terminal,
	}
	if rec.done != nil {
		meta.TokenCount = rec.done.TokenCount
		meta.CostUSD = rec.done.CostUSD
		meta.Cached = rec.done.Cached
	}

	msg := entity.NewChatMessage(sessionID, entity.RoleAssistant, text, meta)
	if err := s.persistMessage(ctx, msg); err != nil {
		logger.Error(ctx, "failed to save assistant message", err, "session_id", sessionID)
		return
	}
	if meta.Interrupted {
		logger.Info(ctx, "partial answer saved", "session_id", sessionID, "chars", len(text))
	}
}

func focusSnapshot(f *retrieval.FocusContext) *entity.FocusSnapshot {
	if f == nil {
		return nil
	}
	return &entity.FocusSnapshot{
		DocumentID:      f.DocumentID,
		StartChar:       f.StartChar,
		EndChar:         f.EndChar,
		SurroundingText: f.SurroundingText,
	}
}
