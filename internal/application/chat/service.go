// Package chat 编排问答会话：会话管理、输入校验、准入与流式回答的持久化
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/domain/repository"
	apperrors "docqa-rag-api/pkg/errors"
	"docqa-rag-api/pkg/logger"
)

const (
	// DetailMessageLimit 会话详情附带的最近消息数
	DetailMessageLimit = 50
	// DefaultMessagePageSize 消息列表默认分页大小
	DefaultMessagePageSize = 50
	maxPageSize            = 200
	defaultHistoryTurns    = 10
)

// Retriever 检索端口，由 retrieval.FocusAwareRetriever 实现
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.RetrieveRequest) (*retrieval.RankedChunks, error)
}

// Generator 生成端口，由 generation.StreamingGenerator 实现
type Generator interface {
	Generate(ctx context.Context, req generation.GenerateRequest) <-chan generation.Event
}

// SpendingGuard 花费上限检查，由 quota.SessionCostTracker 实现
type SpendingGuard interface {
	EnsureWithinLimit(ctx context.Context, sessionID string) error
}

// Config 检索与历史参数
type Config struct {
	TopK                int
	SimilarityThreshold float64
	HistoryTurns        int
}

// Service 会话应用服务
type Service struct {
	sessions  repository.ChatSessionRepository
	messages  repository.ChatMessageRepository
	documents repository.DocumentRepository
	tx        repository.Transactor

	retriever Retriever
	generator Generator
	limiter   *resilience.RateLimiter
	spending  SpendingGuard
	validator *InputValidator

	cfg Config
}

func NewService(
	sessions repository.ChatSessionRepository,
	messages repository.ChatMessageRepository,
	documents repository.DocumentRepository,
	tx repository.Transactor,
	retriever Retriever,
	generator Generator,
	limiter *resilience.RateLimiter,
	spending SpendingGuard,
	validator *InputValidator,
	cfg Config,
) *Service {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if validator == nil {
		validator = NewInputValidator(ValidatorConfig{})
	}
	return &Service{
		sessions:  sessions,
		messages:  messages,
		documents: documents,
		tx:        tx,
		retriever: retriever,
		generator: generator,
		limiter:   limiter,
		spending:  spending,
		validator: validator,
		cfg:       cfg,
	}
}

// SessionDetail 会话及其最近消息
type SessionDetail struct {
	Session  *entity.ChatSession
	Messages []*entity.ChatMessage
}

// SessionStats 会话统计
type SessionStats struct {
	SessionID     string
	TotalMessages int
	TotalTokens   int64
	CachedTokens  int64
	TotalCostUSD  float64
	Session       *entity.ChatSession
}

// CreateSession 创建会话；指定文档时文档必须存在
func (s *Service) CreateSession(ctx context.Context, documentID string) (*entity.ChatSession, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID != "" {
		if err := s.validator.ValidateID("document_id", documentID); err != nil {
			return nil, err
		}
		documentID = strings.ToLower(documentID)
		if _, err := s.documents.GetByID(ctx, documentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.ErrDocumentNotFound
			}
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load document")
		}
	}

	session := entity.NewChatSession(documentID)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	logger.Info(ctx, "chat session created", "session_id", session.ID, "document_id", documentID)
	return session, nil
}

// ListSessions 按更新时间倒序
func (s *Service) ListSessions(ctx context.Context, limit, offset int) ([]*entity.ChatSession, error) {
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	sessions, err := s.sessions.List(ctx, repository.NewPage(limit, offset, maxPageSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sessions")
	}
	return sessions, nil
}

// GetSession 返回会话与最近 50 条消息
func (s *Service) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListRecent(ctx, session.ID, DetailMessageLimit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load messages")
	}
	return &SessionDetail{Session: session, Messages: msgs}, nil
}

// DeleteSession 删除会话及其消息
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrSessionNotFound
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete session")
	}
	logger.Info(ctx, "chat session deleted", "session_id", session.ID)
	return nil
}

// Stats 返回会话累计的消息数、token 与花费
func (s *Service) Stats(ctx context.Context, id string) (*SessionStats, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionStats{
		SessionID:     session.ID,
		TotalMessages: session.MessageCount,
		TotalTokens:   session.TotalTokens,
		CachedTokens:  session.CachedTokens,
		TotalCostUSD:  session.TotalCostUSD,
		Session:       session,
	}, nil
}

// ListMessages 按时间正序分页，limit 为 0 时取默认值
func (s *Service) ListMessages(ctx context.Context, id string, limit, offset int) ([]*entity.ChatMessage, error) {
	session, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	msgs, err := s.messages.ListBySession(ctx, session.ID, repository.NewPage(limit, offset, maxPageSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list messages")
	}
	return msgs, nil
}

func (s *Service) loadSession(ctx context.Context, id string) (*entity.ChatSession, error) {
	if err := s.validator.ValidateID("session_id", strings.TrimSpace(id)); err != nil {
		return nil, apperrors.ErrSessionNotFound.WithError(err)
	}
	session, err := s.sessions.GetByID(ctx, strings.ToLower(strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	return session, nil
}

// persistMessage 写入消息并累加会话消息数
func (s *Service) persistMessage(ctx context.Context, msg *entity.ChatMessage) error {
	write := func(ctx context.Context) error {
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		return s.sessions.AddUsage(ctx, msg.SessionID, entity.UsageDelta{Messages: 1})
	}
	if s.tx == nil {
		return write(ctx)
	}
	return s.tx.WithTransaction(ctx, write)
}

// toTurns 转换为提示词历史，跳过当前问题本身
func toTurns(msgs []*entity.ChatMessage, skipID string, limit int) []retrieval.Turn {
	turns := make([]retrieval.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == skipID || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := schema.User
		if m.Role == entity.RoleAssistant {
			role = schema.Assistant
		}
		turns = append(turns, retrieval.Turn{Role: role, Content: m.Content})
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

// prepare 返回缓存未命中时才执行的上下文加载：检索与历史读取并行
func (s *Service) prepare(session *entity.ChatSession, query string, focus *retrieval.FocusContext, userMsgID string) func(ctx context.Context) (*generation.PreparedContext, error) {
	return func(ctx context.Context) (*generation.PreparedContext, error) {
		pc := &generation.PreparedContext{}
		g, gctx := errgroup.WithContext(ctx)

		if docID := session.DocumentIDValue(); docID != "" && s.retriever != nil {
			g.Go(func() error {
				ranked, err := s.retriever.Retrieve(gctx, retrieval.RetrieveRequest{
					Query:               query,
					DocumentID:          docID,
					Focus:               focus,
					TopK:                s.cfg.TopK,
					SimilarityThreshold: s.cfg.SimilarityThreshold,
				})
				if err != nil {
					return err
				}
				pc.Chunks = ranked.Chunks
				pc.Summary = ranked.Summary
				return nil
			})
		}

		g.Go(func() error {
			recent, err := s.messages.ListRecent(gctx, session.ID, s.cfg.HistoryTurns+1)
			if err != nil {
				return err
			}
			pc.History = toTurns(recent, userMsgID, s.cfg.HistoryTurns)
			return nil
		})

		if err := g.Wait(); err != nil {
			return nil, err
		}
		s.fillTitles(ctx, pc.Chunks)
		return pc, nil
	}
}

// fillTitles 补全向量库未携带的文档标题，失败时保留空标题
func (s *Service) fillTitles(ctx context.Context, chunks []retrieval.RetrievedChunk) {
	var missing []string
	seen := make(map[string]struct{})
	for _, c := range chunks {
		if c.DocumentTitle != "" {
			continue
		}
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		missing = append(missing, c.DocumentID)
	}
	if len(missing) == 0 || s.documents == nil {
		return
	}
	titles, err := s.documents.GetTitles(ctx, missing)
	if err != nil {
		logger.Warn(ctx, "failed to load document titles", "error", err.Error())
		return
	}
	for i := range chunks {
		if chunks[i].DocumentTitle == "" {
			chunks[i].DocumentTitle = titles[chunks[i].DocumentID]
		}
	}
}
