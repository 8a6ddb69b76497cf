package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-rag-api/internal/application/cache"
	"docqa-rag-api/internal/application/chat"
	"docqa-rag-api/internal/application/generation"
	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/resilience"
	"docqa-rag-api/internal/application/retrieval"
	"docqa-rag-api/internal/domain/entity"
	"docqa-rag-api/internal/infrastructure/messaging"
	apperrors "docqa-rag-api/pkg/errors"
)

const testSessionID = "550e8400-e29b-41d4-a716-446655440000"

type fakeChatService struct {
	session *entity.ChatSession
	events  []generation.Event
	sendErr error
	getErr  error
	lastIn  chat.SendMessageInput
}

func (f *fakeChatService) CreateSession(_ context.Context, documentID string) (*entity.ChatSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return entity.NewChatSession(documentID), nil
}

func (f *fakeChatService) ListSessions(context.Context, int, int) ([]*entity.ChatSession, error) {
	return []*entity.ChatSession{f.session}, nil
}

func (f *fakeChatService) GetSession(context.Context, string) (*chat.SessionDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &chat.SessionDetail{Session: f.session}, nil
}

func (f *fakeChatService) DeleteSession(context.Context, string) error { return f.getErr }

func (f *fakeChatService) Stats(context.Context, string) (*chat.SessionStats, error) {
	return &chat.SessionStats{SessionID: f.session.ID, Session: f.session}, nil
}

func (f *fakeChatService) ListMessages(context.Context, string, int, int) ([]*entity.ChatMessage, error) {
	return nil, nil
}

func (f *fakeChatService) SendMessage(_ context.Context, in chat.SendMessageInput) (<-chan generation.Event, error) {
	f.lastIn = in
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	ch := make(chan generation.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newChatEngine(svc ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(svc)
	r := gin.New()
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:sid", h.GetSession)
	r.DELETE("/sessions/:sid", h.DeleteSession)
	r.POST("/sessions/:sid/messages", h.SendMessage)
	return r
}

type sseFrame struct {
	event string
	data  string
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var (
		frames []sseFrame
		cur    sseFrame
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.event != "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	if cur.event != "" {
		frames = append(frames, cur)
	}
	return frames
}

// streamRecorder gin 的 Stream 依赖 http.CloseNotifier
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func postMessage(r http.Handler, body string) *streamRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+testSessionID+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := newStreamRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSendMessage_StreamsEventsInOrder(t *testing.T) {
	svc := &fakeChatService{events: []generation.Event{
		generation.TokenEvent{Text: "Hello"},
		generation.TokenEvent{Text: " world"},
		generation.SourceEvent{Chunk: retrieval.RetrievedChunk{ChunkID: "c1", DocumentID: "d1", BoostedSimilarity: 0.9, Text: "chunk", ChunkIndex: 2}},
		generation.DoneEvent{Usage: quota.Usage{PromptTokens: 10, CompletionTokens: 2}, CostUSD: 0.001},
		generation.TokenEvent{Text: "never sent"},
	}}
	r := newChatEngine(svc)

	w := postMessage(r, `{"message":"hi","focus_context":{"document_id":"`+testSessionID+`","start_char":1,"end_char":5}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	assert.Equal(t, testSessionID, svc.lastIn.SessionID)
	require.NotNil(t, svc.lastIn.Focus)
	assert.Equal(t, 5, svc.lastIn.Focus.EndChar)

	frames := parseSSE(t, w.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "token", frames[0].event)
	assert.JSONEq(t, `{"token":"Hello"}`, frames[0].data)
	assert.Equal(t, "source", frames[2].event)
	assert.JSONEq(t, `{"chunk_id":"c1","document_id":"d1","similarity":0.9,"text":"chunk","chunk_index":2}`, frames[2].data)
	assert.Equal(t, "done", frames[3].event)

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(frames[3].data), &done))
	assert.EqualValues(t, 10, done["prompt_tokens"])
	assert.EqualValues(t, 2, done["completion_tokens"])
	assert.Equal(t, false, done["cached"])
}

func TestSendMessage_ErrorEventCarriesPartialResponse(t *testing.T) {
	svc := &fakeChatService{events: []generation.Event{
		generation.TokenEvent{Text: "part"},
		generation.ErrorEvent{Message: generation.MsgInterrupted, PartialResponse: "part", Err: context.Canceled},
	}}
	w := postMessage(newChatEngine(svc), `{"message":"hi"}`)

	frames := parseSSE(t, w.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "error", frames[1].event)
	assert.JSONEq(t, `{"error":"Connection interrupted","partial_response":"part"}`, frames[1].data)
}

func TestSendMessage_ValidationErrorIs422(t *testing.T) {
	svc := &fakeChatService{sendErr: &chat.ValidationError{Field: "message", Message: "Message cannot be empty"}}
	w := postMessage(newChatEngine(svc), `{"message":""}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Message cannot be empty")
}

func TestSendMessage_MalformedBodyIs422(t *testing.T) {
	w := postMessage(newChatEngine(&fakeChatService{}), `{"message":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSendMessage_PreStreamFailuresBecomeSingleErrorEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", &resilience.RateLimitExceededError{Reason: resilience.ReasonQueryLimit, Limit: 100}, generation.MsgRateLimited},
		{"concurrent", &resilience.RateLimitExceededError{Reason: resilience.ReasonConcurrentStreams, Limit: 3}, generation.MsgConcurrentStreams},
		{"session missing", apperrors.ErrSessionNotFound, "Session not found. It may have been deleted."},
		{"unexpected", errors.New("boom"), generation.MsgUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postMessage(newChatEngine(&fakeChatService{sendErr: tt.err}), `{"message":"hi"}`)

			assert.Equal(t, http.StatusOK, w.Code)
			frames := parseSSE(t, w.Body.String())
			require.Len(t, frames, 1)
			assert.Equal(t, "error", frames[0].event)

			var payload map[string]string
			require.NoError(t, json.Unmarshal([]byte(frames[0].data), &payload))
			assert.Equal(t, tt.want, payload["error"])
			assert.NotContains(t, frames[0].data, "boom")
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	svc := &fakeChatService{session: entity.NewChatSession("")}
	r := newChatEngine(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+svc.session.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), svc.session.ID)

	svc.getErr = apperrors.ErrSessionNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/"+svc.session.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.getErr = &chat.ValidationError{Field: "session_id", Message: "Invalid session_id format"}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/bad", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "session_id")
}

type fakeInvalidator struct {
	docs []string
}

func (f *fakeInvalidator) InvalidateDocument(_ context.Context, id string) (int, error) {
	f.docs = append(f.docs, id)
	return 2, nil
}

type fakePublisher struct {
	events []*messaging.DocumentEvent
}

func (f *fakePublisher) PublishDocumentEvent(_ context.Context, _ string, ev *messaging.DocumentEvent) (string, error) {
	f.events = append(f.events, ev)
	return "1-0", nil
}

func TestAdminHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	responses := cache.New(cache.Config{MaxSize: 10, TTL: time.Hour})
	responses.Set(cache.ComputeKey("q", []string{"d1"}, nil), cache.Entry{ResponseText: "a", DocumentIDs: []string{"d1"}})
	breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("llm"))
	inv := &fakeInvalidator{}
	pub := &fakePublisher{}

	h := NewAdminHandler(responses, breaker, inv, pub)
	r := gin.New()
	r.GET("/status", h.Status)
	r.POST("/documents/:id/invalidate", h.InvalidateDocument)
	r.DELETE("/cache", h.ClearCache)
	r.POST("/circuit-breaker/reset", h.ResetCircuitBreaker)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"closed"`)
	assert.Contains(t, w.Body.String(), `"size":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents/D1/invalidate", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"d1"}, inv.docs)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "d1", pub.events[0].DocumentID)
	assert.Contains(t, w.Body.String(), `"published":true`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries_removed":1`)

	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, resilience.StateOpen, breaker.State())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/circuit-breaker/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"closed"`)
	assert.Equal(t, resilience.StateClosed, breaker.State())
	assert.NoError(t, breaker.Allow())
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestHealthHandler_Ready(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &HealthHandler{version: "test", deps: []dependency{
		{name: "postgres", checker: stubChecker{}, required: true},
		{name: "milvus", checker: stubChecker{err: errors.New("down")}},
	}}
	r := gin.New()
	r.GET("/ready", h.Ready)
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)

	h.deps[0].checker = stubChecker{err: errors.New("refused")}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())
}
