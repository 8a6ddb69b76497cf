package dto

import "docqa-rag-api/internal/application/generation"

// SSE 事件名
const (
	SSEToken  = "token"
	SSESource = "source"
	SSEDone   = "done"
	SSEError  = "error"
)

// TokenPayload token 事件
type TokenPayload struct {
	Token string `json:"token"`
}

// SourcePayload source 事件，similarity 为焦点加权后的值
type SourcePayload struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
}

// DonePayload done 事件
type DonePayload struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	CostUSD          float64 `json:"cost_usd"`
	Cached           bool    `json:"cached"`
}

// ErrorPayload error 事件
type ErrorPayload struct {
	Error           string `json:"error"`
	PartialResponse string `json:"partial_response,omitempty"`
}

// SSEEvent 把生成事件转换为 SSE 事件名与载荷
func SSEEvent(ev generation.Event) (string, any) {
	switch e := ev.(type) {
	case generation.TokenEvent:
		return SSEToken, TokenPayload{Token: e.Text}
	case generation.SourceEvent:
		return SSESource, SourcePayload{
			ChunkID:    e.Chunk.ChunkID,
			DocumentID: e.Chunk.DocumentID,
			Similarity: e.Chunk.BoostedSimilarity,
			Text:       e.Chunk.Text,
			ChunkIndex: e.Chunk.ChunkIndex,
		}
	case generation.DoneEvent:
		return SSEDone, DonePayload{
			PromptTokens:     e.Usage.PromptTokens,
			CompletionTokens: e.Usage.CompletionTokens,
			CachedTokens:     e.Usage.CachedTokens,
			CostUSD:          e.CostUSD,
			Cached:           e.Cached,
		}
	case generation.ErrorEvent:
		return SSEError, ErrorPayload{Error: e.Message, PartialResponse: e.PartialResponse}
	default:
		return SSEError, ErrorPayload{Error: generation.MsgUnexpected}
	}
}
