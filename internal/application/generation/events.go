// Package generation 编排缓存、熔断与流式补全，产出有序的流事件
package generation

import (
	"docqa-rag-api/internal/application/quota"
	"docqa-rag-api/internal/application/retrieval"
)

// Event 流事件，封闭类型：TokenEvent | SourceEvent | DoneEvent | ErrorEvent
//
// 序列为零个或多个 Token/Source，随后恰好一个终止事件（Done 或 Error）。
type Event interface {
	// Terminal 是否为终止事件
	Terminal() bool
	sealed()
}

// TokenEvent 上游返回的一个增量片段
type TokenEvent struct {
	Text string
}

// SourceEvent 回答引用的块
type SourceEvent struct {
	Chunk retrieval.RetrievedChunk
}

// DoneEvent 正常结束
type DoneEvent struct {
	Usage   quota.Usage
	CostUSD float64
	Cached  bool
	// TokenCount 回答的 completion token 数，缓存命中时取自缓存条目
	TokenCount int
}

// ErrorEvent 异常结束，Message 取自固定的用户可见文案
type ErrorEvent struct {
	Message         string
	PartialResponse string
	// Err 原始错误，仅用于日志与持久化判断，不下发给客户端
	Err error
}

func (TokenEvent) Terminal() bool  { return false }
func (SourceEvent) Terminal() bool { return false }
func (DoneEvent) Terminal() bool   { return true }
func (ErrorEvent) Terminal() bool  { return true }

func (TokenEvent) sealed()  {}
func (SourceEvent) sealed() {}
func (DoneEvent) sealed()   {}
func (ErrorEvent) sealed()  {}
