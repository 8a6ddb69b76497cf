// Package memory 提供基于 go-cache 的进程内存储驱动，会话空闲超时后自动过期
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	cleanupInterval   = 10 * time.Minute
)

// Store 进程内存储，会话与其消息作为同一条记录过期
type Store struct {
	// mu 保护跨多次 cache 调用的读改写
	mu       sync.Mutex
	sessions *cache.Cache

	docMu     sync.RWMutex
	documents map[string]*documentRecord

	usageMu sync.Mutex
	usage   []usageRecord
}

// NewStore ttl 为会话最后一次写入后的存活时间
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{
		sessions:  cache.New(ttl, cleanupInterval),
		documents: make(map[string]*documentRecord),
	}
}

// TxManager 进程内存储没有事务，直接执行
type TxManager struct{}

func NewTxManager() *TxManager {
	return &TxManager{}
}

// WithTransaction 实现 repository.Transactor
func (TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
