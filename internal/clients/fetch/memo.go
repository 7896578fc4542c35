package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Memo stores decoded payloads by request target. Entries never expire and
// are never replaced: the first Put for a key wins.
type Memo interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Put(ctx context.Context, key string, value json.RawMessage) error
	Len(ctx context.Context) int
}

// MemoryMemo is a process-local Memo.
type MemoryMemo struct {
	mu    sync.RWMutex
	store map[string]json.RawMessage
}

func NewMemoryMemo() *MemoryMemo {
	return &MemoryMemo{store: make(map[string]json.RawMessage)}
}

func (m *MemoryMemo) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.store[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), value...), true
}

func (m *MemoryMemo) Put(ctx context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.store[key]; exists {
		return nil
	}
	stored := make(json.RawMessage, len(value))
	copy(stored, value)
	m.store[key] = stored
	return nil
}

func (m *MemoryMemo) Len(ctx context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// RedisMemo shares memoized payloads between service instances. Keys are
// written with SETNX and no expiry.
type RedisMemo struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMemo(rdb *redis.Client, prefix string) *RedisMemo {
	if prefix == "" {
		prefix = "cineplex:memo"
	}
	return &RedisMemo{rdb: rdb, prefix: prefix}
}

func (m *RedisMemo) key(target string) string {
	return m.prefix + ":" + target
}

func (m *RedisMemo) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	data, err := m.rdb.Get(ctx, m.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(data), true
}

func (m *RedisMemo) Put(ctx context.Context, key string, value json.RawMessage) error {
	if err := m.rdb.SetNX(ctx, m.key(key), []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("failed to store memo entry: %w", err)
	}
	return nil
}

// Len counts keys under the prefix. It scans the keyspace, so keep it off hot paths.
func (m *RedisMemo) Len(ctx context.Context) int {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := m.rdb.Scan(ctx, cursor, m.prefix+":*", 500).Result()
		if err != nil {
			return count
		}
		count += len(keys)
		if next == 0 {
			return count
		}
		cursor = next
	}
}
