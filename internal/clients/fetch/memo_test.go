package fetch

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMemoFirstWriteWins(t *testing.T) {
	memo := NewMemoryMemo()
	ctx := context.Background()

	_, ok := memo.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, memo.Put(ctx, "k", json.RawMessage(`1`)))
	require.NoError(t, memo.Put(ctx, "k", json.RawMessage(`2`)))

	got, ok := memo.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "1", string(got))
	assert.Equal(t, 1, memo.Len(ctx))
}

func TestMemoryMemoStoresCopy(t *testing.T) {
	memo := NewMemoryMemo()
	ctx := context.Background()

	value := json.RawMessage(`"abc"`)
	require.NoError(t, memo.Put(ctx, "k", value))
	value[1] = 'z'

	got, _ := memo.Get(ctx, "k")
	assert.Equal(t, `"abc"`, string(got))

	got[1] = 'z'
	again, ok := memo.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"abc"`, string(again))
}

func TestMemoryMemoConcurrentPut(t *testing.T) {
	memo := NewMemoryMemo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			memo.Put(ctx, "same", json.RawMessage(`{}`))
			memo.Get(ctx, "same")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, memo.Len(ctx))
}

func TestRedisMemoKeyPrefix(t *testing.T) {
	memo := NewRedisMemo(nil, "")
	assert.Equal(t, "cineplex:memo:http://api/x", memo.key("http://api/x"))

	memo = NewRedisMemo(nil, "test")
	assert.Equal(t, "test:http://api/x", memo.key("http://api/x"))
}

func TestRedisMemoMissesWhenUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	memo := NewRedisMemo(rdb, "")
	ctx := context.Background()

	got, ok := memo.Get(ctx, "http://api/x")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Error(t, memo.Put(ctx, "http://api/x", json.RawMessage(`1`)))
	assert.Equal(t, 0, memo.Len(ctx))
}

func TestRedisMemoFirstWriteWins(t *testing.T) {
	addr := os.Getenv("CINEPLEX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CINEPLEX_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	prefix := "cineplex:test:" + t.Name()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
	})
	memo := NewRedisMemo(rdb, prefix)

	_, ok := memo.Get(ctx, "http://api/x")
	assert.False(t, ok)

	require.NoError(t, memo.Put(ctx, "http://api/x", json.RawMessage(`{"v":1}`)))
	require.NoError(t, memo.Put(ctx, "http://api/x", json.RawMessage(`{"v":2}`)))
	require.NoError(t, memo.Put(ctx, "http://api/y", json.RawMessage(`[]`)))
	require.NoError(t, rdb.Set(ctx, "unrelated:"+t.Name(), "1", time.Minute).Err())

	got, ok := memo.Get(ctx, "http://api/x")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(got))
	assert.Equal(t, 2, memo.Len(ctx))
}
