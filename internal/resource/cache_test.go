package resource

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	failed bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return nil, false, errors.New("store unavailable")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errors.New("store unavailable")
	}
	s.data[key] = value
	return nil
}

func TestBatchKeyDeterministic(t *testing.T) {
	a := BatchKey("normalize", 500, "row-1", "row-500")
	b := BatchKey("normalize", 500, "row-1", "row-500")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, BatchKey("normalize", 500, "row-2", "row-500"))
	assert.NotEqual(t, a, BatchKey("normalize", 250, "row-1", "row-500"))
	assert.NotEqual(t, a, BatchKey("dedup", 500, "row-1", "row-500"))
}

func TestCacheMemoryTier(t *testing.T) {
	c := NewCache(10, 0, 0, nil, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)

	c.Set(ctx, "k1", []byte("v1"))
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2, 0, 0, nil, nil)
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"))
	c.Set(ctx, "b", []byte("2"))
	c.Get(ctx, "a") // a is now most recently used
	c.Set(ctx, "c", []byte("3"))

	_, ok := c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry evicts first")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCacheStoreTierPromotion(t *testing.T) {
	store := newFakeStore()
	warm := NewCache(10, 0, 0, store, nil)
	ctx := context.Background()
	warm.Set(ctx, "k1", []byte("shared"))

	// A fresh memory tier over the same store finds the value there.
	cold := NewCache(10, 0, 0, store, nil)
	got, ok := cold.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("shared"), got)
	assert.Equal(t, int64(1), cold.Stats().StoreHits)

	// Second read hits the promoted memory copy.
	_, ok = cold.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, int64(1), cold.Stats().MemoryHits)
}

func TestCacheCompressesLargeValues(t *testing.T) {
	store := newFakeStore()
	c := NewCache(10, 64, 0, store, nil)
	ctx := context.Background()

	large := bytes.Repeat([]byte("abcdefgh"), 64) // 512 B, compressible
	c.Set(ctx, "big", large)

	raw := store.data["big"]
	require.NotEmpty(t, raw)
	assert.Equal(t, encGzip, raw[0])
	assert.Less(t, len(raw), len(large), "stored value must be compressed")

	// Round-trips through a cold cache.
	cold := NewCache(10, 64, 0, store, nil)
	got, ok := cold.Get(ctx, "big")
	require.True(t, ok)
	assert.Equal(t, large, got)

	// Small values stay raw.
	c.Set(ctx, "small", []byte("tiny"))
	assert.Equal(t, encRaw, store.data["small"][0])
}

func TestCacheDegradesWhenStoreFails(t *testing.T) {
	store := newFakeStore()
	store.failed = true
	c := NewCache(10, 0, 0, store, nil)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"))
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok, "memory tier must keep working when the store is down")
	assert.Equal(t, []byte("v1"), got)
}
