package resource

import (
	"bytes"
	"compress/gzip"
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheStore is the durable second tier behind the in-memory cache.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheStats counts cache traffic.
type CacheStats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	MemoryHits int64 `json:"memory_hits"`
	StoreHits  int64 `json:"store_hits"`
	Evictions  int64 `json:"evictions"`
}

// value encoding prefixes.
const (
	encRaw  byte = 0x00
	encGzip byte = 0x01
)

// Cache is a two-tier cache: a bounded in-memory LRU in front of an
// optional durable store. Values above the compression threshold are
// gzip-compressed before hitting the store tier. Safe for concurrent use;
// conflicting sets are last-writer-wins.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
	stats   CacheStats

	maxEntries        int
	compressThreshold int
	ttl               time.Duration
	store             CacheStore
	logger            *zap.Logger
}

type cacheEntry struct {
	key   string
	value []byte
}

// NewCache creates a cache. store may be nil for memory-only operation;
// store failures degrade to memory-only rather than failing the caller.
func NewCache(maxEntries, compressThreshold int, ttl time.Duration, store CacheStore, logger *zap.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if compressThreshold <= 0 {
		compressThreshold = 4096
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries:           make(map[string]*list.Element),
		lru:               list.New(),
		maxEntries:        maxEntries,
		compressThreshold: compressThreshold,
		ttl:               ttl,
		store:             store,
		logger:            logger,
	}
}

// BatchKey derives the cache key for one unit of batch work from the
// function name, batch size, and the first and last items. Two batches with
// the same boundary items and size share a key.
func BatchKey(function string, batchSize int, firstItem, lastItem string) string {
	sum := sha256.Sum256([]byte(function + "|" + strconv.Itoa(batchSize) + "|" + firstItem + "|" + lastItem))
	return hex.EncodeToString(sum[:16])
}

// Get looks up a key, checking the memory tier first, then the store.
// Store hits are promoted into the memory tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		c.stats.Hits++
		c.stats.MemoryHits++
		val := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return val, true
	}
	c.mu.Unlock()

	if c.store != nil {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache store get failed, continuing memory-only", zap.Error(err))
		} else if ok {
			val, err := decode(raw)
			if err != nil {
				c.logger.Warn("cache store returned undecodable value", zap.String("key", key), zap.Error(err))
			} else {
				c.putMemory(key, val)
				c.mu.Lock()
				c.stats.Hits++
				c.stats.StoreHits++
				c.mu.Unlock()
				return val, true
			}
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return nil, false
}

// Set writes a value to both tiers. The store write is best-effort.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	c.putMemory(key, value)

	if c.store == nil {
		return
	}
	encoded, err := encode(value, c.compressThreshold)
	if err != nil {
		c.logger.Warn("cache value encoding failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
		c.logger.Warn("cache store set failed, continuing memory-only", zap.Error(err))
	}
}

// Stats returns a snapshot of the traffic counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) putMemory(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, value: value})
	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.stats.Evictions++
	}
}

// encode prefixes the value with its encoding byte, gzip-compressing values
// at or above the threshold.
func encode(value []byte, threshold int) ([]byte, error) {
	if len(value) < threshold {
		return append([]byte{encRaw}, value...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(encGzip)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(value); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty cache value")
	}
	switch raw[0] {
	case encRaw:
		return raw[1:], nil
	case encGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw[1:]))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unknown cache encoding 0x%02x", raw[0])
	}
}
