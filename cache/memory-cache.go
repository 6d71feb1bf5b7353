package cache

import (
	"unsafe"

	"github.com/dgraph-io/ristretto"
)

var entrySize = int64(unsafe.Sizeof(Entry{}))

// MemoryCache is a Cache holding entries in memory with cost-based
// admission and eviction.
type MemoryCache struct {
	cache *ristretto.Cache
}

// NewMemoryCache returns a memory cache bounded to roughly maxBytes.
// A maxBytes of zero or less selects DefaultDiskCacheBytes.
func NewMemoryCache(maxBytes int64) *MemoryCache {
	if maxBytes <= 0 {
		maxBytes = DefaultDiskCacheBytes
	}
	// assume entries of roughly 1KiB when sizing the admission counters
	counters := maxBytes / 1024 * 10
	if counters < 1024 {
		counters = 1024
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		panic(err)
	}
	return &MemoryCache{cache: cache}
}

func entryCost(key string, e *Entry) int64 {
	s := entrySize
	s += int64(len(key) + len(e.ETag) + cap(e.Data))
	// estimate the size of the header map itself
	s += 5*8 + int64(len(e.ResponseHeaders)*8)
	for k, v := range e.ResponseHeaders {
		s += int64(len(k) + len(v))
	}
	return s
}

func (m *MemoryCache) Initialize() error {
	return nil
}

func (m *MemoryCache) Get(key string) (*Entry, error) {
	v, ok := m.cache.Get(key)
	if !ok || v == nil {
		return nil, ErrNotFound
	}
	return v.(*Entry).clone(), nil
}

func (m *MemoryCache) Put(key string, entry *Entry) error {
	m.cache.Set(key, entry.clone(), entryCost(key, entry))
	// make the write visible to an immediately following Get
	m.cache.Wait()
	return nil
}

func (m *MemoryCache) Invalidate(key string, fullExpire bool) error {
	entry, err := m.Get(key)
	if err != nil {
		return err
	}
	entry.SoftTTL = 0
	if fullExpire {
		entry.TTL = 0
	}
	return m.Put(key, entry)
}

func (m *MemoryCache) Remove(key string) error {
	m.cache.Del(key)
	return nil
}

func (m *MemoryCache) Clear() error {
	m.cache.Clear()
	return nil
}
