package cache

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompressedCache wraps another Cache and compresses entry bodies
// before they are stored. Freshness metadata is left untouched, so
// Invalidate can delegate directly.
//
// Note the wrapped store no longer holds the interchange file layout;
// use it with stores that are private to this process.
type CompressedCache struct {
	inner Cache
}

// NewCompressedCache returns a cache compressing bodies into inner.
func NewCompressedCache(inner Cache) *CompressedCache {
	return &CompressedCache{inner: inner}
}

func (c *CompressedCache) Initialize() error {
	return c.inner.Initialize()
}

func (c *CompressedCache) Get(key string) (*Entry, error) {
	entry, err := c.inner.Get(key)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, entry.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress entry data")
	}
	out := entry.clone()
	out.Data = data
	return out, nil
}

func (c *CompressedCache) Put(key string, entry *Entry) error {
	compressed := entry.clone()
	compressed.Data = snappy.Encode(nil, entry.Data)
	return c.inner.Put(key, compressed)
}

func (c *CompressedCache) Invalidate(key string, fullExpire bool) error {
	return c.inner.Invalidate(key, fullExpire)
}

func (c *CompressedCache) Remove(key string) error {
	return c.inner.Remove(key)
}

func (c *CompressedCache) Clear() error {
	return c.inner.Clear()
}
