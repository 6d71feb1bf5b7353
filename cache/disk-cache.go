package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDiskCacheBytes is the default byte budget of a DiskCache.
	DefaultDiskCacheBytes int64 = 5 * 1024 * 1024

	// maxIndexEntries bounds the number of entries tracked by the
	// in-memory index regardless of the byte budget.
	maxIndexEntries = 4096

	filePerm os.FileMode = 0644
	dirPerm  os.FileMode = 0700
)

// DiskCache is a Cache storing one file per entry under a directory,
// evicting least-recently-used entries once the byte budget is
// exceeded. Entry files use the layout produced by EncodeEntry.
type DiskCache struct {
	dir      string
	maxBytes int64

	mu    sync.Mutex
	index *lru.Cache // key -> int64 file size
	size  int64
}

// NewDiskCache returns a disk cache rooted at dir.
// A maxBytes of zero or less selects DefaultDiskCacheBytes.
// The directory is created and scanned on Initialize.
func NewDiskCache(dir string, maxBytes int64) *DiskCache {
	if maxBytes <= 0 {
		maxBytes = DefaultDiskCacheBytes
	}
	return &DiskCache{
		dir:      dir,
		maxBytes: maxBytes,
	}
}

// Initialize creates the cache directory if needed and rebuilds the
// index from the entry files found there, oldest first.
func (d *DiskCache) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(d.dir, dirPerm); err != nil {
			return errors.Wrap(err, "failed to create cache dir")
		}
	}

	index, err := lru.NewWithEvict(maxIndexEntries, d.onEvict)
	if err != nil {
		return err
	}
	d.index = index
	d.size = 0

	files, err := os.ReadDir(d.dir)
	if err != nil {
		return errors.Wrap(err, "failed to scan cache dir")
	}
	type scanned struct {
		key     string
		size    int64
		modTime int64
	}
	entries := make([]scanned, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		b, err := os.ReadFile(filepath.Join(d.dir, f.Name()))
		if err != nil {
			continue
		}
		key, _, err := DecodeEntry(b)
		if err != nil {
			// not one of ours, or truncated; get rid of it
			log.Warn().Err(err).Str("file", f.Name()).Msg("Removing unreadable cache file")
			os.Remove(filepath.Join(d.dir, f.Name()))
			continue
		}
		entries = append(entries, scanned{key, int64(len(b)), info.ModTime().UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].modTime < entries[j].modTime })
	for _, e := range entries {
		d.index.Add(e.key, e.size)
		d.size += e.size
	}
	d.pruneLocked()
	return nil
}

// Get returns the entry stored for key, updating its recency.
func (d *DiskCache) Get(key string) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index == nil {
		return nil, errors.New("disk cache not initialized")
	}
	if _, ok := d.index.Get(key); !ok {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(d.path(key))
	if err != nil {
		d.index.Remove(key)
		return nil, errors.Wrap(err, "failed to read cache file")
	}
	fileKey, entry, err := DecodeEntry(b)
	if err != nil || fileKey != key {
		d.index.Remove(key)
		if err == nil {
			err = errors.Errorf("cache file key mismatch: %q", fileKey)
		}
		return nil, err
	}
	return entry, nil
}

// Put stores the entry for key, evicting older entries as needed.
// Entries larger than the byte budget are silently not stored.
func (d *DiskCache) Put(key string, entry *Entry) error {
	b := EncodeEntry(key, entry)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index == nil {
		return errors.New("disk cache not initialized")
	}
	if int64(len(b)) > d.maxBytes {
		log.Debug().Str("key", key).Int("bytes", len(b)).Msg("Entry too large to cache")
		return nil
	}
	// replacing an entry first drops the old size via the evict hook
	d.index.Remove(key)
	if err := os.WriteFile(d.path(key), b, filePerm); err != nil {
		return errors.Wrap(err, "failed to write cache file")
	}
	d.index.Add(key, int64(len(b)))
	d.size += int64(len(b))
	d.pruneLocked()
	return nil
}

// Invalidate zeroes the soft TTL of the entry for key, and the hard
// TTL as well when fullExpire is set.
func (d *DiskCache) Invalidate(key string, fullExpire bool) error {
	entry, err := d.Get(key)
	if err != nil {
		return err
	}
	entry.SoftTTL = 0
	if fullExpire {
		entry.TTL = 0
	}
	return d.Put(key, entry)
}

// Remove deletes the entry for key.
func (d *DiskCache) Remove(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index == nil {
		return errors.New("disk cache not initialized")
	}
	d.index.Remove(key)
	return nil
}

// Clear deletes every entry.
func (d *DiskCache) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index == nil {
		return errors.New("disk cache not initialized")
	}
	d.index.Purge()
	d.size = 0
	return nil
}

// onEvict runs inside index mutations; d.mu is already held.
func (d *DiskCache) onEvict(key, value interface{}) {
	d.size -= value.(int64)
	if err := os.Remove(d.path(key.(string))); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not remove evicted cache file")
	}
}

func (d *DiskCache) pruneLocked() {
	for d.size > d.maxBytes && d.index.Len() > 0 {
		d.index.RemoveOldest()
	}
}

func (d *DiskCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:]))
}
