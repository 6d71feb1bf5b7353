package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(body string) *Entry {
	return &Entry{
		Data:            []byte(body),
		ETag:            `"e"`,
		TTL:             4102444800000,
		SoftTTL:         4102444800000,
		ResponseHeaders: map[string]string{"Content-Type": "text/plain"},
	}
}

func newTestDiskCache(t *testing.T, maxBytes int64) *DiskCache {
	t.Helper()
	d := NewDiskCache(t.TempDir(), maxBytes)
	require.NoError(t, d.Initialize())
	return d
}

func TestDiskCachePutGet(t *testing.T) {
	d := newTestDiskCache(t, 0)

	require.NoError(t, d.Put("k", testEntry("hello")))
	entry, err := d.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(entry.Data))
	assert.Equal(t, `"e"`, entry.ETag)
	assert.Equal(t, "text/plain", entry.ResponseHeaders["Content-Type"])

	_, err = d.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskCacheRemoveAndClear(t *testing.T) {
	d := newTestDiskCache(t, 0)
	require.NoError(t, d.Put("a", testEntry("1")))
	require.NoError(t, d.Put("b", testEntry("2")))

	require.NoError(t, d.Remove("a"))
	_, err := d.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Clear())
	_, err = d.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskCacheInvalidate(t *testing.T) {
	d := newTestDiskCache(t, 0)
	require.NoError(t, d.Put("k", testEntry("v")))

	require.NoError(t, d.Invalidate("k", false))
	entry, err := d.Get("k")
	require.NoError(t, err)
	assert.True(t, entry.RefreshNeeded())
	assert.False(t, entry.IsExpired())

	require.NoError(t, d.Invalidate("k", true))
	entry, err = d.Get("k")
	require.NoError(t, err)
	assert.True(t, entry.IsExpired())
}

func TestDiskCacheSurvivesReinitialize(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskCache(dir, 0)
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Put("k", testEntry("persisted")))

	// a new cache over the same directory picks the entry up
	reopened := NewDiskCache(dir, 0)
	require.NoError(t, reopened.Initialize())
	entry, err := reopened.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(entry.Data))
}

func TestDiskCacheEvictsLeastRecentlyUsed(t *testing.T) {
	// room for roughly two of the ~1KiB entries below
	d := newTestDiskCache(t, 2300)
	big := strings.Repeat("x", 1024)

	require.NoError(t, d.Put("a", testEntry(big)))
	require.NoError(t, d.Put("b", testEntry(big)))
	// touch "a" so "b" is the eviction candidate
	_, err := d.Get("a")
	require.NoError(t, err)

	require.NoError(t, d.Put("c", testEntry(big)))

	_, err = d.Get("b")
	assert.ErrorIs(t, err, ErrNotFound, "least recently used entry must be evicted")
	_, err = d.Get("a")
	assert.NoError(t, err)
	_, err = d.Get("c")
	assert.NoError(t, err)
}

func TestDiskCacheRejectsOversizedEntry(t *testing.T) {
	d := newTestDiskCache(t, 100)
	require.NoError(t, d.Put("k", testEntry(strings.Repeat("x", 1024))))
	_, err := d.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}
