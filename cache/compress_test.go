package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressedCacheRoundTrip(t *testing.T) {
	inner := newTestSQLiteCache(t)
	c := NewCompressedCache(inner)

	body := strings.Repeat("compress me ", 100)
	require.NoError(t, c.Put("k", testEntry(body)))

	// stored form is compressed
	stored, err := inner.Get("k")
	require.NoError(t, err)
	assert.Less(t, len(stored.Data), len(body))

	// read form is transparent
	entry, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, body, string(entry.Data))
	assert.Equal(t, `"e"`, entry.ETag)
}

func TestCompressedCacheDoesNotMutateInput(t *testing.T) {
	inner := newTestSQLiteCache(t)
	c := NewCompressedCache(inner)

	entry := testEntry("plain body")
	require.NoError(t, c.Put("k", entry))
	assert.Equal(t, "plain body", string(entry.Data))
}

func TestCompressedCacheDelegates(t *testing.T) {
	inner := newTestSQLiteCache(t)
	c := NewCompressedCache(inner)
	require.NoError(t, c.Put("k", testEntry("v")))

	require.NoError(t, c.Invalidate("k", true))
	entry, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, entry.IsExpired())

	require.NoError(t, c.Remove("k"))
	_, err = c.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Clear())
}
