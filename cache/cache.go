// Package cache defines the storage contract for cached HTTP responses
// and ships disk-backed, sqlite-backed and in-memory implementations.
package cache

import (
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Cache is the interface for cache entry storage.
// It stores and retrieves entries representing parsed HTTP responses
// together with their freshness metadata.
//
// Implementations must be thread-safe: the cache dispatcher reads and
// the network dispatchers write concurrently.
type Cache interface {
	// Initialize prepares the cache for use.
	// It may perform blocking I/O and is called once by the cache
	// dispatcher before request processing starts.
	Initialize() error
	// Get returns the entry stored under the given key.
	// It returns ErrNotFound if the key is absent. Entries past their
	// hard TTL are still returned; staleness is the caller's business.
	Get(key string) (*Entry, error)
	// Put stores the given entry under the given key.
	Put(key string, entry *Entry) error
	// Invalidate marks the entry under the given key as needing
	// refresh by zeroing its soft TTL. If fullExpire is set, the hard
	// TTL is zeroed as well so the entry can only be used for
	// revalidation.
	Invalidate(key string, fullExpire bool) error
	// Remove deletes the entry under the given key.
	Remove(key string) error
	// Clear empties the cache.
	Clear() error
}
