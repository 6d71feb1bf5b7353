// Package quiver is a client-side HTTP request scheduling and caching
// library. Requests are added asynchronously, served from a local
// cache when fresh, fetched and revalidated over the network when not,
// and delivered back to the caller on a designated callback context.
package quiver

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quiver-http/quiver/cache"
)

// DefaultPoolSize is the number of network dispatcher goroutines
// started when Config.PoolSize is zero.
const DefaultPoolSize = 4

// Config configures a RequestQueue. The zero value is usable: it
// selects a disk cache in the default directory, the basic net/http
// transport, a queue-owned serial delivery goroutine and the default
// pool size.
type Config struct {
	// Cache stores responses. Defaults to a DiskCache under CacheDir.
	Cache cache.Cache
	// CacheDir is the directory of the default disk cache. Defaults to
	// a "quiver" directory under the OS temp dir.
	CacheDir string
	// Network performs HTTP round trips. Defaults to a BasicNetwork
	// with a default client.
	Network Network
	// Delivery marshals callbacks. When nil the queue runs its own
	// serial delivery goroutine.
	Delivery ResponseDelivery
	// PoolSize is the number of network dispatcher goroutines.
	PoolSize int
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// RequestQueue owns the dispatch pipeline: the cache and network
// priority queues, the dispatcher goroutines draining them, the set of
// requests currently in flight and the waiting list that collapses
// duplicate in-flight requests onto a single network call.
type RequestQueue struct {
	cache    cache.Cache
	network  Network
	delivery ResponseDelivery
	poolSize int
	log      zerolog.Logger

	cacheQueue   *priorityQueue
	networkQueue *priorityQueue

	seq atomic.Uint64

	mu sync.Mutex
	// requests between Add and finish
	current map[*Request]struct{}
	// cacheKey -> requests suppressed behind an in-flight request for
	// the same key; the key's presence alone marks a request in flight
	waiting map[string][]*Request

	running      bool
	ownsDelivery bool
	quit         *atomic.Bool
	group        *errgroup.Group
	executor     *serialExecutor
}

// NewRequestQueue returns a queue with the given configuration.
// Call Start to begin processing.
func NewRequestQueue(cfg Config) *RequestQueue {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	c := cfg.Cache
	if c == nil {
		dir := cfg.CacheDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "quiver")
		}
		c = cache.NewDiskCache(dir, 0)
	}

	network := cfg.Network
	if network == nil {
		network = NewBasicNetwork(nil)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	return &RequestQueue{
		cache:        c,
		network:      network,
		delivery:     cfg.Delivery,
		ownsDelivery: cfg.Delivery == nil,
		poolSize:     poolSize,
		log:          logger,
		cacheQueue:   newPriorityQueue(),
		networkQueue: newPriorityQueue(),
		current:      make(map[*Request]struct{}),
		waiting:      make(map[string][]*Request),
	}
}

// Start spawns the cache dispatcher, the network dispatcher pool and,
// unless a delivery was injected, the delivery goroutine. Any previous
// dispatchers are stopped first.
func (q *RequestQueue) Start() {
	q.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.quit = &atomic.Bool{}
	q.group = &errgroup.Group{}

	if q.ownsDelivery {
		q.executor = newSerialExecutor()
		q.delivery = NewExecutorDelivery(q.executor.execute)
		go q.executor.run()
	}

	cd := &cacheDispatcher{
		cacheQueue:   q.cacheQueue,
		networkQueue: q.networkQueue,
		cache:        q.cache,
		delivery:     q.delivery,
		quit:         q.quit,
		log:          q.log,
	}
	q.group.Go(cd.run)

	for i := 0; i < q.poolSize; i++ {
		nd := &networkDispatcher{
			queue:    q.networkQueue,
			network:  q.network,
			cache:    q.cache,
			delivery: q.delivery,
			quit:     q.quit,
			log:      q.log,
		}
		q.group.Go(nd.run)
	}

	q.running = true
}

// Stop signals every dispatcher to quit, wakes any blocked queue take
// and waits for the goroutines to exit. Queued requests are not
// drained and may be dropped; pending deliveries are flushed.
func (q *RequestQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	quit := q.quit
	group := q.group
	executor := q.executor
	q.executor = nil
	q.mu.Unlock()

	quit.Store(true)
	q.cacheQueue.wake()
	q.networkQueue.wake()
	group.Wait()
	// only stop the delivery loop once the dispatchers can no longer
	// post to it, so pending deliveries are flushed rather than lost
	if executor != nil {
		executor.stop()
	}
}

// Add schedules a request. Cacheable requests go through cache triage;
// a request whose cache key already has a request in flight is parked
// on the waiting list and replayed when the in-flight one finishes.
func (q *RequestQueue) Add(r *Request) {
	r.queue = q
	r.seq = q.seq.Add(1)
	r.addMarker("add-to-queue")

	q.mu.Lock()
	q.current[r] = struct{}{}

	if !r.ShouldCache() {
		q.mu.Unlock()
		q.networkQueue.put(r)
		return
	}

	key := r.CacheKey()
	if followers, inFlight := q.waiting[key]; inFlight {
		q.waiting[key] = append(followers, r)
		q.mu.Unlock()
		q.log.Trace().Str("key", key).Msg("Request in flight for cache key, parking duplicate")
		return
	}
	q.waiting[key] = nil
	q.mu.Unlock()
	q.cacheQueue.put(r)
}

// CancelAll cancels every in-flight request matching the filter.
func (q *RequestQueue) CancelAll(filter func(*Request) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for r := range q.current {
		if filter(r) {
			r.Cancel()
		}
	}
}

// CancelAllTagged cancels every in-flight request carrying the tag.
func (q *RequestQueue) CancelAllTagged(tag string) {
	q.CancelAll(func(r *Request) bool {
		return r.Tag == tag
	})
}

// Cache returns the queue's cache, for invalidation and clearing.
func (q *RequestQueue) Cache() cache.Cache {
	return q.cache
}

// finish retires a request and replays any requests that were parked
// behind its cache key. Replayed requests re-enter cache triage, where
// they usually hit the entry the finished request just wrote.
func (q *RequestQueue) finish(r *Request) {
	q.mu.Lock()
	delete(q.current, r)
	var followers []*Request
	if r.ShouldCache() {
		key := r.CacheKey()
		if parked, inFlight := q.waiting[key]; inFlight {
			followers = parked
			delete(q.waiting, key)
		}
	}
	q.mu.Unlock()

	if len(followers) > 0 {
		q.log.Trace().Str("key", r.CacheKey()).Int("count", len(followers)).Msg("Replaying parked requests")
	}
	for _, f := range followers {
		q.cacheQueue.put(f)
	}
}
