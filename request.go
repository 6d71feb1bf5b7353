package quiver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quiver-http/quiver/cache"
)

// Priority orders requests within the dispatch queues.
// Higher priorities are taken first; within a priority, requests are
// FIFO by sequence number.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityImmediate
)

// slowRequestThreshold is the request duration above which the marker
// log is dumped on finish.
const slowRequestThreshold = 3 * time.Second

type marker struct {
	name string
	at   time.Time
}

// ParseFunc turns a raw network response into a typed result and the
// cache entry to store for it (nil to not cache). It runs on a
// dispatcher goroutine.
type ParseFunc[T any] func(*NetworkResponse) (T, *cache.Entry, error)

// Request is one scheduled HTTP request.
//
// Requests are created with NewRequest, configured, handed to
// RequestQueue.Add exactly once, and must not be modified afterwards.
// Cancel is the only method safe to call after Add.
type Request struct {
	// Method is the HTTP method.
	Method string
	// URL is the full request URL.
	URL string
	// Headers are additional request headers.
	Headers map[string]string
	// Body is the raw request body, nil for body-less methods.
	Body []byte
	// BodyContentType is the Content-Type sent with Body.
	BodyContentType string
	// Tag groups requests for bulk cancellation.
	Tag string

	parse      func(*NetworkResponse) (*Response, error)
	deliver    func(any)
	deliverErr func(error)
	refineErr  func(*Error) *Error

	priority    Priority
	retryPolicy RetryPolicy
	cacheKey    string
	shouldCache bool

	seq   uint64
	queue *RequestQueue
	entry *cache.Entry

	canceled atomic.Bool

	mu                sync.Mutex
	markers           []marker
	responseDelivered bool
}

// NewRequest returns a request for the given method and URL.
// parse turns the raw response into the caller's type; onResponse and
// onError receive the outcome on the delivery context. Either callback
// may be nil.
func NewRequest[T any](method, url string, parse ParseFunc[T], onResponse func(T), onError func(error)) *Request {
	r := &Request{
		Method:      method,
		URL:         url,
		priority:    PriorityNormal,
		shouldCache: true,
	}
	r.parse = func(nr *NetworkResponse) (*Response, error) {
		result, entry, err := parse(nr)
		if err != nil {
			return nil, NewError(ErrKindParse, nr, err)
		}
		return SuccessResponse(result, entry), nil
	}
	r.deliver = func(result any) {
		if onResponse != nil {
			onResponse(result.(T))
		}
	}
	r.deliverErr = func(err error) {
		if onError != nil {
			onError(err)
		}
	}
	return r
}

// CacheKey returns the key the response is cached under.
// It defaults to the request URL.
func (r *Request) CacheKey() string {
	if r.cacheKey != "" {
		return r.cacheKey
	}
	return r.URL
}

// SetCacheKey overrides the default cache key.
func (r *Request) SetCacheKey(key string) {
	r.cacheKey = key
}

// Priority returns the request priority, PriorityNormal by default.
func (r *Request) Priority() Priority {
	return r.priority
}

// SetPriority sets the request priority.
func (r *Request) SetPriority(p Priority) {
	r.priority = p
}

// ShouldCache reports whether responses may be cached, true by default.
func (r *Request) ShouldCache() bool {
	return r.shouldCache
}

// SetShouldCache sets whether responses to this request may be cached.
// Uncacheable requests skip the cache dispatcher entirely.
func (r *Request) SetShouldCache(shouldCache bool) {
	r.shouldCache = shouldCache
}

// RetryPolicy returns the request's retry policy, creating the default
// policy on first use.
func (r *Request) RetryPolicy() RetryPolicy {
	if r.retryPolicy == nil {
		r.retryPolicy = NewDefaultRetryPolicy()
	}
	return r.retryPolicy
}

// SetRetryPolicy overrides the default retry policy.
func (r *Request) SetRetryPolicy(policy RetryPolicy) {
	r.retryPolicy = policy
}

// SetOnNetworkError installs a hook that may refine a network error
// before delivery, e.g. to extract details from an error body.
func (r *Request) SetOnNetworkError(refine func(*Error) *Error) {
	r.refineErr = refine
}

// Cancel marks the request as canceled.
// Cancellation is cooperative: work already in flight completes, but
// no listener will be invoked.
func (r *Request) Cancel() {
	r.canceled.Store(true)
}

// IsCanceled reports whether Cancel has been called.
func (r *Request) IsCanceled() bool {
	return r.canceled.Load()
}

// CacheEntry returns the stale entry attached by the cache dispatcher,
// nil if none. Transports use it to send revalidation headers.
func (r *Request) CacheEntry() *cache.Entry {
	return r.entry
}

func (r *Request) setCacheEntry(entry *cache.Entry) {
	r.entry = entry
}

// HasHadResponseDelivered reports whether a response has been posted
// for this request, including an intermediate one.
func (r *Request) HasHadResponseDelivered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responseDelivered
}

func (r *Request) markDelivered() {
	r.mu.Lock()
	r.responseDelivered = true
	r.mu.Unlock()
}

func (r *Request) addMarker(name string) {
	r.mu.Lock()
	r.markers = append(r.markers, marker{name: name, at: time.Now()})
	r.mu.Unlock()
}

func (r *Request) parseNetworkResponse(nr *NetworkResponse) (*Response, error) {
	return r.parse(nr)
}

func (r *Request) parseNetworkError(err *Error) *Error {
	if r.refineErr != nil {
		return r.refineErr(err)
	}
	return err
}

func (r *Request) deliverResponse(result any) {
	r.deliver(result)
}

func (r *Request) deliverError(err error) {
	r.deliverErr(err)
}

// finish ends the request's life: it is removed from its queue, any
// waiting requests for the same cache key are replayed, and the marker
// log is dumped if the request was slow.
func (r *Request) finish(reason string) {
	r.addMarker(reason)
	q := r.queue
	if q == nil {
		return
	}
	q.finish(r)

	r.mu.Lock()
	markers := r.markers
	r.mu.Unlock()
	if len(markers) < 2 {
		return
	}
	elapsed := markers[len(markers)-1].at.Sub(markers[0].at)
	if elapsed < slowRequestThreshold {
		return
	}
	ev := q.log.Debug().Str("url", r.URL).Dur("elapsed", elapsed)
	names := make([]string, 0, len(markers))
	for _, m := range markers {
		names = append(names, m.name+"+"+m.at.Sub(markers[0].at).String())
	}
	ev.Strs("markers", names).Msg("Slow request finished")
}
