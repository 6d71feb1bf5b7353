package quiver

import (
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quiver-http/quiver/cache"
)

// cacheDispatcher drains the cache queue on a single goroutine.
//
// Requests are resolved from cache where possible and any deliverable
// response is posted back via the delivery. Misses and entries that
// need refresh are forwarded to the network queue for processing by a
// networkDispatcher.
type cacheDispatcher struct {
	cacheQueue   *priorityQueue
	networkQueue *priorityQueue
	cache        cache.Cache
	delivery     ResponseDelivery
	quit         *atomic.Bool
	log          zerolog.Logger
}

func (d *cacheDispatcher) run() error {
	d.log.Debug().Msg("Cache dispatcher starting")

	// blocking call, the cache may need to scan its backing store
	if err := d.cache.Initialize(); err != nil {
		d.log.Error().Err(err).Msg("Could not initialize cache")
	}

	for {
		r, ok := d.cacheQueue.take(d.quit.Load)
		if !ok {
			return nil
		}
		d.process(r)
	}
}

func (d *cacheDispatcher) process(r *Request) {
	r.addMarker("cache-queue-take")

	// no point touching the cache for a request nobody wants anymore
	if r.IsCanceled() {
		r.finish("cache-discard-canceled")
		return
	}

	entry, err := d.cache.Get(r.CacheKey())
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			// cache I/O trouble reads as a miss
			d.log.Warn().Err(err).Str("key", r.CacheKey()).Msg("Cache read failed")
		}
		r.addMarker("cache-miss")
		d.networkQueue.put(r)
		return
	}

	if entry.IsExpired() {
		// completely expired; keep the entry around so the transport
		// can revalidate with its etag and last-modified date
		r.addMarker("cache-hit-expired")
		r.setCacheEntry(entry)
		d.networkQueue.put(r)
		return
	}

	r.addMarker("cache-hit")
	response, err := r.parseNetworkResponse(&NetworkResponse{
		StatusCode: http.StatusOK,
		Data:       entry.Data,
		Headers:    entry.ResponseHeaders,
	})
	if err != nil {
		// an unparseable stored entry still has to finish the request,
		// so it takes the regular error delivery path
		d.log.Warn().Err(err).Str("key", r.CacheKey()).Msg("Could not parse cached entry")
		d.delivery.PostError(r, err)
		return
	}
	r.addMarker("cache-hit-parsed")

	if !entry.RefreshNeeded() {
		d.delivery.PostResponse(r, response)
		return
	}

	// soft-expired: usable once, but a refresh is due. Deliver the
	// cached result marked intermediate and re-enqueue for the network
	// only after the callback has run, which keeps the terminal
	// delivery strictly after the intermediate one.
	r.addMarker("cache-hit-refresh-needed")
	r.setCacheEntry(entry)
	response.Intermediate = true
	d.delivery.PostResponseAndThen(r, response, func() {
		d.networkQueue.put(r)
	})
}
