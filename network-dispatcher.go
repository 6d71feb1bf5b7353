package quiver

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quiver-http/quiver/cache"
)

// networkDispatcher drains the network queue. Several identical
// dispatchers run concurrently, each performing round trips through
// the Network, committing eligible responses to cache and posting
// results back via the delivery.
type networkDispatcher struct {
	queue    *priorityQueue
	network  Network
	cache    cache.Cache
	delivery ResponseDelivery
	quit     *atomic.Bool
	log      zerolog.Logger
}

func (d *networkDispatcher) run() error {
	for {
		start := time.Now()
		r, ok := d.queue.take(d.quit.Load)
		if !ok {
			return nil
		}
		d.process(r, start)
	}
}

func (d *networkDispatcher) process(r *Request, start time.Time) {
	r.addMarker("network-queue-take")

	// don't waste a round trip on a request nobody wants anymore
	if r.IsCanceled() {
		r.finish("network-discard-cancelled")
		return
	}

	networkResponse, err := d.network.PerformRequest(r)
	if err != nil {
		verr := AsError(err)
		verr.NetworkTime = time.Since(start)
		d.delivery.PostError(r, r.parseNetworkError(verr))
		return
	}
	r.addMarker("network-http-complete")

	// a 304 after an intermediate delivery adds nothing: the caller
	// already has the body
	if networkResponse.NotModified && r.HasHadResponseDelivered() {
		r.finish("not-modified")
		return
	}

	response, err := r.parseNetworkResponse(networkResponse)
	if err != nil {
		verr := AsError(err)
		verr.NetworkTime = time.Since(start)
		d.delivery.PostError(r, r.parseNetworkError(verr))
		return
	}
	r.addMarker("network-parse-complete")

	if r.ShouldCache() && response.Entry != nil {
		if err := d.cache.Put(r.CacheKey(), response.Entry); err != nil {
			d.log.Warn().Err(err).Str("key", r.CacheKey()).Msg("Could not write cache entry")
		} else {
			r.addMarker("network-cache-written")
		}
	}

	r.markDelivered()
	d.delivery.PostResponse(r, response)
}
