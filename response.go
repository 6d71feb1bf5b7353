package quiver

import (
	"time"

	"github.com/quiver-http/quiver/cache"
)

// NetworkResponse is the raw result of one HTTP round trip, or of a
// cache hit replayed through the parse hook.
type NetworkResponse struct {
	StatusCode int
	Data       []byte
	Headers    map[string]string
	// NotModified is set when the server answered 304 to a request
	// carrying revalidation headers.
	NotModified bool
	// NetworkTime is the round-trip duration.
	NetworkTime time.Duration
}

// Response is a parsed response on its way to the listener.
// Either Result or Err is set, never both.
type Response struct {
	// Result is the value produced by the request's parse hook.
	Result any
	// Entry is the cache entry to store for this response, nil if the
	// response should not be cached.
	Entry *cache.Entry
	// Intermediate marks the stale cache delivery that will be
	// followed by a network refresh. An intermediate delivery does not
	// finish the request.
	Intermediate bool
	// Err is the failure, for responses built by the error path.
	Err error
}

// SuccessResponse returns a successful response carrying result and
// the entry to cache, if any.
func SuccessResponse(result any, entry *cache.Entry) *Response {
	return &Response{Result: result, Entry: entry}
}

// ErrorResponse returns an error-flavored response.
func ErrorResponse(err error) *Response {
	return &Response{Err: err}
}

// IsSuccess reports whether the response carries a result.
func (r *Response) IsSuccess() bool {
	return r.Err == nil
}
