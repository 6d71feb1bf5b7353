package quiver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quiver-http/quiver/cache"
)

// CacheControl holds the parsed directives of a Cache-Control header.
type CacheControl struct {
	m map[string]string
}

// Get returns the argument of a directive and whether it is present.
func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.m[directive]
	return val, ok
}

// Has reports whether a directive is present.
func (c CacheControl) Has(directive string) bool {
	_, ok := c.m[directive]
	return ok
}

// ParseCacheControl parses a Cache-Control header value.
// Directive names are compared case-insensitively and arguments may
// use quoted-string syntax; the last occurrence of a directive wins.
func ParseCacheControl(header string) CacheControl {
	m := make(map[string]string)
	for _, directive := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(directive), "=", 2)
		var val string
		if len(parts) > 1 {
			val = strings.Trim(parts[1], "\"")
		}
		m[strings.ToLower(parts[0])] = val
	}
	return CacheControl{m}
}

func (c CacheControl) seconds(directive string) int64 {
	val, ok := c.m[directive]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseCacheHeaders builds a cache entry from a network response using
// its Date, ETag, Last-Modified, Expires and Cache-Control headers.
// It returns nil if the response must not be cached.
//
// max-age and stale-while-revalidate take precedence over Expires:
// the soft TTL is the server date plus max-age, and the hard TTL
// additionally extends by stale-while-revalidate. With only an
// Expires header both TTLs equal it.
func ParseCacheHeaders(response *NetworkResponse) *cache.Entry {
	headers := response.Headers

	serverDate := parseDateMillis(headerValue(headers, "Date"))
	if serverDate == 0 {
		// no usable Date header; fall back to the local clock
		serverDate = time.Now().UnixMilli()
	}
	lastModified := parseDateMillis(headerValue(headers, "Last-Modified"))
	serverExpires := parseDateMillis(headerValue(headers, "Expires"))
	etag := headerValue(headers, "ETag")

	var softTTL, ttl int64
	if ccHeader := headerValue(headers, "Cache-Control"); ccHeader != "" {
		cc := ParseCacheControl(ccHeader)
		if cc.Has("no-cache") || cc.Has("no-store") {
			return nil
		}
		softTTL = serverDate + cc.seconds("max-age")*1000
		ttl = softTTL + cc.seconds("stale-while-revalidate")*1000
	} else if serverExpires > 0 {
		softTTL = serverExpires
		ttl = serverExpires
	}

	return &cache.Entry{
		Data:            response.Data,
		ETag:            etag,
		ServerDate:      serverDate,
		LastModified:    lastModified,
		TTL:             ttl,
		SoftTTL:         softTTL,
		ResponseHeaders: headers,
	}
}

// headerValue looks name up in a header map regardless of the casing
// the map was built with.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	if v, ok := headers[http.CanonicalHeaderKey(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// parseDateMillis parses an HTTP date into epoch milliseconds,
// returning 0 when absent or malformed.
func parseDateMillis(value string) int64 {
	if value == "" {
		return 0
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
