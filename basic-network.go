package quiver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Network performs one HTTP round trip for a request.
//
// Implementations must inject If-None-Match and If-Modified-Since
// headers from the request's cache entry, execute the request's retry
// policy, map failures onto *Error kinds, and on a 304 synthesize the
// response data from the stale entry.
type Network interface {
	PerformRequest(r *Request) (*NetworkResponse, error)
}

// BasicNetwork is a Network on top of net/http.
type BasicNetwork struct {
	client *http.Client
}

// NewBasicNetwork returns a transport using the given client, or a
// default client when nil.
func NewBasicNetwork(client *http.Client) *BasicNetwork {
	if client == nil {
		client = &http.Client{}
	}
	return &BasicNetwork{client: client}
}

// PerformRequest runs the round trip, retrying timeouts and auth
// failures per the request's retry policy.
func (n *BasicNetwork) PerformRequest(r *Request) (*NetworkResponse, error) {
	policy := r.RetryPolicy()
	for {
		response, verr := n.attempt(r, policy.CurrentTimeout())
		if verr == nil {
			return response, nil
		}
		if verr.Kind != ErrKindTimeout && verr.Kind != ErrKindAuthFailure {
			return nil, verr
		}
		timeout := policy.CurrentTimeout()
		if err := policy.Retry(verr); err != nil {
			return nil, err
		}
		r.addMarker(fmt.Sprintf("%s-retry [timeout=%s]", verr.Kind, timeout))
		log.Debug().Str("url", r.URL).Int("retry", policy.CurrentRetryCount()).Msg("Retrying request")
	}
}

func (n *BasicNetwork) attempt(r *Request, timeout time.Duration) (*NetworkResponse, *Error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, NewError(ErrKindNetwork, nil, errors.Wrap(err, "failed to build request"))
	}
	for name, value := range r.Headers {
		httpReq.Header.Set(name, value)
	}
	if r.BodyContentType != "" {
		httpReq.Header.Set("Content-Type", r.BodyContentType)
	}

	// a stale entry means this fetch is a revalidation
	entry := r.CacheEntry()
	if entry != nil {
		if entry.ETag != "" {
			httpReq.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified > 0 {
			httpReq.Header.Set("If-Modified-Since",
				time.UnixMilli(entry.LastModified).UTC().Format(http.TimeFormat))
		}
	}

	httpRes, err := n.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	response := &NetworkResponse{
		StatusCode:  httpRes.StatusCode,
		Headers:     headerMap(httpRes.Header),
		NetworkTime: time.Since(start),
	}

	if httpRes.StatusCode == http.StatusNotModified {
		response.NotModified = true
		if entry != nil {
			// the caller still needs a body to parse; take it from the
			// stale entry and fold the stored headers underneath the
			// ones the 304 carried
			response.Data = entry.Data
			merged := make(map[string]string, len(entry.ResponseHeaders)+len(response.Headers))
			for name, value := range entry.ResponseHeaders {
				merged[name] = value
			}
			for name, value := range response.Headers {
				merged[name] = value
			}
			response.Headers = merged
		}
		return response, nil
	}

	response.Data = data

	switch {
	case httpRes.StatusCode == http.StatusUnauthorized || httpRes.StatusCode == http.StatusForbidden:
		return nil, NewError(ErrKindAuthFailure, response, errors.Errorf("auth failure with status %d", httpRes.StatusCode))
	case httpRes.StatusCode < 200 || httpRes.StatusCode > 299:
		return nil, NewError(ErrKindServer, response, errors.Errorf("server returned status %d", httpRes.StatusCode))
	}
	return response, nil
}

func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrKindTimeout, nil, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NewError(ErrKindNoConnection, nil, err)
	}
	return NewError(ErrKindNetwork, nil, err)
}

func headerMap(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for name := range h {
		m[name] = h.Get(name)
	}
	return m
}
