package quiver

import (
	"fmt"
	"time"
)

// ErrorKind classifies a request failure.
type ErrorKind int

const (
	// ErrKindNetwork is an I/O failure talking to the server.
	ErrKindNetwork ErrorKind = iota
	// ErrKindServer is a 4xx/5xx response from the server.
	ErrKindServer
	// ErrKindAuthFailure is a 401 or 403 response.
	ErrKindAuthFailure
	// ErrKindParse is a failure to parse a response body.
	ErrKindParse
	// ErrKindTimeout is a request that exhausted its retry policy
	// without completing in time.
	ErrKindTimeout
	// ErrKindNoConnection is a failure to reach the server at all.
	ErrKindNoConnection
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindServer:
		return "server"
	case ErrKindAuthFailure:
		return "auth"
	case ErrKindParse:
		return "parse"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindNoConnection:
		return "no-connection"
	default:
		return "network"
	}
}

// Error is the failure type delivered to error listeners.
// It carries the originating network response when one was received
// and the time spent on the network before failing.
type Error struct {
	Kind        ErrorKind
	Response    *NetworkResponse
	NetworkTime time.Duration
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("quiver: %s error", e.Kind)
	if e.Response != nil {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Response.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an Error of the given kind wrapping cause.
func NewError(kind ErrorKind, response *NetworkResponse, cause error) *Error {
	return &Error{Kind: kind, Response: response, Err: cause}
}

// AsError returns err as an *Error, wrapping foreign errors as
// network failures.
func AsError(err error) *Error {
	if verr, ok := err.(*Error); ok {
		return verr
	}
	return &Error{Kind: ErrKindNetwork, Err: err}
}
