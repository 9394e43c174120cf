// Package transport executes remote calls against the security platform
// and keeps them inside its rate limits.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Request is a single remote call. HTTP transports use Method, Path, Query
// and Body; the CLI runner uses Args.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header map[string]string
	Args   []string

	// Operation names the call in logs and errors.
	Operation string
}

// Response is the raw result of a call.
type Response struct {
	StatusCode int
	ExitCode   int
	Header     http.Header
	Body       []byte
	Stderr     string
	RetryAfter time.Duration
}

// RateLimited reports whether the remote side asked us to slow down.
func (r *Response) RateLimited() bool {
	return r.StatusCode == http.StatusTooManyRequests || r.StatusCode == http.StatusServiceUnavailable
}

// Failed reports a non-success outcome other than rate limiting.
func (r *Response) Failed() bool {
	return r.StatusCode >= 400 || r.ExitCode != 0
}

// Transport executes a request. Implementations return an error only when
// no response was obtained at all.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
