package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Authenticator supplies a bearer token for a request.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// HTTPTransport executes requests against a JSON HTTP API.
type HTTPTransport struct {
	client    *http.Client
	baseURL   string
	auth      Authenticator
	headers   map[string]string
	userAgent string
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPClient returns an http.Client with pooled connections.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewHTTPTransport creates a transport for baseURL. auth may be nil.
func NewHTTPTransport(client *http.Client, baseURL string, auth Authenticator) *HTTPTransport {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPTransport{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		auth:      auth,
		headers:   map[string]string{},
		userAgent: "lwcomply",
	}
}

// SetHeader adds a header sent with every request.
func (t *HTTPTransport) SetHeader(key, value string) {
	t.headers[key] = value
}

func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	url := t.baseURL + req.Path
	if len(req.Query) > 0 {
		url += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	if t.auth != nil {
		token, err := t.auth.Token(ctx)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		RetryAfter: ParseRetryAfterHeader(httpResp.Header.Get("Retry-After"), time.Now()),
	}, nil
}

// ParseRetryAfterHeader parses a Retry-After header given either as
// seconds or as an HTTP date.
func ParseRetryAfterHeader(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
