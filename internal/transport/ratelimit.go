package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/cenkalti/backoff/v5"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/logger"
	"golang.org/x/time/rate"
)

// RetryConfig controls the retry policy for rate-limited calls.
type RetryConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Jitter     float64
}

// DefaultRetryConfig returns the standard policy: 2s doubling up to 60s,
// 5 attempts, 20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		MaxRetries: 5,
		Jitter:     0.2,
	}
}

// ThrottledError signals that an attempt was rate limited and may be
// retried after RetryAfter (zero means use the backoff schedule).
type ThrottledError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottledError) Error() string {
	msg := fmt.Sprintf("rate limited (status %d)", e.StatusCode)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ThrottledError) Unwrap() error {
	return e.Err
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"SlowDown":                               true,
	"ProvisionedThroughputExceededException": true,
}

// Option configures a RateLimitedTransport.
type Option func(*RateLimitedTransport)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(t *RateLimitedTransport) { t.log = log }
}

// WithPacing limits the steady request rate.
func WithPacing(requestsPerSecond float64, burst int) Option {
	return func(t *RateLimitedTransport) {
		if requestsPerSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *RateLimitedTransport) { t.sleep = sleep }
}

// WithProvider sets the provider reported in errors.
func WithProvider(p errors.Provider) Option {
	return func(t *RateLimitedTransport) { t.provider = p }
}

// RateLimitedTransport decorates a Transport with bounded, jittered
// exponential backoff on rate-limit responses.
type RateLimitedTransport struct {
	next     Transport
	cfg      RetryConfig
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
	log      logger.Logger
	provider errors.Provider
}

var _ Transport = (*RateLimitedTransport)(nil)

// NewRateLimited wraps next. next may be nil when only Call is used.
func NewRateLimited(next Transport, cfg RetryConfig, opts ...Option) *RateLimitedTransport {
	def := DefaultRetryConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = def.Jitter
	}

	t := &RateLimitedTransport{
		next:     next,
		cfg:      cfg,
		sleep:    sleepContext,
		log:      logger.NewNop(),
		provider: errors.ProviderLacework,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective retry policy.
func (t *RateLimitedTransport) Config() RetryConfig {
	return t.cfg
}

// Execute runs req through the wrapped transport, retrying while rate
// limited. Other 4xx/5xx responses fail immediately with a Transport error.
func (t *RateLimitedTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := t.Call(ctx, req.Operation, func(ctx context.Context) error {
		r, err := t.next.Execute(ctx, req)
		if err != nil {
			return err
		}
		if r.RateLimited() {
			return &ThrottledError{StatusCode: r.StatusCode, RetryAfter: r.RetryAfter}
		}
		if r.Failed() {
			return errors.Transport(t.provider, r.StatusCode, req.Operation+" failed").WithCause(failureDetail(r))
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Call runs fn under the retry policy. fn signals rate limiting by
// returning a *ThrottledError or an AWS throttling error. Exactly
// MaxRetries attempts are made before RateLimitExceeded is returned.
func (t *RateLimitedTransport) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     t.cfg.BaseDelay,
		RandomizationFactor: t.cfg.Jitter,
		Multiplier:          2,
		MaxInterval:         t.cfg.MaxDelay,
	}
	b.Reset()

	log := t.log.WithField("operation", op)
	var last error

	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		// A started attempt runs to completion; cancellation is honoured
		// before the next wait.
		err := fn(context.WithoutCancel(ctx))
		if err == nil {
			return nil
		}

		throttled, ok := classify(err)
		if !ok {
			var lwErr *errors.LWError
			if stderrors.As(err, &lwErr) {
				return err
			}
			return errors.Transport(t.provider, 0, op+" failed").Wrap(err)
		}
		last = throttled

		// The backoff schedule advances on every rate-limited attempt so
		// that an explicit Retry-After does not reset it.
		delay := b.NextBackOff()
		if attempt == t.cfg.MaxRetries-1 {
			break
		}
		if throttled.RetryAfter > 0 {
			delay = throttled.RetryAfter
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"status":  throttled.StatusCode,
		}).Warn("rate limited, backing off")

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return errors.RateLimitExceeded(t.provider, t.cfg.MaxRetries, last)
}

// IsThrottled reports whether err signals rate limiting.
func IsThrottled(err error) bool {
	_, ok := classify(err)
	return ok
}

// classify reports whether err is a rate-limit signal.
func classify(err error) (*ThrottledError, bool) {
	var th *ThrottledError
	if stderrors.As(err, &th) {
		return th, true
	}

	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
			return &ThrottledError{StatusCode: status, Err: err}, true
		}
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()] {
		return &ThrottledError{StatusCode: http.StatusTooManyRequests, Err: err}, true
	}

	return nil, false
}

func failureDetail(r *Response) string {
	if r.Stderr != "" {
		return strings.TrimSpace(r.Stderr)
	}
	body := strings.TrimSpace(string(r.Body))
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return body
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
