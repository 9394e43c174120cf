package transport

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/lwcomply/internal/errors"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func scripted(responses ...*Response) (Transport, *int) {
	calls := 0
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		i := calls
		if i >= len(responses) {
			i = len(responses) - 1
		}
		calls++
		return responses[i], nil
	}), &calls
}

func noJitter() RetryConfig {
	return RetryConfig{BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, MaxRetries: 5, Jitter: 0}
}

func TestRateLimited_AlwaysThrottledExhaustsExactlyMaxRetries(t *testing.T) {
	rec := &recorder{}
	next, calls := scripted(&Response{StatusCode: http.StatusTooManyRequests})
	rl := NewRateLimited(next, noJitter(), WithSleep(rec.sleep))

	_, err := rl.Execute(context.Background(), &Request{Operation: "inventory search"})

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRateLimitExceeded))
	assert.Equal(t, 5, *calls, "exactly MaxRetries attempts")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, rec.delays)
}

func TestRateLimited_DelayIsCappedAtMaxDelay(t *testing.T) {
	rec := &recorder{}
	next, _ := scripted(&Response{StatusCode: http.StatusServiceUnavailable})
	cfg := RetryConfig{BaseDelay: 10 * time.Second, MaxDelay: 30 * time.Second, MaxRetries: 5}
	rl := NewRateLimited(next, cfg, WithSleep(rec.sleep))

	_, err := rl.Execute(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}, rec.delays)
}

func TestRateLimited_JitterStaysWithinTwentyPercent(t *testing.T) {
	rec := &recorder{}
	next, _ := scripted(&Response{StatusCode: http.StatusTooManyRequests})
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxRetries: 5, Jitter: 0.2}
	rl := NewRateLimited(next, cfg, WithSleep(rec.sleep))

	_, _ = rl.Execute(context.Background(), &Request{})

	require.Len(t, rec.delays, 4)
	nominal := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, d := range rec.delays {
		low := time.Duration(float64(nominal[i]) * 0.8)
		high := time.Duration(float64(nominal[i])*1.2) + time.Nanosecond
		assert.GreaterOrEqual(t, d, low)
		assert.LessOrEqual(t, d, high)
	}
}

func TestRateLimited_RetryAfterTakesPrecedence(t *testing.T) {
	rec := &recorder{}
	next, calls := scripted(
		&Response{StatusCode: http.StatusTooManyRequests, RetryAfter: 7 * time.Second},
		&Response{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)},
	)
	rl := NewRateLimited(next, noJitter(), WithSleep(rec.sleep))

	resp, err := rl.Execute(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, 2, *calls)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.delays)
}

func TestRateLimited_NonRetryableStatusFailsImmediately(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			rec := &recorder{}
			next, calls := scripted(&Response{StatusCode: status, Body: []byte("nope")})
			rl := NewRateLimited(next, noJitter(), WithSleep(rec.sleep))

			_, err := rl.Execute(context.Background(), &Request{Operation: "report"})

			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrTransport))
			assert.False(t, stderrors.Is(err, errors.ErrRateLimitExceeded))
			assert.Equal(t, 1, *calls)
			assert.Empty(t, rec.delays)

			var lwErr *errors.LWError
			require.True(t, stderrors.As(err, &lwErr))
			assert.Equal(t, status, lwErr.StatusCode)
		})
	}
}

func TestRateLimited_CancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		cancel()
		return &Response{StatusCode: http.StatusTooManyRequests}, nil
	})
	rl := NewRateLimited(next, noJitter())

	start := time.Now()
	_, err := rl.Execute(ctx, &Request{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "the in-flight attempt completes, no further attempts")
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimited_CallClassifiesAWSThrottling(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		throttled bool
	}{
		{"api throttling code", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}, true},
		{"s3 slow down", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"http 503", &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}},
			Err:      stderrors.New("unavailable"),
		}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain error", stderrors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			rl := NewRateLimited(nil, RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 3}, WithSleep(rec.sleep), WithProvider(errors.ProviderAWS))

			calls := 0
			err := rl.Call(context.Background(), "ListBuckets", func(context.Context) error {
				calls++
				return tt.err
			})

			require.Error(t, err)
			assert.Equal(t, tt.throttled, IsThrottled(tt.err))
			if tt.throttled {
				assert.True(t, errors.IsRateLimit(err))
				assert.Equal(t, 3, calls)
			} else {
				assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestRateLimited_CallSucceedsAfterThrottle(t *testing.T) {
	rec := &recorder{}
	rl := NewRateLimited(nil, noJitter(), WithSleep(rec.sleep))

	calls := 0
	err := rl.Call(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &ThrottledError{StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestRateLimited_Pacing(t *testing.T) {
	next, calls := scripted(&Response{StatusCode: http.StatusOK})
	rl := NewRateLimited(next, noJitter(), WithPacing(1000, 1))

	for i := 0; i < 3; i++ {
		_, err := rl.Execute(context.Background(), &Request{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, *calls)
}

func TestNewRateLimited_Defaults(t *testing.T) {
	rl := NewRateLimited(nil, RetryConfig{})
	cfg := rl.Config()

	assert.Equal(t, 2*time.Second, cfg.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 0.0, cfg.Jitter)
}
