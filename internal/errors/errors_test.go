package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLWError_IsMatchesSentinelByType(t *testing.T) {
	err := RateLimitExceeded(ProviderLacework, 5, fmt.Errorf("429"))
	wrapped := fmt.Errorf("account 123: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrRateLimitExceeded))
	assert.False(t, stderrors.Is(wrapped, ErrTransport))
	assert.True(t, IsRateLimit(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeRateLimit))
}

func TestLWError_Error(t *testing.T) {
	err := Transport(ProviderLacework, 403, "inventory search failed").WithCause("forbidden")
	assert.Equal(t, "inventory search failed (status 403): forbidden", err.Error())

	rl := RateLimitExceeded(ProviderLacework, 5, nil)
	assert.Contains(t, rl.Error(), "after 5 attempts")
	assert.Contains(t, fmt.Sprintf("%+v", rl), "[RateLimitExceeded/Lacework]")
}

func TestLWError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("unexpected EOF")
	err := CacheCorruption("/tmp/x.json", inner)

	assert.True(t, stderrors.Is(err, inner))
	assert.True(t, stderrors.Is(err, ErrCacheCorruption))
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", fmt.Errorf("boom"), 1},
		{"configuration", ConfigurationError("cache.dir", "empty"), 78},
		{"authentication", LaceworkCredentialsError(nil), 77},
		{"rate limit", RateLimitExceeded(ProviderLacework, 5, nil), 69},
		{"wrapped transport", fmt.Errorf("x: %w", Transport(ProviderAWS, 500, "down")), 69},
		{"partial failure", PartialAccountFailure([]string{"111111111111"}), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestLaceworkCredentialsError_Unauthorized(t *testing.T) {
	err := LaceworkCredentialsError(fmt.Errorf("status 401 Unauthorized"))
	assert.Equal(t, "Lacework credentials rejected", err.Message)
	assert.NotEmpty(t, err.Solutions)
	assert.True(t, IsUserError(err))
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, ConfigurationError("cache.backend", "unknown backend"), true)

	out := buf.String()
	assert.Contains(t, out, "invalid configuration cache.backend")
	assert.Contains(t, out, "Solutions:")

	buf.Reset()
	DisplayError(&buf, fmt.Errorf("plain"), true)
	assert.Contains(t, buf.String(), "Error: plain")
}

func TestFormatPlain(t *testing.T) {
	out := FormatPlain(Transport(ProviderLacework, 500, "report fetch failed"))
	assert.Contains(t, out, "Type: Transport/Lacework")
}
