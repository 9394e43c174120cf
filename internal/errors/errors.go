package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeAuthentication  ErrorType = "Authentication"
	ErrorTypeConfiguration   ErrorType = "Configuration"
	ErrorTypeTransport       ErrorType = "Transport"
	ErrorTypeRateLimit       ErrorType = "RateLimitExceeded"
	ErrorTypeCacheCorruption ErrorType = "CacheCorruption"
	ErrorTypeTruncated       ErrorType = "TruncatedResult"
	ErrorTypePartialFailure  ErrorType = "PartialAccountFailure"
	ErrorTypeValidation      ErrorType = "Validation"
)

// Provider represents the system an error originated from
type Provider string

const (
	ProviderLacework Provider = "Lacework"
	ProviderAWS      Provider = "AWS"
	ProviderCache    Provider = "Cache"
	ProviderUnknown  Provider = "Unknown"
)

// Sentinels for errors.Is. They match any LWError of the same type.
var (
	ErrTransport         = &LWError{Type: ErrorTypeTransport}
	ErrRateLimitExceeded = &LWError{Type: ErrorTypeRateLimit}
	ErrCacheCorruption   = &LWError{Type: ErrorTypeCacheCorruption}
	ErrTruncated         = &LWError{Type: ErrorTypeTruncated}
	ErrConfiguration     = &LWError{Type: ErrorTypeConfiguration}
)

// LWError is a typed error carrying enough context to act on it
type LWError struct {
	Type       ErrorType
	Provider   Provider
	Message    string
	Cause      string
	StatusCode int
	Attempts   int
	RetryAfter time.Duration
	Solutions  []string
	Verify     string
	Err        error
}

// Error implements the error interface
func (e *LWError) Error() string {
	var sb strings.Builder
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(string(e.Type))
	}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.StatusCode))
	}
	if e.Attempts > 0 {
		sb.WriteString(fmt.Sprintf(" after %d attempts", e.Attempts))
	}
	if e.Cause != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Cause)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Format implements fmt.Formatter for custom formatting
func (e *LWError) Format(f fmt.State, verb rune) {
	switch verb {
	case 's':
		fmt.Fprintf(f, "%s", e.Error())
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "[%s/%s] %s", e.Type, e.Provider, e.Error())
		} else {
			fmt.Fprintf(f, "%s", e.Error())
		}
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// Unwrap returns the wrapped error
func (e *LWError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by type. A target with a message only matches itself.
func (e *LWError) Is(target error) bool {
	t, ok := target.(*LWError)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Type == e.Type
}

// New creates a new LWError
func New(errType ErrorType, provider Provider, message string) *LWError {
	return &LWError{
		Type:     errType,
		Provider: provider,
		Message:  message,
	}
}

// WithCause adds cause information
func (e *LWError) WithCause(cause string) *LWError {
	e.Cause = cause
	return e
}

// WithSolutions adds solution steps
func (e *LWError) WithSolutions(solutions ...string) *LWError {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// WithVerify adds verification command
func (e *LWError) WithVerify(verify string) *LWError {
	e.Verify = verify
	return e
}

// WithStatus records the remote status code
func (e *LWError) WithStatus(code int) *LWError {
	e.StatusCode = code
	return e
}

// Wrap attaches an underlying error
func (e *LWError) Wrap(err error) *LWError {
	e.Err = err
	return e
}

// Transport creates a non-retryable transport failure
func Transport(provider Provider, status int, message string) *LWError {
	return New(ErrorTypeTransport, provider, message).WithStatus(status)
}

// RateLimitExceeded reports that retries were exhausted while rate limited
func RateLimitExceeded(provider Provider, attempts int, last error) *LWError {
	e := New(ErrorTypeRateLimit, provider, "rate limit exceeded")
	e.Attempts = attempts
	e.Err = last
	return e
}

// CacheCorruption reports an unreadable cache entry
func CacheCorruption(path string, err error) *LWError {
	return New(ErrorTypeCacheCorruption, ProviderCache, "corrupt cache entry").WithCause(path).Wrap(err)
}

// IsType reports whether err is an LWError of the given type
func IsType(err error, errType ErrorType) bool {
	var lwErr *LWError
	if stderrors.As(err, &lwErr) {
		return lwErr.Type == errType
	}
	return false
}

// IsRateLimit reports whether err is a rate-limit exhaustion
func IsRateLimit(err error) bool {
	return stderrors.Is(err, ErrRateLimitExceeded)
}

// IsUserError checks if error requires user action
func IsUserError(err error) bool {
	return IsType(err, ErrorTypeAuthentication) || IsType(err, ErrorTypeConfiguration) || IsType(err, ErrorTypeValidation)
}

// GetExitCode returns appropriate exit code for error type
func GetExitCode(err error) int {
	var lwErr *LWError
	if !stderrors.As(err, &lwErr) {
		return 1
	}

	switch lwErr.Type {
	case ErrorTypeAuthentication:
		return 77 // EX_NOPERM
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return 78 // EX_CONFIG
	case ErrorTypeTransport, ErrorTypeRateLimit:
		return 69 // EX_UNAVAILABLE
	case ErrorTypePartialFailure:
		return 3
	default:
		return 1
	}
}
