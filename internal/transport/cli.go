package transport

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

var (
	rateLimitPattern  = regexp.MustCompile(`(?i)\b429\b|too many requests|rate.?limit|throttl`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry-after[:\s]+(\d+)`)
)

// CLIRunner executes a command line tool and maps its outcome to a
// Response. A non-zero exit whose output mentions rate limiting becomes a
// 429 response so the retry policy can act on it.
type CLIRunner struct {
	binary string
	env    []string
}

var _ Transport = (*CLIRunner)(nil)

// NewCLIRunner creates a runner for binary. extraEnv entries are appended
// to the current environment.
func NewCLIRunner(binary string, extraEnv ...string) *CLIRunner {
	return &CLIRunner{
		binary: binary,
		env:    extraEnv,
	}
}

// Binary returns the executable this runner invokes.
func (r *CLIRunner) Binary() string {
	return r.binary
}

func (r *CLIRunner) Execute(ctx context.Context, req *Request) (*Response, error) {
	cmd := exec.CommandContext(ctx, r.binary, req.Args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	resp := &Response{
		Body:   stdout.Bytes(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		resp.ExitCode = exitErr.ExitCode()
		output := resp.Stderr + "\n" + stdout.String()
		if rateLimitPattern.MatchString(output) {
			resp.StatusCode = http.StatusTooManyRequests
			resp.RetryAfter = ParseRetryAfterText(output)
		}
		return resp, nil
	}

	resp.StatusCode = http.StatusOK
	return resp, nil
}

// ParseRetryAfterText extracts "Retry-After: N" (seconds) from tool output.
func ParseRetryAfterText(output string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
