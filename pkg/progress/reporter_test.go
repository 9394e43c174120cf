package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/lwcomply/pkg/types"
)

func TestReporter_AccountDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, true)
	start := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	r.startTime = start
	r.now = func() time.Time { return start.Add(30 * time.Second) }

	r.AccountDone(1, 4, types.AccountResult{
		AccountID:            "111111111111",
		Status:               types.AccountStatusOK,
		NonCompliantPolicies: 3,
		Resources:            make([]types.ResourceRecord, 2),
	})
	assert.Equal(t, "[#####...............] 1/4 111111111111 3 non-compliant, 2 resources | Elapsed: 30.0s | ETA: 1m30s\n", buf.String())

	buf.Reset()
	r.AccountDone(4, 4, types.AccountResult{AccountID: "222222222222", Status: types.AccountStatusFailed, Error: "rate limit exceeded"})
	assert.Equal(t, "[####################] 4/4 222222222222 failed: rate limit exceeded | Elapsed: 30.0s\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
