// Package progress prints per-account progress of a compliance run.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/yairfalse/lwcomply/pkg/types"
)

const barWidth = 20

// Reporter writes one line per finished account with an ETA for the rest.
type Reporter struct {
	output    io.Writer
	startTime time.Time
	now       func() time.Time
	failed    *color.Color
	ok        *color.Color
}

// NewReporter creates a new progress reporter
func NewReporter(output io.Writer, noColor bool) *Reporter {
	r := &Reporter{
		output:    output,
		startTime: time.Now(),
		now:       time.Now,
		failed:    color.New(color.FgRed),
		ok:        color.New(color.FgGreen),
	}
	if noColor {
		r.failed.DisableColor()
		r.ok.DisableColor()
	}
	return r
}

// AccountDone reports that the account at position (1-based) finished.
func (r *Reporter) AccountDone(position, total int, result types.AccountResult) {
	elapsed := r.now().Sub(r.startTime)

	filled := 0
	if total > 0 {
		filled = position * barWidth / total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	var detail string
	if result.Status == types.AccountStatusFailed {
		detail = r.failed.Sprintf("failed: %s", result.Error)
	} else {
		detail = r.ok.Sprintf("%d non-compliant, %d resources", result.NonCompliantPolicies, len(result.Resources))
	}

	eta := ""
	if position > 0 && position < total {
		remaining := elapsed / time.Duration(position) * time.Duration(total-position)
		eta = " | ETA: " + formatDuration(remaining)
	}

	fmt.Fprintf(r.output, "[%s] %d/%d %s %s | Elapsed: %s%s\n",
		bar, position, total, result.AccountID, detail, formatDuration(elapsed), eta)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		min := int(d.Minutes())
		sec := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", min, sec)
	}
	hour := int(d.Hours())
	min := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hour, min)
}
