package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// maxPolicyRows caps the policy table; the full list is in JSON/YAML output.
const maxPolicyRows = 20

// TableFormatter prints a human summary of a report.
type TableFormatter struct {
	ok      *color.Color
	failed  *color.Color
	heading *color.Color
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(noColor bool) *TableFormatter {
	t := &TableFormatter{
		ok:      color.New(color.FgGreen),
		failed:  color.New(color.FgRed, color.Bold),
		heading: color.New(color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{t.ok, t.failed, t.heading} {
			c.DisableColor()
		}
	}
	return t
}

func (t *TableFormatter) FormatReport(report *types.AggregateReport, w io.Writer) error {
	t.heading.Fprintf(w, "%s\n", report.ReportName)
	fmt.Fprintf(w, "Window:     %s to %s\n", report.DateRange.StartString(), report.DateRange.EndString())
	fmt.Fprintf(w, "Generated:  %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Resources:  %d (direct %d, fallback %d, untagged %d)\n\n",
		report.TotalResources, report.Tags.Direct, report.Tags.Fallback, report.Tags.None)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ACCOUNT\tSTATUS\tNON-COMPLIANT\tRESOURCES\n")
	for _, acct := range report.Accounts {
		status := t.ok.Sprint(string(acct.Status))
		if acct.Status == types.AccountStatusFailed {
			status = t.failed.Sprint(string(acct.Status))
		}
		name := acct.AccountID
		if acct.Alias != "" {
			name += " (" + acct.Alias + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", name, status, acct.NonCompliantPolicies, len(acct.Resources))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Policies) > 0 {
		fmt.Fprintln(w)
		t.heading.Fprintln(w, "Policies")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "POLICY\tSEVERITY\tFAILING\tPASSING\tNOT ASSESSED\tVIOLATING\tCOMPLIANT\tTITLE\n")
		for i, p := range report.Policies {
			if i == maxPolicyRows {
				fmt.Fprintf(tw, "... %d more\t\t\t\t\t\t\t\n", len(report.Policies)-maxPolicyRows)
				break
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n", p.PolicyID, p.Severity,
				p.AccountsAffected, p.AccountsCompliant, p.AccountsNotAssessed,
				p.ViolatingResources, p.CompliantResources, truncateString(p.Title, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if report.Interrupted {
		fmt.Fprintln(w)
		t.failed.Fprintf(w, "Run interrupted after %d account(s)\n", len(report.Accounts))
	}

	if failed := report.FailedAccounts(); len(failed) > 0 {
		fmt.Fprintln(w)
		for _, acct := range report.Accounts {
			if acct.Status == types.AccountStatusFailed {
				t.failed.Fprintf(w, "%s: %s\n", acct.AccountID, acct.Error)
			}
		}
	}
	return nil
}

// FormatAlerts lists one alert per row.
func (t *TableFormatter) FormatAlerts(report *types.AlertReport, w io.Writer) error {
	title := "Compliance alerts"
	if report.ReportName != "" {
		title += ": " + report.ReportName
	}
	t.heading.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "Window:     %s to %s\n", report.DateRange.StartString(), report.DateRange.EndString())
	fmt.Fprintf(w, "Alerts:     %d of %d listed\n\n", len(report.Alerts), report.TotalAlerts)
	if len(report.Alerts) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ALERT\tSTARTED\tSEVERITY\tSTATUS\tACCOUNT\tPOLICY\tRESOURCES\tTITLE\n")
	for _, a := range report.Alerts {
		started := ""
		if !a.StartTime.IsZero() {
			started = a.StartTime.Format("2006-01-02 15:04")
		}
		severity := a.Severity
		if strings.EqualFold(severity, "critical") || strings.EqualFold(severity, "high") {
			severity = t.failed.Sprint(severity)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n", a.ID, started, severity, a.Status,
			a.AccountID, a.PolicyID, len(a.Resources), truncateString(a.PolicyTitle, 60))
	}
	return tw.Flush()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
