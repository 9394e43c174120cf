package lacework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/yairfalse/lwcomply/pkg/types"
)

const reportsPath = "/api/v2/Reports"

type rawReport struct {
	ReportTitle     string              `json:"reportTitle"`
	Recommendations []rawRecommendation `json:"recommendations"`
}

type rawRecommendation struct {
	RecID                 string         `json:"REC_ID"`
	Title                 string         `json:"TITLE"`
	Severity              flexString     `json:"SEVERITY"`
	Status                string         `json:"STATUS"`
	AssessedResourceCount int            `json:"ASSESSED_RESOURCE_COUNT"`
	ResourceCount         int            `json:"RESOURCE_COUNT"`
	Violations            []rawViolation `json:"VIOLATIONS"`
}

type rawViolation struct {
	Resource string   `json:"resource"`
	Region   string   `json:"region"`
	Reasons  []string `json:"reasons"`
}

// GetComplianceReport fetches the latest evaluation of reportName for an
// AWS account.
func (c *APIClient) GetComplianceReport(ctx context.Context, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error) {
	query := url.Values{}
	query.Set("primaryQueryId", accountID)
	query.Set("format", "json")
	query.Set("reportName", reportName)

	body, err := c.get(ctx, "compliance report", reportsPath, query)
	if err != nil {
		return nil, err
	}
	return ParseComplianceReport(body, accountID, reportName, dr)
}

// ParseComplianceReport converts a report document, as returned by the
// API or by `lacework compliance aws get-report --json`, into findings.
func ParseComplianceReport(body []byte, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error) {
	raw, ok, err := firstObject(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode compliance report for %s: %w", accountID, err)
	}

	report := &types.ComplianceReport{
		AccountID:  accountID,
		ReportName: reportName,
		DateRange:  dr,
		Findings:   []types.ComplianceFinding{},
	}
	if !ok {
		return report, nil
	}

	var rr rawReport
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("failed to decode compliance report for %s: %w", accountID, err)
	}
	report.ReportTitle = rr.ReportTitle

	for _, rec := range rr.Recommendations {
		if rec.RecID == "" {
			continue
		}
		report.Findings = append(report.Findings, rec.finding(accountID))
	}
	return report, nil
}

func (r rawRecommendation) finding(accountID string) types.ComplianceFinding {
	f := types.ComplianceFinding{
		PolicyID:              r.RecID,
		AccountID:             accountID,
		Title:                 strings.TrimSpace(r.Title),
		Severity:              string(r.Severity),
		Status:                types.NormalizeStatus(r.Status),
		AssessedResourceCount: r.AssessedResourceCount,
		ResourceCount:         r.ResourceCount,
	}

	seen := make(map[string]bool)
	for _, v := range r.Violations {
		if v.Resource == "" {
			continue
		}
		f.Violations = append(f.Violations, types.Violation{Resource: v.Resource, Region: v.Region})
		if !seen[v.Resource] {
			seen[v.Resource] = true
			f.ViolatingResourceARNs = append(f.ViolatingResourceARNs, v.Resource)
		}
	}
	return f
}
