package types

import "strings"

// ComplianceStatus is the normalised outcome of a policy evaluation.
type ComplianceStatus string

const (
	StatusCompliant      ComplianceStatus = "Compliant"
	StatusNonCompliant   ComplianceStatus = "NonCompliant"
	StatusCouldNotAssess ComplianceStatus = "CouldNotAssess"
)

// Violation is a single violating resource reported against a policy.
type Violation struct {
	Resource string `json:"resource" yaml:"resource"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
}

// ComplianceFinding is the result of one policy for one account. Findings
// are read-only after creation.
type ComplianceFinding struct {
	PolicyID              string           `json:"policyId" yaml:"policyId"`
	AccountID             string           `json:"accountId" yaml:"accountId"`
	Title                 string           `json:"title,omitempty" yaml:"title,omitempty"`
	Severity              string           `json:"severity,omitempty" yaml:"severity,omitempty"`
	Status                ComplianceStatus `json:"status" yaml:"status"`
	AssessedResourceCount int              `json:"assessedResourceCount" yaml:"assessedResourceCount"`
	ResourceCount         int              `json:"resourceCount,omitempty" yaml:"resourceCount,omitempty"`
	ViolatingResourceARNs []string         `json:"violatingResourceArns,omitempty" yaml:"violatingResourceArns,omitempty"`
	Violations            []Violation      `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// IsNonCompliant reports whether the finding failed.
func (f *ComplianceFinding) IsNonCompliant() bool {
	return f.Status == StatusNonCompliant
}

// ViolatingCount returns the number of violating resources, falling back
// to the reported resource count when no violations were listed.
func (f *ComplianceFinding) ViolatingCount() int {
	if n := len(f.ViolatingResourceARNs); n > 0 {
		return n
	}
	return f.ResourceCount
}

// IsAssessed reports whether the platform reached a verdict.
func (f *ComplianceFinding) IsAssessed() bool {
	return f.Status == StatusCompliant || f.Status == StatusNonCompliant
}

// NormalizeStatus maps the raw status strings emitted by the platform to a
// ComplianceStatus. Suppressed policies count as compliant. Anything the
// platform could not evaluate, including statuses it never documented, is
// kept apart so it never reads as a pass.
func NormalizeStatus(raw string) ComplianceStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "noncompliant", "non-compliant", "non_compliant", "violation", "failed":
		return StatusNonCompliant
	case "compliant", "suppressed", "passed":
		return StatusCompliant
	default:
		return StatusCouldNotAssess
	}
}

// ComplianceReport is one account's evaluation against a named report.
type ComplianceReport struct {
	AccountID   string              `json:"accountId" yaml:"accountId"`
	ReportName  string              `json:"reportName" yaml:"reportName"`
	ReportTitle string              `json:"reportTitle,omitempty" yaml:"reportTitle,omitempty"`
	DateRange   DateRange           `json:"dateRange" yaml:"dateRange"`
	Findings    []ComplianceFinding `json:"findings" yaml:"findings"`
}

// NonCompliant returns the failed findings in report order.
func (r *ComplianceReport) NonCompliant() []ComplianceFinding {
	var out []ComplianceFinding
	for _, f := range r.Findings {
		if f.IsNonCompliant() {
			out = append(out, f)
		}
	}
	return out
}

// ViolatingARNs returns the distinct violating resources across the failed
// findings, in first-seen order.
func (r *ComplianceReport) ViolatingARNs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.Findings {
		if !f.IsNonCompliant() {
			continue
		}
		for _, arn := range f.ViolatingResourceARNs {
			if arn == "" || seen[arn] {
				continue
			}
			seen[arn] = true
			out = append(out, arn)
		}
	}
	return out
}

// Policy is the platform's description of a compliance rule.
type Policy struct {
	ID          string `json:"policyId" yaml:"policyId"`
	Title       string `json:"title" yaml:"title"`
	Severity    string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	PolicyType  string `json:"policyType,omitempty" yaml:"policyType,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Remediation string `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// ReportDefinition names a compliance report and the policies it covers.
type ReportDefinition struct {
	GUID      string   `json:"reportDefinitionGuid" yaml:"reportDefinitionGuid"`
	Name      string   `json:"reportName" yaml:"reportName"`
	PolicyIDs []string `json:"policyIds,omitempty" yaml:"policyIds,omitempty"`
}

// FindReportDefinition returns the definition named name. Surrounding
// whitespace is ignored.
func FindReportDefinition(defs []ReportDefinition, name string) (ReportDefinition, bool) {
	name = strings.TrimSpace(name)
	for _, d := range defs {
		if strings.TrimSpace(d.Name) == name {
			return d, true
		}
	}
	return ReportDefinition{}, false
}
