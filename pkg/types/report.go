package types

import (
	"sort"
	"time"
)

// AccountStatus is the outcome of processing one account.
type AccountStatus string

const (
	AccountStatusOK     AccountStatus = "ok"
	AccountStatusFailed AccountStatus = "failed"
)

// TagSummary counts resources by tag provenance.
type TagSummary struct {
	Direct   int `json:"direct" yaml:"direct"`
	Fallback int `json:"fallback" yaml:"fallback"`
	None     int `json:"none" yaml:"none"`
}

// Add counts one resource.
func (s *TagSummary) Add(src TagSource) {
	switch src {
	case TagSourceDirect:
		s.Direct++
	case TagSourceFallback:
		s.Fallback++
	default:
		s.None++
	}
}

// Merge adds another summary into this one.
func (s *TagSummary) Merge(o TagSummary) {
	s.Direct += o.Direct
	s.Fallback += o.Fallback
	s.None += o.None
}

// Total returns the number of counted resources.
func (s TagSummary) Total() int {
	return s.Direct + s.Fallback + s.None
}

// AccountResult holds everything collected for one account.
type AccountResult struct {
	AccountID            string              `json:"accountId" yaml:"accountId"`
	Alias                string              `json:"alias,omitempty" yaml:"alias,omitempty"`
	Status               AccountStatus       `json:"status" yaml:"status"`
	Error                string              `json:"error,omitempty" yaml:"error,omitempty"`
	Findings             []ComplianceFinding `json:"findings,omitempty" yaml:"findings,omitempty"`
	Resources            []ResourceRecord    `json:"resources,omitempty" yaml:"resources,omitempty"`
	NonCompliantPolicies int                 `json:"nonCompliantPolicies" yaml:"nonCompliantPolicies"`
	Tags                 TagSummary          `json:"tags" yaml:"tags"`
}

// PolicySummary aggregates one policy across all successful accounts.
// Resource counts follow the platform: compliant and unassessed findings
// contribute their assessed count, failed findings their violating
// resources.
type PolicySummary struct {
	PolicyID             string `json:"policyId" yaml:"policyId"`
	Title                string `json:"title,omitempty" yaml:"title,omitempty"`
	Severity             string `json:"severity,omitempty" yaml:"severity,omitempty"`
	AccountsAffected     int    `json:"accountsAffected" yaml:"accountsAffected"`
	AccountsCompliant    int    `json:"accountsCompliant" yaml:"accountsCompliant"`
	AccountsNotAssessed  int    `json:"accountsNotAssessed" yaml:"accountsNotAssessed"`
	ViolatingResources   int    `json:"violatingResources" yaml:"violatingResources"`
	CompliantResources   int    `json:"compliantResources" yaml:"compliantResources"`
	NotAssessedResources int    `json:"notAssessedResources" yaml:"notAssessedResources"`
	AssessedResources    int    `json:"assessedResources" yaml:"assessedResources"`
}

// Add counts one account's finding for the policy.
func (s *PolicySummary) Add(f ComplianceFinding) {
	if s.Title == "" {
		s.Title = f.Title
	}
	if s.Severity == "" {
		s.Severity = f.Severity
	}
	s.AssessedResources += f.AssessedResourceCount
	switch f.Status {
	case StatusNonCompliant:
		s.AccountsAffected++
		s.ViolatingResources += f.ViolatingCount()
	case StatusCompliant:
		s.AccountsCompliant++
		s.CompliantResources += f.AssessedResourceCount
	default:
		s.AccountsNotAssessed++
		s.NotAssessedResources += f.AssessedResourceCount
	}
}

// AggregateReport is the output of a full compliance run.
type AggregateReport struct {
	ReportName            string          `json:"reportName" yaml:"reportName"`
	DateRange             DateRange       `json:"dateRange" yaml:"dateRange"`
	GeneratedAt           time.Time       `json:"generatedAt" yaml:"generatedAt"`
	Accounts              []AccountResult `json:"accounts" yaml:"accounts"`
	Policies              []PolicySummary `json:"policies,omitempty" yaml:"policies,omitempty"`
	Tags                  TagSummary      `json:"tags" yaml:"tags"`
	TotalResources        int             `json:"totalResources" yaml:"totalResources"`
	PartialAccountFailure bool            `json:"partialAccountFailure" yaml:"partialAccountFailure"`
	Interrupted           bool            `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// FailedAccounts returns the IDs of accounts that could not be processed.
func (r *AggregateReport) FailedAccounts() []string {
	var ids []string
	for _, a := range r.Accounts {
		if a.Status == AccountStatusFailed {
			ids = append(ids, a.AccountID)
		}
	}
	return ids
}

// SortPolicies orders policies by violating resources, then by ID.
func (r *AggregateReport) SortPolicies() {
	sort.SliceStable(r.Policies, func(i, j int) bool {
		if r.Policies[i].ViolatingResources != r.Policies[j].ViolatingResources {
			return r.Policies[i].ViolatingResources > r.Policies[j].ViolatingResources
		}
		return r.Policies[i].PolicyID < r.Policies[j].PolicyID
	})
}
