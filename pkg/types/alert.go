package types

import "time"

const (
	AlertCategoryPolicy        = "Policy"
	AlertSubCategoryCompliance = "Compliance"
)

// Alert is a platform alert, optionally enriched with the details of the
// policy that raised it.
type Alert struct {
	ID          string    `json:"alertId" yaml:"alertId"`
	PolicyID    string    `json:"policyId,omitempty" yaml:"policyId,omitempty"`
	Severity    string    `json:"severity,omitempty" yaml:"severity,omitempty"`
	Status      string    `json:"status,omitempty" yaml:"status,omitempty"`
	Type        string    `json:"alertType,omitempty" yaml:"alertType,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	SubCategory string    `json:"subCategory,omitempty" yaml:"subCategory,omitempty"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	StartTime   time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	Resources   []string  `json:"resources,omitempty" yaml:"resources,omitempty"`
	Region      string    `json:"region,omitempty" yaml:"region,omitempty"`
	AccountID   string    `json:"accountId,omitempty" yaml:"accountId,omitempty"`
	PolicyTitle string    `json:"policyTitle,omitempty" yaml:"policyTitle,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Remediation string    `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// IsCompliance reports whether the alert came from a compliance policy.
func (a *Alert) IsCompliance() bool {
	return a.Category == AlertCategoryPolicy && a.SubCategory == AlertSubCategoryCompliance
}

// Merge fills empty fields of a from detail.
func (a *Alert) Merge(detail Alert) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&a.PolicyID, detail.PolicyID)
	fill(&a.Severity, detail.Severity)
	fill(&a.Status, detail.Status)
	fill(&a.Type, detail.Type)
	fill(&a.Category, detail.Category)
	fill(&a.SubCategory, detail.SubCategory)
	fill(&a.Source, detail.Source)
	fill(&a.Region, detail.Region)
	fill(&a.AccountID, detail.AccountID)
	if a.StartTime.IsZero() {
		a.StartTime = detail.StartTime
	}
	if len(a.Resources) == 0 {
		a.Resources = detail.Resources
	}
}

// Enrich copies the policy's descriptive fields onto the alert.
func (a *Alert) Enrich(p *Policy) {
	a.PolicyTitle = p.Title
	a.Description = p.Description
	a.Remediation = p.Remediation
	if a.Severity == "" {
		a.Severity = p.Severity
	}
}

// AlertReport is the output of an alert collection run.
type AlertReport struct {
	ReportName  string    `json:"reportName,omitempty" yaml:"reportName,omitempty"`
	DateRange   DateRange `json:"dateRange" yaml:"dateRange"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generatedAt"`
	TotalAlerts int       `json:"totalAlerts" yaml:"totalAlerts"`
	Alerts      []Alert   `json:"alerts" yaml:"alerts"`
}
