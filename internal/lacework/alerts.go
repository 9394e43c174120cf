package lacework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yairfalse/lwcomply/pkg/types"
)

const alertsPath = "/api/v2/Alerts"

type rawAlert struct {
	AlertID       alertID    `json:"alertId"`
	PolicyID      string     `json:"policyId"`
	Severity      flexString `json:"severity"`
	Status        string     `json:"status"`
	AlertType     string     `json:"alertType"`
	StartTime     string     `json:"startTime"`
	DerivedFields struct {
		Category    string `json:"category"`
		SubCategory string `json:"sub_category"`
		Source      string `json:"source"`
	} `json:"derivedFields"`
	EntityMap entityMap `json:"entityMap"`
}

type entityMap struct {
	Resource []struct {
		Key struct {
			Resource       string `json:"resource"`
			ResourceRegion string `json:"resource_region"`
			AccountID      string `json:"account_id"`
		} `json:"KEY"`
	} `json:"Resource"`
	Region []struct {
		Key struct {
			Region string `json:"region"`
		} `json:"KEY"`
	} `json:"Region"`
	CTUser []struct {
		Key struct {
			Account string `json:"account"`
		} `json:"KEY"`
	} `json:"CT_User"`
}

// alertID accepts the numeric IDs the API emits and the strings the CLI
// sometimes prints.
type alertID string

func (a *alertID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = alertID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = alertID(n.String())
	return nil
}

// ListAlerts returns the alerts raised inside dr. The API has no report
// filter; report is only honoured by the CLI.
func (c *APIClient) ListAlerts(ctx context.Context, dr types.DateRange, report string) ([]types.Alert, error) {
	start, end := alertWindow(dr)
	q := url.Values{}
	q.Set("startTime", start)
	q.Set("endTime", end)
	body, err := c.get(ctx, "alerts", alertsPath, q)
	if err != nil {
		return nil, err
	}
	return ParseAlerts(body)
}

// GetAlert fetches the details of one alert.
func (c *APIClient) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	q := url.Values{}
	q.Set("scope", "Details")
	body, err := c.get(ctx, "alert", alertsPath+"/"+url.PathEscape(id), q)
	if err != nil {
		return nil, err
	}
	return ParseAlert(body, id)
}

// ListAlerts runs `alert list` over dr, optionally scoped to a report.
func (p *CLIProvider) ListAlerts(ctx context.Context, dr types.DateRange, report string) ([]types.Alert, error) {
	start, end := alertWindow(dr)
	args := []string{"alert", "list", "--start", start, "--end", end, "--json"}
	if report != "" {
		args = append(args, "--report", report)
	}
	body, err := p.run(ctx, "alerts", args...)
	if err != nil {
		return nil, err
	}
	return ParseAlerts(body)
}

// GetAlert runs `alert show`.
func (p *CLIProvider) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	body, err := p.run(ctx, "alert", "alert", "show", id, "--json")
	if err != nil {
		return nil, err
	}
	return ParseAlert(body, id)
}

// alertWindow spans whole days from the start of dr.Start to the last
// second of dr.End.
func alertWindow(dr types.DateRange) (string, string) {
	return dr.StartString() + "T00:00:00Z", dr.EndString() + "T23:59:59Z"
}

// ParseAlerts decodes an alert listing, bare or wrapped in "data".
func ParseAlerts(body []byte) ([]types.Alert, error) {
	var raw []rawAlert
	if err := json.Unmarshal(unwrapData(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	alerts := make([]types.Alert, 0, len(raw))
	for _, r := range raw {
		if r.AlertID == "" {
			continue
		}
		alerts = append(alerts, r.alert())
	}
	return alerts, nil
}

// ParseAlert decodes a single alert document.
func ParseAlert(body []byte, id string) (*types.Alert, error) {
	raw, ok, err := firstObject(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	var r rawAlert
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode alert %s: %w", id, err)
	}
	if r.AlertID == "" {
		r.AlertID = alertID(id)
	}
	a := r.alert()
	return &a, nil
}

func (r rawAlert) alert() types.Alert {
	a := types.Alert{
		ID:          string(r.AlertID),
		PolicyID:    r.PolicyID,
		Severity:    string(r.Severity),
		Status:      r.Status,
		Type:        r.AlertType,
		Category:    r.DerivedFields.Category,
		SubCategory: r.DerivedFields.SubCategory,
		Source:      r.DerivedFields.Source,
		Resources:   r.EntityMap.resources(),
		Region:      r.EntityMap.region(),
		AccountID:   r.EntityMap.account(),
	}
	if t, err := time.Parse(time.RFC3339Nano, r.StartTime); err == nil {
		a.StartTime = t.UTC()
	}
	return a
}

// resources returns the distinct resource ARNs of the entity map, sorted.
func (m entityMap) resources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.Resource {
		arn := strings.TrimSpace(e.Key.Resource)
		if !strings.HasPrefix(arn, "arn:") || seen[arn] {
			continue
		}
		seen[arn] = true
		out = append(out, arn)
	}
	sort.Strings(out)
	return out
}

func (m entityMap) region() string {
	if len(m.Resource) > 0 && m.Resource[0].Key.ResourceRegion != "" {
		return m.Resource[0].Key.ResourceRegion
	}
	if len(m.Region) > 0 {
		return m.Region[0].Key.Region
	}
	return ""
}

func (m entityMap) account() string {
	if len(m.Resource) > 0 && m.Resource[0].Key.AccountID != "" {
		return m.Resource[0].Key.AccountID
	}
	if len(m.CTUser) > 0 {
		return m.CTUser[0].Key.Account
	}
	return ""
}
