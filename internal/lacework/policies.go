package lacework

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/yairfalse/lwcomply/pkg/types"
)

const (
	policiesPath          = "/api/v2/Policies"
	reportDefinitionsPath = "/api/v2/ReportDefinitions"
)

type rawPolicy struct {
	PolicyID    string     `json:"policyId"`
	Title       string     `json:"title"`
	Severity    flexString `json:"severity"`
	Enabled     bool       `json:"enabled"`
	PolicyType  string     `json:"policyType"`
	Description string     `json:"description"`
	Remediation string     `json:"remediation"`
}

// GetPolicy fetches a policy by ID.
func (c *APIClient) GetPolicy(ctx context.Context, policyID string) (*types.Policy, error) {
	body, err := c.get(ctx, "policy", policiesPath+"/"+url.PathEscape(policyID), nil)
	if err != nil {
		return nil, err
	}
	return ParsePolicy(body, policyID)
}

// ParsePolicy decodes a single policy document.
func ParsePolicy(body []byte, policyID string) (*types.Policy, error) {
	raw, ok, err := firstObject(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode policy %s: %w", policyID, err)
	}
	if !ok {
		return nil, fmt.Errorf("policy %s not found", policyID)
	}

	var p rawPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode policy %s: %w", policyID, err)
	}
	if p.PolicyID == "" {
		p.PolicyID = policyID
	}
	return &types.Policy{
		ID:          p.PolicyID,
		Title:       p.Title,
		Severity:    string(p.Severity),
		Enabled:     p.Enabled,
		PolicyType:  p.PolicyType,
		Description: p.Description,
		Remediation: p.Remediation,
	}, nil
}

type rawReportDefinition struct {
	GUID       string `json:"reportDefinitionGuid"`
	ReportName string `json:"reportName"`
	Definition struct {
		Sections []rawSection `json:"sections"`
	} `json:"reportDefinition"`
	Sections []rawSection `json:"sections"`
	Policies []policyRef  `json:"policies"`
}

type rawSection struct {
	Policies []policyRef `json:"policies"`
}

// policyRef is either a bare policy ID or an object carrying policyId.
type policyRef string

func (p *policyRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = policyRef(s)
		return nil
	}
	var obj struct {
		PolicyID string `json:"policyId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*p = policyRef(obj.PolicyID)
	return nil
}

// ListReportDefinitions returns every report definition visible to the
// account.
func (c *APIClient) ListReportDefinitions(ctx context.Context) ([]types.ReportDefinition, error) {
	body, err := c.get(ctx, "report definitions", reportDefinitionsPath, nil)
	if err != nil {
		return nil, err
	}
	return ParseReportDefinitions(body)
}

// ParseReportDefinitions decodes a report definition listing. Policies
// may appear under reportDefinition.sections, top-level sections, or a
// flat policies list.
func ParseReportDefinitions(body []byte) ([]types.ReportDefinition, error) {
	var raw []rawReportDefinition
	if err := json.Unmarshal(unwrapData(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode report definitions: %w", err)
	}

	defs := make([]types.ReportDefinition, 0, len(raw))
	for _, rd := range raw {
		def := types.ReportDefinition{GUID: rd.GUID, Name: strings.TrimSpace(rd.ReportName)}

		seen := make(map[string]bool)
		add := func(refs []policyRef) {
			for _, ref := range refs {
				id := string(ref)
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				def.PolicyIDs = append(def.PolicyIDs, id)
			}
		}
		for _, s := range rd.Definition.Sections {
			add(s.Policies)
		}
		for _, s := range rd.Sections {
			add(s.Policies)
		}
		add(rd.Policies)

		defs = append(defs, def)
	}
	return defs, nil
}
