package types

import (
	"fmt"
	"strings"
	"time"
)

// TagSource records where a resource's ownership tags came from.
type TagSource string

const (
	TagSourceDirect   TagSource = "direct"
	TagSourceFallback TagSource = "fallback"
	TagSourceNone     TagSource = "none"
)

// TagField is one of the ownership tags tracked per resource.
type TagField string

const (
	TagTechnicalOwner TagField = "technical-owner"
	TagBusinessOwner  TagField = "business-owner"
	TagEnvironment    TagField = "environment"
	TagBillingProject TagField = "billing-project-id"
)

// OwnershipFields lists the ownership tags in their canonical order.
var OwnershipFields = []TagField{
	TagTechnicalOwner,
	TagBusinessOwner,
	TagEnvironment,
	TagBillingProject,
}

// Key returns the namespaced tag key, e.g. "unsw:technical-owner".
func (f TagField) Key(namespace string) string {
	if namespace == "" {
		return string(f)
	}
	return namespace + ":" + string(f)
}

// ResourceRecord is a single inventory resource as reported by the
// inventory provider, plus the tag provenance computed during resolution.
type ResourceRecord struct {
	ARN          string            `json:"arn" yaml:"arn"`
	ResourceType string            `json:"resourceType" yaml:"resourceType"`
	AccountID    string            `json:"accountId" yaml:"accountId"`
	Region       string            `json:"region,omitempty" yaml:"region,omitempty"`
	Tags         map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	TagSource    TagSource         `json:"tagSource,omitempty" yaml:"tagSource,omitempty"`
	Markers      map[string]string `json:"markers,omitempty" yaml:"markers,omitempty"`
	StartTime    time.Time         `json:"startTime" yaml:"startTime"`
}

// Validate checks required fields.
func (r *ResourceRecord) Validate() error {
	if r.ARN == "" {
		return fmt.Errorf("resource ARN is required")
	}
	if !strings.HasPrefix(r.ARN, "arn:") {
		return fmt.Errorf("invalid ARN %q", r.ARN)
	}
	if r.AccountID == "" {
		return fmt.Errorf("resource account ID is required")
	}
	return nil
}

// GetTag returns a tag value. Empty values count as missing.
func (r *ResourceRecord) GetTag(key string) (string, bool) {
	if r.Tags == nil {
		return "", false
	}
	v, ok := r.Tags[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// HasTags reports whether the resource carries at least one non-empty tag.
func (r *ResourceRecord) HasTags() bool {
	for _, v := range r.Tags {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *ResourceRecord) Clone() ResourceRecord {
	out := *r
	out.Tags = cloneMap(r.Tags)
	out.Markers = cloneMap(r.Markers)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
