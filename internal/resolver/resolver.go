// Package resolver fills missing ownership tags on resources from their
// account's tag profile.
package resolver

import (
	"fmt"
	"strings"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// Precedence decides how computed profile values and organisation defaults
// combine when a resource lacks an ownership tag.
type Precedence string

const (
	// PrecedenceProfileOnly uses the account profile and nothing else.
	PrecedenceProfileOnly Precedence = "profile-only"
	// PrecedenceProfileThenDefaults backstops unset profile fields with the
	// organisation defaults.
	PrecedenceProfileThenDefaults Precedence = "profile-then-defaults"
	// PrecedenceDefaultsFirst prefers the organisation defaults over the
	// profile.
	PrecedenceDefaultsFirst Precedence = "defaults-first"
)

const (
	SourceAccountAnalysis = "account-analysis"
	SourceOrgDefaults     = "organization-defaults"

	ReasonNoTags   = "no_tags_in_inventory"
	ReasonNotFound = "not_found_in_inventory"
)

const (
	markerApplied = "fallback-applied"
	markerReason  = "fallback-reason"
	markerSource  = "fallback-source"
)

// Options configures a Resolver.
type Options struct {
	Namespace   string
	Precedence  Precedence
	OrgDefaults map[types.TagField]string
}

// Resolver applies the tag fallback hierarchy. It holds no mutable state
// and is safe for concurrent use.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	switch opts.Precedence {
	case "":
		opts.Precedence = PrecedenceProfileOnly
	case PrecedenceProfileOnly, PrecedenceProfileThenDefaults, PrecedenceDefaultsFirst:
	default:
		return nil, fmt.Errorf("unknown tag precedence %q", opts.Precedence)
	}
	return &Resolver{opts: opts}, nil
}

// ParseDefaults converts config defaults keyed by field name
// ("technical-owner") into TagFields.
func ParseDefaults(in map[string]string) (map[types.TagField]string, error) {
	out := make(map[types.TagField]string, len(in))
	for name, v := range in {
		f, ok := fieldByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown ownership tag %q", name)
		}
		if v = strings.TrimSpace(v); v != "" {
			out[f] = v
		}
	}
	return out, nil
}

func fieldByName(name string) (types.TagField, bool) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, f := range types.OwnershipFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Key returns the namespaced marker or tag key for name.
func (r *Resolver) Key(name string) string {
	if r.opts.Namespace == "" {
		return name
	}
	return r.opts.Namespace + ":" + name
}

// NeedsFallback reports whether resource lacks any ownership tag.
func (r *Resolver) NeedsFallback(resource types.ResourceRecord) bool {
	for _, f := range types.OwnershipFields {
		if _, ok := resource.GetTag(f.Key(r.opts.Namespace)); !ok {
			return true
		}
	}
	return false
}

// Resolve returns a copy of resource with its tag source set and, where
// ownership tags are missing, filled from profile. Present tags are never
// overwritten and a field with no available value stays absent. The input
// is not modified.
func (r *Resolver) Resolve(resource types.ResourceRecord, profile *types.AccountTagProfile) types.ResourceRecord {
	out := resource.Clone()
	out.Markers = nil

	if !r.NeedsFallback(resource) {
		out.TagSource = types.TagSourceDirect
		out.Markers = map[string]string{r.Key(markerApplied): "false"}
		return out
	}

	if !resource.HasTags() {
		return r.fill(out, profile, ReasonNoTags)
	}
	return r.fill(out, profile, "")
}

// ResolveMissing builds a record for a resource that the inventory does not
// know about and applies the account defaults to it.
func (r *Resolver) ResolveMissing(arn, accountID, resourceType string, profile *types.AccountTagProfile) types.ResourceRecord {
	rec := types.ResourceRecord{
		ARN:          arn,
		ResourceType: resourceType,
		AccountID:    accountID,
	}
	return r.fill(rec, profile, ReasonNotFound)
}

// fill sets every missing ownership tag for which a value is available. An
// empty reason lists the filled fields.
func (r *Resolver) fill(out types.ResourceRecord, profile *types.AccountTagProfile, reason string) types.ResourceRecord {
	var filled []string
	var sources []string

	for _, f := range types.OwnershipFields {
		key := f.Key(r.opts.Namespace)
		if _, ok := out.GetTag(key); ok {
			continue
		}
		v, src, ok := r.value(f, profile)
		if !ok {
			continue
		}
		if out.Tags == nil {
			out.Tags = make(map[string]string, len(types.OwnershipFields))
		}
		out.Tags[key] = v
		filled = append(filled, "missing_"+strings.ReplaceAll(string(f), "-", "_"))
		if !containsString(sources, src) {
			sources = append(sources, src)
		}
	}

	if len(filled) == 0 {
		out.TagSource = types.TagSourceNone
		if out.HasTags() {
			out.TagSource = types.TagSourceDirect
		}
		out.Markers = map[string]string{r.Key(markerApplied): "false"}
		return out
	}

	if reason == "" {
		reason = strings.Join(filled, ", ")
	}
	out.TagSource = types.TagSourceFallback
	out.Markers = map[string]string{
		r.Key(markerApplied): "true",
		r.Key(markerReason):  reason,
		r.Key(markerSource):  strings.Join(sources, ","),
	}
	return out
}

// value picks the fallback value of f under the configured precedence.
func (r *Resolver) value(f types.TagField, profile *types.AccountTagProfile) (string, string, bool) {
	fromProfile := func() (string, string, bool) {
		v, ok := profile.Value(f)
		if !ok || strings.TrimSpace(v) == "" {
			return "", "", false
		}
		return v, SourceAccountAnalysis, true
	}
	fromDefaults := func() (string, string, bool) {
		v, ok := r.opts.OrgDefaults[f]
		if !ok || v == "" {
			return "", "", false
		}
		return v, SourceOrgDefaults, true
	}

	switch r.opts.Precedence {
	case PrecedenceProfileThenDefaults:
		if v, src, ok := fromProfile(); ok {
			return v, src, true
		}
		return fromDefaults()
	case PrecedenceDefaultsFirst:
		if v, src, ok := fromDefaults(); ok {
			return v, src, true
		}
		return fromProfile()
	default:
		return fromProfile()
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
