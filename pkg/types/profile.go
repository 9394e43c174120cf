package types

import "time"

// ValueCount is a tag value and the number of resources carrying it.
type ValueCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// AccountTagProfile summarises the dominant ownership tags of an account.
// Profiles are replaced wholesale on recompute and never mutated.
type AccountTagProfile struct {
	AccountID                string                    `json:"accountId" yaml:"accountId"`
	TotalResources           int                       `json:"totalResources" yaml:"totalResources"`
	TaggedResources          int                       `json:"taggedResources" yaml:"taggedResources"`
	TaggingCoverage          float64                   `json:"taggingCoverage" yaml:"taggingCoverage"`
	MostCommonTechnicalOwner *string                   `json:"mostCommonTechnicalOwner,omitempty" yaml:"mostCommonTechnicalOwner,omitempty"`
	MostCommonBusinessOwner  *string                   `json:"mostCommonBusinessOwner,omitempty" yaml:"mostCommonBusinessOwner,omitempty"`
	MostCommonEnvironment    *string                   `json:"mostCommonEnvironment,omitempty" yaml:"mostCommonEnvironment,omitempty"`
	MostCommonBillingProject *string                   `json:"mostCommonBillingProject,omitempty" yaml:"mostCommonBillingProject,omitempty"`
	Distributions            map[TagField][]ValueCount `json:"distributions,omitempty" yaml:"distributions,omitempty"`
	ComputedAt               time.Time                 `json:"computedAt" yaml:"computedAt"`
}

// Value returns the most common value for a field, if one was computed.
func (p *AccountTagProfile) Value(f TagField) (string, bool) {
	if p == nil {
		return "", false
	}
	var v *string
	switch f {
	case TagTechnicalOwner:
		v = p.MostCommonTechnicalOwner
	case TagBusinessOwner:
		v = p.MostCommonBusinessOwner
	case TagEnvironment:
		v = p.MostCommonEnvironment
	case TagBillingProject:
		v = p.MostCommonBillingProject
	}
	if v == nil {
		return "", false
	}
	return *v, true
}

// SetValue sets the most common value for a field. Used only while building
// a fresh profile.
func (p *AccountTagProfile) SetValue(f TagField, value string) {
	v := value
	switch f {
	case TagTechnicalOwner:
		p.MostCommonTechnicalOwner = &v
	case TagBusinessOwner:
		p.MostCommonBusinessOwner = &v
	case TagEnvironment:
		p.MostCommonEnvironment = &v
	case TagBillingProject:
		p.MostCommonBillingProject = &v
	}
}
