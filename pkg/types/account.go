package types

import (
	"fmt"
	"regexp"
)

// Provider identifies the cloud provider an account belongs to.
type Provider string

const (
	ProviderAWS Provider = "aws"
)

var awsAccountIDPattern = regexp.MustCompile(`^\d{12}$`)

// Account is a monitored cloud account. It is immutable for the duration
// of a run.
type Account struct {
	ID              string   `json:"id" yaml:"id"`
	Provider        Provider `json:"provider" yaml:"provider"`
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Alias           string   `json:"alias,omitempty" yaml:"alias,omitempty"`
	IntegrationGUID string   `json:"integrationGuid,omitempty" yaml:"integrationGuid,omitempty"`
}

// Validate checks that the account carries a usable identifier.
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	if a.Provider == ProviderAWS && !awsAccountIDPattern.MatchString(a.ID) {
		return fmt.Errorf("invalid AWS account ID %q: expected 12 digits", a.ID)
	}
	return nil
}

// FilterEnabled returns the enabled accounts, preserving order.
func FilterEnabled(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}
