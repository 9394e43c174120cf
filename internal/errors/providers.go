package errors

import (
	"fmt"
	"strings"
)

// LaceworkCredentialsError creates a Lacework authentication error with guidance
func LaceworkCredentialsError(originalErr error) *LWError {
	err := New(ErrorTypeAuthentication, ProviderLacework, "Lacework credentials not found")

	if originalErr != nil {
		msg := originalErr.Error()
		switch {
		case strings.Contains(msg, "401"), strings.Contains(strings.ToLower(msg), "unauthorized"):
			err.Message = "Lacework credentials rejected"
			err.WithCause("API key or secret is invalid or expired")
		default:
			err.WithCause(msg)
		}
	}

	err.WithSolutions(
		`export LW_ACCOUNT=your-account LW_API_KEY=key LW_API_SECRET=secret`,
		`lacework configure`,
	)
	err.WithVerify("lacework cloud-account list")
	return err
}

// LaceworkCLIError reports that the lacework CLI could not be executed
func LaceworkCLIError(binary string, originalErr error) *LWError {
	err := New(ErrorTypeConfiguration, ProviderLacework, fmt.Sprintf("cannot run %s", binary)).Wrap(originalErr)
	err.WithSolutions(
		"Install the Lacework CLI and make sure it is on PATH",
		"Set lacework.cli_path in the config file",
		"Use lacework.mode: api to call the HTTP API directly",
	)
	err.WithVerify(binary + " version")
	return err
}

// AWSCredentialsError creates an AWS credentials error
func AWSCredentialsError(originalErr error) *LWError {
	err := New(ErrorTypeAuthentication, ProviderAWS, "AWS credentials not found")
	err.WithCause("No valid credential source detected")

	if originalErr != nil && strings.Contains(originalErr.Error(), "ExpiredToken") {
		err.Message = "AWS credentials expired"
		err.WithCause("Security token has expired")
		err.WithSolutions(
			"Refresh AWS credentials",
			"aws sso login (if using SSO)",
		)
	} else {
		err.WithSolutions(
			`aws configure`,
			`export AWS_ACCESS_KEY_ID=your-key AWS_SECRET_ACCESS_KEY=your-secret`,
			`aws sso login (if using AWS SSO)`,
		)
	}

	err.WithVerify("aws sts get-caller-identity")
	return err
}

// ConfigurationError reports an invalid configuration value
func ConfigurationError(key, problem string) *LWError {
	return New(ErrorTypeConfiguration, ProviderUnknown, fmt.Sprintf("invalid configuration %s", key)).
		WithCause(problem).
		WithSolutions("Check ~/.lwcomply/config.yaml or the LWCOMPLY_* environment variables")
}

// PartialAccountFailure reports that some accounts could not be assessed
func PartialAccountFailure(failed []string) *LWError {
	return New(ErrorTypePartialFailure, ProviderUnknown, fmt.Sprintf("%d account(s) could not be assessed", len(failed))).
		WithCause(strings.Join(failed, ", ")).
		WithSolutions(
			"Re-run once the platform rate limit has recovered; cached accounts are not fetched again",
			"Check the per-account error in the report output",
		)
}

// IncompleteInventory reports paging that stopped before the provider's
// reported total was reached
func IncompleteInventory(accountID string, fetched, total int) *LWError {
	return New(ErrorTypeTruncated, ProviderUnknown,
		fmt.Sprintf("inventory for account %s stopped at %d of %d resources", accountID, fetched, total)).
		WithCause("the provider repeated a page instead of advancing the cursor").
		WithSolutions("Clear the account-inventory cache and re-run; the account is retried from the first page")
}
