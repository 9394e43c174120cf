package lacework

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os/exec"

	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/transport"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// CLIProvider drives the lacework CLI. The CLI handles authentication
// from its own profile; GlobalArgs such as --profile or --subaccount are
// added to every invocation.
type CLIProvider struct {
	tr         transport.Transport
	binary     string
	globalArgs []string
	log        logger.Logger
}

// NewCLIProvider creates a CLI provider. tr normally wraps a
// transport.CLIRunner in a RateLimitedTransport.
func NewCLIProvider(tr transport.Transport, binary string, log logger.Logger, globalArgs ...string) *CLIProvider {
	if binary == "" {
		binary = "lacework"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &CLIProvider{
		tr:         tr,
		binary:     binary,
		globalArgs: globalArgs,
		log:        log.WithField("provider", "lacework-cli"),
	}
}

func (p *CLIProvider) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append(append([]string{}, args...), p.globalArgs...)
	p.log.WithField("args", full).Debug("running lacework cli")

	resp, err := p.tr.Execute(ctx, &transport.Request{Args: full, Operation: op})
	if err != nil {
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.LaceworkCLIError(p.binary, err)
		}
		return nil, err
	}
	return resp.Body, nil
}

// GetComplianceReport runs `compliance aws get-report`. The CLI always
// returns the latest evaluation; dr only labels the result.
func (p *CLIProvider) GetComplianceReport(ctx context.Context, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error) {
	body, err := p.run(ctx, "compliance report",
		"compliance", "aws", "get-report", accountID, "--report_name", reportName, "--json")
	if err != nil {
		return nil, err
	}
	return ParseComplianceReport(body, accountID, reportName, dr)
}

// ListAccounts runs `cloud-account list`.
func (p *CLIProvider) ListAccounts(ctx context.Context) ([]types.Account, error) {
	body, err := p.run(ctx, "cloud accounts", "cloud-account", "list", "--json")
	if err != nil {
		return nil, err
	}
	return ParseCloudAccounts(body)
}

// GetPolicy runs `policy show`.
func (p *CLIProvider) GetPolicy(ctx context.Context, policyID string) (*types.Policy, error) {
	body, err := p.run(ctx, "policy", "policy", "show", policyID, "--json")
	if err != nil {
		return nil, err
	}
	return ParsePolicy(body, policyID)
}

// ListReportDefinitions runs `report-definitions list`.
func (p *CLIProvider) ListReportDefinitions(ctx context.Context) ([]types.ReportDefinition, error) {
	body, err := p.run(ctx, "report definitions", "report-definitions", "list", "--json")
	if err != nil {
		return nil, err
	}
	return ParseReportDefinitions(body)
}
