package lacework

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/transport"
	"github.com/yairfalse/lwcomply/pkg/types"
)

type argRecorder struct {
	args [][]string
	out  string
}

func (r *argRecorder) Execute(_ context.Context, req *transport.Request) (*transport.Response, error) {
	r.args = append(r.args, req.Args)
	return &transport.Response{StatusCode: 200, Body: []byte(r.out)}, nil
}

func TestCLIProvider_Commands(t *testing.T) {
	rec := &argRecorder{out: cliReport}
	p := NewCLIProvider(rec, "", nil, "--profile", "unsw")

	report, err := p.GetComplianceReport(context.Background(), "123456789012", "AWS CIS Benchmark and S3 Report", types.DateRange{})
	require.NoError(t, err)
	assert.Len(t, report.Findings, 2)
	assert.Equal(t, []string{
		"compliance", "aws", "get-report", "123456789012",
		"--report_name", "AWS CIS Benchmark and S3 Report", "--json",
		"--profile", "unsw",
	}, rec.args[0])

	rec.out = `[]`
	accounts, err := p.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, []string{"cloud-account", "list", "--json", "--profile", "unsw"}, rec.args[1])

	rec.out = `{"data": []}`
	defs, err := p.ListReportDefinitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)

	rec.out = `{"data": {"policyId": "p1", "title": "T"}}`
	policy, err := p.GetPolicy(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "T", policy.Title)
	assert.Equal(t, []string{"policy", "show", "p1", "--json", "--profile", "unsw"}, rec.args[3])
}

func TestCLIProvider_MissingBinary(t *testing.T) {
	runner := transport.NewCLIRunner("/nonexistent/lacework-cli")
	p := NewCLIProvider(noRetry(runner), runner.Binary(), nil)

	_, err := p.GetComplianceReport(context.Background(), "123456789012", "CIS", types.DateRange{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}
