package aggregator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/pkg/types"
)

type MockComplianceProvider struct {
	mock.Mock
}

func (m *MockComplianceProvider) GetComplianceReport(ctx context.Context, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error) {
	args := m.Called(ctx, accountID, reportName, dr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ComplianceReport), args.Error(1)
}

type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) GetProfile(ctx context.Context, accountID string) (*types.AccountTagProfile, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AccountTagProfile), args.Error(1)
}

type MockPolicyProvider struct {
	mock.Mock
}

func (m *MockPolicyProvider) GetPolicy(ctx context.Context, policyID string) (*types.Policy, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Policy), args.Error(1)
}

type MockAccountDirectory struct {
	mock.Mock
}

func (m *MockAccountDirectory) ListAccounts(ctx context.Context) ([]types.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Account), args.Error(1)
}

type MockReportDefinitionProvider struct {
	mock.Mock
}

func (m *MockReportDefinitionProvider) ListReportDefinitions(ctx context.Context) ([]types.ReportDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ReportDefinition), args.Error(1)
}

// fakeInventory answers every query with all matching records in one page.
type fakeInventory struct {
	records []types.ResourceRecord
	calls   int
}

func (f *fakeInventory) Search(_ context.Context, req inventory.SearchRequest) (*inventory.SearchResponse, error) {
	f.calls++
	var out []types.ResourceRecord
	for _, r := range f.records {
		if req.ResourceType != "" && r.ResourceType != req.ResourceType {
			continue
		}
		if req.AccountID != "" && r.AccountID != req.AccountID {
			continue
		}
		out = append(out, r)
	}
	return &inventory.SearchResponse{
		Records: out,
		Paging:  inventory.Paging{Rows: len(out), TotalRows: len(out)},
	}, nil
}
