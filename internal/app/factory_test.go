package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/lacework"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/pkg/config"
	"github.com/yairfalse/lwcomply/pkg/types"
)

const (
	testAccount = "123456789012"
	testReport  = "AWS CIS Benchmark and S3 Report"
	testARN     = "arn:aws:ec2:ap-southeast-2:123456789012:instance/i-1"
)

var testWindow = types.DateRange{
	Start: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
}

type fakePlatform struct {
	reportCalls int
}

func (p *fakePlatform) GetComplianceReport(_ context.Context, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error) {
	p.reportCalls++
	return &types.ComplianceReport{
		AccountID:  accountID,
		ReportName: reportName,
		DateRange:  dr,
		Findings: []types.ComplianceFinding{{
			AccountID:             accountID,
			PolicyID:              "lacework-global-31",
			Title:                 "Ensure instances are tagged",
			Severity:              "High",
			Status:                types.StatusNonCompliant,
			ViolatingResourceARNs: []string{testARN},
		}},
	}, nil
}

func (p *fakePlatform) ListAccounts(context.Context) ([]types.Account, error) {
	return []types.Account{
		{ID: testAccount, Provider: types.ProviderAWS, Enabled: true},
		{ID: "210987654321", Provider: types.ProviderAWS},
	}, nil
}

func (p *fakePlatform) GetPolicy(_ context.Context, policyID string) (*types.Policy, error) {
	return &types.Policy{ID: policyID, Title: "Ensure instances are tagged", Severity: "High"}, nil
}

func (p *fakePlatform) ListReportDefinitions(context.Context) ([]types.ReportDefinition, error) {
	return []types.ReportDefinition{{GUID: "g-1", Name: testReport}}, nil
}

func (p *fakePlatform) ListAlerts(context.Context, types.DateRange, string) ([]types.Alert, error) {
	return []types.Alert{
		{ID: "7", PolicyID: "lacework-global-31", Category: types.AlertCategoryPolicy, SubCategory: types.AlertSubCategoryCompliance},
		{ID: "8", Category: "Anomaly"},
	}, nil
}

func (p *fakePlatform) GetAlert(_ context.Context, id string) (*types.Alert, error) {
	return &types.Alert{ID: id, Resources: []string{testARN}, AccountID: testAccount}, nil
}

type fakeInventory struct{}

func (fakeInventory) Search(_ context.Context, req inventory.SearchRequest) (*inventory.SearchResponse, error) {
	rec := types.ResourceRecord{
		ARN:          testARN,
		ResourceType: "ec2:instance",
		AccountID:    testAccount,
		Tags:         map[string]string{"unsw:technical-owner": "alice"},
	}
	if req.ResourceType != "" && req.ResourceType != rec.ResourceType {
		return &inventory.SearchResponse{}, nil
	}
	return &inventory.SearchResponse{
		Records: []types.ResourceRecord{rec},
		Paging:  inventory.Paging{Rows: 1, TotalRows: 1},
	}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Cache.Backend = "memory"
	cfg.Aggregator.AccountPause = 0
	return cfg
}

func offlineFactory() *Factory {
	return &Factory{Logger: logger.NewNop(), Platform: &fakePlatform{}, Inventory: fakeInventory{}}
}

func TestCreate_WiresComponents(t *testing.T) {
	a, err := offlineFactory().Create(context.Background(), testConfig(), testWindow)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &cache.MemoryStore{}, a.Store)
	assert.NotNil(t, a.Fetcher)
	assert.NotNil(t, a.Analyzer)
	assert.NotNil(t, a.Resolver)
	assert.NotNil(t, a.Aggregator)
	assert.NotNil(t, a.Alerts)
	assert.Equal(t, 24*time.Hour, a.TTLs.For(cache.NamespaceAccountInventory))
}

func TestCreate_StoreBackends(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cache.Backend = "file"
		cfg.Cache.Dir = t.TempDir()

		a, err := offlineFactory().Create(context.Background(), cfg, testWindow)
		require.NoError(t, err)
		defer a.Close()
		assert.IsType(t, &cache.FileStore{}, a.Store)
	})

	t.Run("redis", func(t *testing.T) {
		srv := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Addr = srv.Addr()

		a, err := offlineFactory().Create(context.Background(), cfg, testWindow)
		require.NoError(t, err)
		assert.IsType(t, &cache.RedisStore{}, a.Store)
		assert.NoError(t, a.Close())
	})
}

func TestCreate_PlatformModes(t *testing.T) {
	t.Run("api", func(t *testing.T) {
		cfg := testConfig()
		cfg.Lacework.Account = "example"
		cfg.Lacework.APIKey = "EXAMPLE_KEY"
		cfg.Lacework.APISecret = "_secret"

		f := &Factory{Logger: logger.NewNop()}
		a, err := f.Create(context.Background(), cfg, testWindow)
		require.NoError(t, err)
		defer a.Close()

		client, ok := a.Platform.(*lacework.APIClient)
		require.True(t, ok)
		assert.Same(t, client, a.Inventory)
	})

	t.Run("cli", func(t *testing.T) {
		cfg := testConfig()
		cfg.Lacework.Mode = "cli"

		f := &Factory{Logger: logger.NewNop(), Inventory: fakeInventory{}}
		a, err := f.Create(context.Background(), cfg, testWindow)
		require.NoError(t, err)
		defer a.Close()
		assert.IsType(t, &lacework.CLIProvider{}, a.Platform)
	})

	t.Run("lacework inventory without credentials", func(t *testing.T) {
		cfg := testConfig()
		cfg.Lacework.Mode = "cli"

		f := &Factory{Logger: logger.NewNop()}
		_, err := f.Create(context.Background(), cfg, testWindow)
		require.Error(t, err)
		assert.True(t, errors.IsUserError(err))
	})
}

func TestCreate_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Cache.Backend = "s3" }},
		{"unknown precedence", func(c *config.Config) { c.Tags.Precedence = "always" }},
		{"unknown default tag", func(c *config.Config) {
			c.Tags.Precedence = "profile-then-defaults"
			c.Tags.OrgDefaults = map[string]string{"cost-centre": "CC1"}
		}},
		{"unknown ttl namespace", func(c *config.Config) {
			c.Cache.TTLs = map[string]time.Duration{"everything": time.Hour}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			_, err := offlineFactory().Create(context.Background(), cfg, testWindow)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

func TestApp_Run(t *testing.T) {
	platform := &fakePlatform{}
	f := &Factory{Logger: logger.NewNop(), Platform: platform, Inventory: fakeInventory{}}

	a, err := f.Create(context.Background(), testConfig(), testWindow)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Run(context.Background(), testWindow)
	require.NoError(t, err)

	require.Len(t, report.Accounts, 1)
	acct := report.Accounts[0]
	assert.Equal(t, testAccount, acct.AccountID)
	assert.Equal(t, types.AccountStatusOK, acct.Status)
	require.Len(t, acct.Resources, 1)
	assert.Equal(t, "alice", acct.Resources[0].Tags["unsw:technical-owner"])
	assert.False(t, report.PartialAccountFailure)

	_, err = a.Run(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, platform.reportCalls)
}

type countingProgress struct {
	done int
}

func (p *countingProgress) AccountDone(position, total int, result types.AccountResult) {
	p.done++
}

func TestCreate_WiresProgress(t *testing.T) {
	progress := &countingProgress{}
	f := offlineFactory()
	f.Progress = progress

	a, err := f.Create(context.Background(), testConfig(), testWindow)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background(), testWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.done)
}

func TestApp_CollectAlerts(t *testing.T) {
	a, err := offlineFactory().Create(context.Background(), testConfig(), testWindow)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.CollectAlerts(context.Background(), testWindow, testReport)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalAlerts)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, []string{testARN}, report.Alerts[0].Resources)
	assert.Equal(t, "Ensure instances are tagged", report.Alerts[0].PolicyTitle)

	f := offlineFactory()
	f.AllAlerts = true
	all, err := f.Create(context.Background(), testConfig(), testWindow)
	require.NoError(t, err)
	defer all.Close()

	report, err = all.CollectAlerts(context.Background(), testWindow, "")
	require.NoError(t, err)
	assert.Len(t, report.Alerts, 2)
}
