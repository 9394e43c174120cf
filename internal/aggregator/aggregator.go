// Package aggregator runs the per-account compliance workflow and merges
// the results into one report.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/resolver"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// ComplianceProvider returns an account's evaluation against a report.
type ComplianceProvider interface {
	GetComplianceReport(ctx context.Context, accountID, reportName string, dr types.DateRange) (*types.ComplianceReport, error)
}

// AccountDirectory lists the monitored accounts.
type AccountDirectory interface {
	ListAccounts(ctx context.Context) ([]types.Account, error)
}

// PolicyProvider returns policy details.
type PolicyProvider interface {
	GetPolicy(ctx context.Context, policyID string) (*types.Policy, error)
}

// ReportDefinitionProvider lists the available compliance reports.
type ReportDefinitionProvider interface {
	ListReportDefinitions(ctx context.Context) ([]types.ReportDefinition, error)
}

// InventorySource streams an account's resources of one type.
type InventorySource interface {
	FetchAll(ctx context.Context, accountID, resourceType string) *inventory.Stream
}

// ProfileSource returns an account's tag profile.
type ProfileSource interface {
	GetProfile(ctx context.Context, accountID string) (*types.AccountTagProfile, error)
}

// Dependencies are the collaborators of an Aggregator. Directory, Policies
// and Definitions are optional.
type Dependencies struct {
	Compliance  ComplianceProvider
	Inventory   InventorySource
	Profiles    ProfileSource
	Resolver    *resolver.Resolver
	Directory   AccountDirectory
	Policies    PolicyProvider
	Definitions ReportDefinitionProvider
	Store       cache.Store
	TTLs        cache.TTLPolicy
	Provider    types.Provider
}

// Options controls one run.
type Options struct {
	ReportName      string
	DateRange       types.DateRange
	AccountFilter   []string
	IncludeDisabled bool
	SkipTags        bool
	AccountPause    time.Duration
	ValidateReport  bool
}

// Aggregator processes accounts strictly one after another.
type Aggregator struct {
	deps     Dependencies
	log      logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	progress Progress
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithSleep replaces the wait used for the inter-account pause.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Aggregator) { a.sleep = sleep }
}

// Progress observes a run as each account finishes.
type Progress interface {
	AccountDone(position, total int, result types.AccountResult)
}

// WithProgress reports every finished account to p.
func WithProgress(p Progress) Option {
	return func(a *Aggregator) { a.progress = p }
}

// WithClock replaces the clock used to stamp reports.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator.
func New(deps Dependencies, log logger.Logger, opts ...Option) (*Aggregator, error) {
	if deps.Compliance == nil {
		return nil, fmt.Errorf("compliance provider is required")
	}
	if deps.Inventory == nil || deps.Profiles == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("inventory, profile source and resolver are required")
	}
	if deps.Store == nil {
		deps.Store = cache.NewMemoryStore()
	}
	if deps.TTLs == nil {
		deps.TTLs = cache.TTLPolicy{}
	}
	if deps.Provider == "" {
		deps.Provider = types.ProviderAWS
	}
	if log == nil {
		log = logger.NewNop()
	}

	a := &Aggregator{
		deps:  deps,
		log:   log.WithField("component", "aggregator"),
		sleep: sleepContext,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Accounts returns the accounts a run should process, in directory order.
// Disabled accounts are dropped unless IncludeDisabled is set. With an
// AccountFilter only the listed accounts are kept; without a directory the
// filter itself is the account list.
func (a *Aggregator) Accounts(ctx context.Context, opts Options) ([]types.Account, error) {
	if a.deps.Directory == nil {
		if len(opts.AccountFilter) == 0 {
			return nil, errors.ConfigurationError("aggregator.accounts", "no account directory configured and no accounts given")
		}
		accounts := make([]types.Account, 0, len(opts.AccountFilter))
		for _, id := range opts.AccountFilter {
			acct := types.Account{ID: strings.TrimSpace(id), Provider: a.deps.Provider, Enabled: true}
			if err := acct.Validate(); err != nil {
				return nil, errors.ConfigurationError("aggregator.accounts", err.Error())
			}
			accounts = append(accounts, acct)
		}
		return accounts, nil
	}

	accounts, err := a.deps.Directory.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if !opts.IncludeDisabled {
		accounts = types.FilterEnabled(accounts)
	}
	if len(opts.AccountFilter) == 0 {
		return accounts, nil
	}

	wanted := make(map[string]bool, len(opts.AccountFilter))
	for _, id := range opts.AccountFilter {
		wanted[strings.TrimSpace(id)] = true
	}
	var out []types.Account
	for _, acct := range accounts {
		if wanted[acct.ID] {
			out = append(out, acct)
			delete(wanted, acct.ID)
		}
	}
	for id := range wanted {
		a.log.WithField("account", id).Warn("account not found in directory, skipping")
	}
	return out, nil
}

// Run processes accounts in order. An account that fails is recorded as
// failed and left out of the aggregates; the run carries on. Run fails
// outright only when the report name is unknown. On cancellation it returns
// the accounts finished so far, marked interrupted, with the context error.
func (a *Aggregator) Run(ctx context.Context, accounts []types.Account, opts Options) (*types.AggregateReport, error) {
	if strings.TrimSpace(opts.ReportName) == "" {
		return nil, errors.ConfigurationError("aggregator.report_name", "report name is required")
	}
	if err := opts.DateRange.Validate(); err != nil {
		return nil, errors.ConfigurationError("date range", err.Error())
	}
	var def *types.ReportDefinition
	if opts.ValidateReport {
		d, err := a.reportDefinition(ctx, opts.ReportName)
		if err != nil {
			return nil, err
		}
		def = d
	}

	report := &types.AggregateReport{
		ReportName:  opts.ReportName,
		DateRange:   opts.DateRange,
		GeneratedAt: a.now().UTC(),
		Accounts:    make([]types.AccountResult, 0, len(accounts)),
	}

	for i, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return a.interrupted(report, def, err)
		}
		if i > 0 && opts.AccountPause > 0 {
			if err := a.sleep(ctx, opts.AccountPause); err != nil {
				return a.interrupted(report, def, err)
			}
		}

		log := a.log.WithFields(map[string]interface{}{
			"account":  acct.ID,
			"position": fmt.Sprintf("%d/%d", i+1, len(accounts)),
		})
		log.Info("processing account")

		result, err := a.processAccount(ctx, acct, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.interrupted(report, def, ctxErr)
			}
			log.Error("account failed", err)
			result = types.AccountResult{
				AccountID: acct.ID,
				Alias:     acct.Alias,
				Status:    types.AccountStatusFailed,
				Error:     err.Error(),
			}
		}
		report.Accounts = append(report.Accounts, result)
		if a.progress != nil {
			a.progress.AccountDone(i+1, len(accounts), result)
		}
	}

	a.summarize(report, def)
	return report, nil
}

// interrupted summarises the accounts finished before cancellation and
// returns them alongside the cancellation error.
func (a *Aggregator) interrupted(report *types.AggregateReport, def *types.ReportDefinition, err error) (*types.AggregateReport, error) {
	report.Interrupted = true
	a.summarize(report, def)
	a.log.WithField("completed", len(report.Accounts)).Warn("run interrupted")
	return report, err
}

func (a *Aggregator) processAccount(ctx context.Context, acct types.Account, opts Options) (types.AccountResult, error) {
	result := types.AccountResult{
		AccountID: acct.ID,
		Alias:     acct.Alias,
		Status:    types.AccountStatusOK,
	}

	cr, err := a.complianceReport(ctx, acct.ID, opts)
	if err != nil {
		return result, err
	}

	result.Findings = a.enrichFindings(ctx, cr.Findings)
	for _, f := range result.Findings {
		if f.IsNonCompliant() {
			result.NonCompliantPolicies++
		}
	}

	if opts.SkipTags {
		return result, nil
	}

	arns := cr.ViolatingARNs()
	if len(arns) == 0 {
		return result, nil
	}

	resources, err := a.resolveResources(ctx, acct.ID, arns)
	if err != nil {
		return result, err
	}
	result.Resources = resources
	for _, r := range resources {
		result.Tags.Add(r.TagSource)
	}
	return result, nil
}

func (a *Aggregator) complianceReport(ctx context.Context, accountID string, opts Options) (*types.ComplianceReport, error) {
	key := cache.Key{
		Provider:  string(a.deps.Provider),
		AccountID: accountID,
		Name:      "account_" + accountID + "_report_" + opts.ReportName,
		Start:     opts.DateRange.StartString(),
		End:       opts.DateRange.EndString(),
	}
	cr, cached, err := cache.Exec(ctx, a.deps.Store, cache.NamespaceComplianceReports, key,
		a.deps.TTLs.For(cache.NamespaceComplianceReports),
		func(ctx context.Context) (*types.ComplianceReport, error) {
			return a.deps.Compliance.GetComplianceReport(ctx, accountID, opts.ReportName, opts.DateRange)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance report: %w", err)
	}
	if cr == nil {
		return nil, fmt.Errorf("compliance report for account %s is empty", accountID)
	}

	a.log.WithFields(map[string]interface{}{
		"account":  accountID,
		"findings": len(cr.Findings),
		"cached":   cached,
	}).Debug("compliance report loaded")
	return cr, nil
}

// resolveResources looks up every violating resource in the inventory, type
// by type in discovery order, and resolves its ownership tags. The account
// profile is only loaded once a resource needs it.
func (a *Aggregator) resolveResources(ctx context.Context, accountID string, arns []string) ([]types.ResourceRecord, error) {
	wanted := make(map[string]bool, len(arns))
	for _, arn := range arns {
		wanted[arn] = true
	}

	found := make(map[string]types.ResourceRecord, len(arns))
	for _, rt := range inventory.DiscoverTypes(arns) {
		stream := a.deps.Inventory.FetchAll(ctx, accountID, rt)
		for stream.Next() {
			r := stream.Record()
			if wanted[r.ARN] {
				found[r.ARN] = r
			}
		}
		if err := stream.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch %s inventory: %w", rt, err)
		}
	}

	var profile *types.AccountTagProfile
	loaded := false
	loadProfile := func() (*types.AccountTagProfile, error) {
		if loaded {
			return profile, nil
		}
		p, err := a.deps.Profiles.GetProfile(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to get tag profile: %w", err)
		}
		profile, loaded = p, true
		return profile, nil
	}

	out := make([]types.ResourceRecord, 0, len(arns))
	for _, arn := range arns {
		r, ok := found[arn]
		if ok && !a.deps.Resolver.NeedsFallback(r) {
			out = append(out, a.deps.Resolver.Resolve(r, nil))
			continue
		}

		p, err := loadProfile()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, a.deps.Resolver.Resolve(r, p))
		} else {
			out = append(out, a.deps.Resolver.ResolveMissing(arn, accountID, inventory.ResourceTypeFromARN(arn), p))
		}
	}

	a.log.WithFields(map[string]interface{}{
		"account":   accountID,
		"violating": len(arns),
		"found":     len(found),
	}).Debug("violating resources resolved")
	return out, nil
}

// enrichFindings returns copies of findings with the policy title and
// severity filled in where the report left them out. Lookup failures are
// logged and ignored.
func (a *Aggregator) enrichFindings(ctx context.Context, findings []types.ComplianceFinding) []types.ComplianceFinding {
	out := make([]types.ComplianceFinding, len(findings))
	copy(out, findings)
	if a.deps.Policies == nil {
		return out
	}

	for i := range out {
		f := &out[i]
		if f.Title != "" && f.Severity != "" {
			continue
		}
		policy, err := a.policy(ctx, f.PolicyID)
		if err != nil {
			a.log.WithField("policy", f.PolicyID).Warn("policy details unavailable: " + err.Error())
			continue
		}
		if f.Title == "" {
			f.Title = policy.Title
		}
		if f.Severity == "" {
			f.Severity = policy.Severity
		}
	}
	return out
}

func (a *Aggregator) policy(ctx context.Context, policyID string) (*types.Policy, error) {
	key := cache.Key{Name: "policy_" + policyID}
	p, _, err := cache.Exec(ctx, a.deps.Store, cache.NamespacePolicyDetails, key,
		a.deps.TTLs.For(cache.NamespacePolicyDetails),
		func(ctx context.Context) (*types.Policy, error) {
			return a.deps.Policies.GetPolicy(ctx, policyID)
		})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("policy %s not found", policyID)
	}
	return p, nil
}

// reportDefinition looks up name among the report definitions. It returns
// nil, nil when no definition source is configured.
func (a *Aggregator) reportDefinition(ctx context.Context, name string) (*types.ReportDefinition, error) {
	if a.deps.Definitions == nil {
		return nil, nil
	}
	defs, _, err := cache.Exec(ctx, a.deps.Store, cache.NamespaceReportDefinitions, cache.Key{Name: "report_definitions"},
		a.deps.TTLs.For(cache.NamespaceReportDefinitions),
		func(ctx context.Context) ([]types.ReportDefinition, error) {
			return a.deps.Definitions.ListReportDefinitions(ctx)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list report definitions: %w", err)
	}
	def, ok := types.FindReportDefinition(defs, name)
	if !ok {
		return nil, errors.ConfigurationError("aggregator.report_name", fmt.Sprintf("unknown report %q", name))
	}
	return &def, nil
}

// summarize fills the cross-account aggregates from the successful accounts.
// Policies named by def are listed even when no account reported them.
func (a *Aggregator) summarize(report *types.AggregateReport, def *types.ReportDefinition) {
	policies := make(map[string]*types.PolicySummary)
	var order []string
	summary := func(id string) *types.PolicySummary {
		s, ok := policies[id]
		if !ok {
			s = &types.PolicySummary{PolicyID: id}
			policies[id] = s
			order = append(order, id)
		}
		return s
	}
	if def != nil {
		for _, id := range def.PolicyIDs {
			summary(id)
		}
	}

	for _, acct := range report.Accounts {
		if acct.Status != types.AccountStatusOK {
			report.PartialAccountFailure = true
			continue
		}
		report.Tags.Merge(acct.Tags)
		report.TotalResources += len(acct.Resources)

		for _, f := range acct.Findings {
			summary(f.PolicyID).Add(f)
		}
	}

	for _, id := range order {
		report.Policies = append(report.Policies, *policies[id])
	}
	report.SortPolicies()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
