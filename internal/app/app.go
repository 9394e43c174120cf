// Package app builds the compliance pipeline from configuration.
package app

import (
	"context"
	stderrors "errors"

	"github.com/yairfalse/lwcomply/internal/aggregator"
	"github.com/yairfalse/lwcomply/internal/alerts"
	"github.com/yairfalse/lwcomply/internal/analyzer"
	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/resolver"
	"github.com/yairfalse/lwcomply/pkg/config"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// Platform is everything the pipeline asks of the security platform.
type Platform interface {
	aggregator.ComplianceProvider
	aggregator.AccountDirectory
	aggregator.PolicyProvider
	aggregator.ReportDefinitionProvider
	alerts.Source
}

// App holds the wired components of one run.
type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Store      cache.Store
	TTLs       cache.TTLPolicy
	Platform   Platform
	Inventory  inventory.Provider
	Fetcher    *inventory.Fetcher
	Analyzer   *analyzer.Analyzer
	Resolver   *resolver.Resolver
	Aggregator *aggregator.Aggregator
	Alerts     *alerts.Processor

	closers []func() error
}

// RunOptions returns the aggregator options configured for window.
func (a *App) RunOptions(window types.DateRange) aggregator.Options {
	return aggregator.Options{
		ReportName:      a.Config.Aggregator.ReportName,
		DateRange:       window,
		AccountFilter:   a.Config.Aggregator.Accounts,
		IncludeDisabled: a.Config.Aggregator.IncludeDisabled,
		SkipTags:        a.Config.Aggregator.SkipTags,
		AccountPause:    a.Config.Aggregator.AccountPause,
		ValidateReport:  a.Config.Aggregator.ValidateReport,
	}
}

// Run lists the accounts and runs the aggregation over window.
func (a *App) Run(ctx context.Context, window types.DateRange) (*types.AggregateReport, error) {
	opts := a.RunOptions(window)
	accounts, err := a.Aggregator.Accounts(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.Logger.WithFields(map[string]interface{}{
		"accounts": len(accounts),
		"report":   opts.ReportName,
		"window":   window.String(),
	}).Info("starting compliance run")
	return a.Aggregator.Run(ctx, accounts, opts)
}

// CollectAlerts gathers the compliance alerts raised over window, scoped
// to report when the platform supports it.
func (a *App) CollectAlerts(ctx context.Context, window types.DateRange, report string) (*types.AlertReport, error) {
	a.Logger.WithFields(map[string]interface{}{
		"report": report,
		"window": window.String(),
	}).Info("collecting alerts")
	return a.Alerts.Collect(ctx, window, report)
}

// Close releases connections held by the components.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
