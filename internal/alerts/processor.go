// Package alerts collects the compliance alerts raised over a reporting
// window and enriches them with policy details.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// Source lists alerts and returns their details.
type Source interface {
	ListAlerts(ctx context.Context, dr types.DateRange, report string) ([]types.Alert, error)
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
}

// PolicyProvider returns policy details.
type PolicyProvider interface {
	GetPolicy(ctx context.Context, policyID string) (*types.Policy, error)
}

// Options configures a Processor.
type Options struct {
	// IncludeAll keeps alerts of every category instead of compliance only.
	IncludeAll bool
	TTLs       cache.TTLPolicy
	Now        func() time.Time
}

// Processor turns the platform's alert listing into an enriched report.
// Detail and policy lookups are cached; a failed lookup leaves the alert
// as listed.
type Processor struct {
	source   Source
	policies PolicyProvider
	store    cache.Store
	opts     Options
	log      logger.Logger
}

// New creates a Processor. policies may be nil.
func New(source Source, policies PolicyProvider, store cache.Store, opts Options, log logger.Logger) *Processor {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if opts.TTLs == nil {
		opts.TTLs = cache.TTLPolicy{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		source:   source,
		policies: policies,
		store:    store,
		opts:     opts,
		log:      log.WithField("component", "alerts"),
	}
}

// Collect lists the alerts raised inside dr, keeps the compliance ones,
// loads their details and attaches the policy description.
func (p *Processor) Collect(ctx context.Context, dr types.DateRange, report string) (*types.AlertReport, error) {
	if err := dr.Validate(); err != nil {
		return nil, err
	}

	listed, err := p.source.ListAlerts(ctx, dr, report)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	out := &types.AlertReport{
		ReportName:  report,
		DateRange:   dr,
		GeneratedAt: p.opts.Now().UTC(),
		TotalAlerts: len(listed),
		Alerts:      make([]types.Alert, 0, len(listed)),
	}
	for _, a := range listed {
		if p.opts.IncludeAll || a.IsCompliance() {
			out.Alerts = append(out.Alerts, a)
		}
	}
	p.log.WithFields(map[string]interface{}{
		"listed":     len(listed),
		"compliance": len(out.Alerts),
	}).Info("alerts listed")

	cached := 0
	for i := range out.Alerts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := &out.Alerts[i]
		detail, hit, err := p.detail(ctx, a.ID)
		if err != nil {
			p.log.WithField("alert", a.ID).Warn("alert details unavailable: " + err.Error())
			continue
		}
		if hit {
			cached++
		}
		a.Merge(*detail)
	}

	policies := p.loadPolicies(ctx, out.Alerts)
	for i := range out.Alerts {
		if pol, ok := policies[out.Alerts[i].PolicyID]; ok {
			out.Alerts[i].Enrich(pol)
		}
	}

	p.log.WithFields(map[string]interface{}{
		"alerts":   len(out.Alerts),
		"cached":   cached,
		"policies": len(policies),
	}).Debug("alerts enriched")
	return out, nil
}

func (p *Processor) detail(ctx context.Context, id string) (*types.Alert, bool, error) {
	a, hit, err := cache.Exec(ctx, p.store, cache.NamespaceAlertDetails, cache.Key{Name: "alert_" + id},
		p.opts.TTLs.For(cache.NamespaceAlertDetails),
		func(ctx context.Context) (*types.Alert, error) {
			return p.source.GetAlert(ctx, id)
		})
	if err != nil {
		return nil, false, err
	}
	if a == nil {
		return nil, false, fmt.Errorf("alert %s not found", id)
	}
	return a, hit, nil
}

// loadPolicies fetches each distinct policy once. The cache key is shared
// with the compliance run's enrichment.
func (p *Processor) loadPolicies(ctx context.Context, alerts []types.Alert) map[string]*types.Policy {
	out := make(map[string]*types.Policy)
	if p.policies == nil {
		return out
	}
	tried := make(map[string]bool)
	for _, a := range alerts {
		id := a.PolicyID
		if id == "" || tried[id] {
			continue
		}
		tried[id] = true

		pol, _, err := cache.Exec(ctx, p.store, cache.NamespacePolicyDetails, cache.Key{Name: "policy_" + id},
			p.opts.TTLs.For(cache.NamespacePolicyDetails),
			func(ctx context.Context) (*types.Policy, error) {
				return p.policies.GetPolicy(ctx, id)
			})
		if err != nil || pol == nil {
			p.log.WithField("policy", id).Warn("policy details unavailable")
			continue
		}
		out[id] = pol
	}
	return out
}
