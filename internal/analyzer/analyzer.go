package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/inventory"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/pkg/types"
)

// InventorySource streams an account's inventory.
type InventorySource interface {
	FetchAll(ctx context.Context, accountID, resourceType string) *inventory.Stream
	Invalidate(ctx context.Context, accountID string) error
}

// Options configures an Analyzer.
type Options struct {
	Namespace            string
	NormalizeEnvironment bool
	Provider             types.Provider
	TTLs                 cache.TTLPolicy
}

// Analyzer computes and caches account tag profiles. A profile is computed
// at most once per account per run.
type Analyzer struct {
	source InventorySource
	store  cache.Store
	opts   Options
	keys   Keys
	log    logger.Logger
	now    func() time.Time

	mu   sync.Mutex
	memo map[string]*types.AccountTagProfile
}

// New creates an Analyzer.
func New(source InventorySource, store cache.Store, opts Options, log logger.Logger) *Analyzer {
	if opts.Provider == "" {
		opts.Provider = types.ProviderAWS
	}
	if opts.TTLs == nil {
		opts.TTLs = cache.TTLPolicy{}
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Analyzer{
		source: source,
		store:  store,
		opts:   opts,
		keys:   NamespacedKeys(opts.Namespace),
		log:    log.WithField("component", "analyzer"),
		now:    time.Now,
		memo:   make(map[string]*types.AccountTagProfile),
	}
}

func (a *Analyzer) key(accountID string) cache.Key {
	return cache.Key{
		Provider:  string(a.opts.Provider),
		AccountID: accountID,
		Name:      "account_" + accountID + "_tag_profile",
	}
}

// GetProfile returns the tag profile of accountID, from memory, the cache or
// a fresh computation over the account's full inventory.
func (a *Analyzer) GetProfile(ctx context.Context, accountID string) (*types.AccountTagProfile, error) {
	a.mu.Lock()
	if p, ok := a.memo[accountID]; ok {
		a.mu.Unlock()
		return p, nil
	}
	a.mu.Unlock()

	log := a.log.WithField("account", accountID)
	key := a.key(accountID)

	profile, ok := cache.GetJSON[*types.AccountTagProfile](ctx, a.store, cache.NamespaceTagProfiles, key)
	if ok && profile != nil {
		log.Debug("tag profile served from cache")
	} else {
		records, err := a.inventory(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to load inventory for account %s: %w", accountID, err)
		}

		profile = ComputeProfile(accountID, records, a.keys, a.now())
		if a.opts.NormalizeEnvironment && profile.MostCommonEnvironment != nil {
			profile.SetValue(types.TagEnvironment, NormalizeEnvironment(*profile.MostCommonEnvironment))
		}

		if err := cache.PutJSON(ctx, a.store, cache.NamespaceTagProfiles, key, profile, a.opts.TTLs.For(cache.NamespaceTagProfiles)); err != nil {
			log.Error("failed to cache tag profile", err)
		}
		log.WithFields(map[string]interface{}{
			"resources": profile.TotalResources,
			"tagged":    profile.TaggedResources,
			"coverage":  fmt.Sprintf("%.1f%%", profile.TaggingCoverage),
		}).Info("tag profile computed")
	}

	a.mu.Lock()
	a.memo[accountID] = profile
	a.mu.Unlock()
	return profile, nil
}

// inventory returns the account's valid records. A cached inventory holding
// malformed records is dropped and fetched again once.
func (a *Analyzer) inventory(ctx context.Context, accountID string) ([]types.ResourceRecord, error) {
	for attempt := 0; ; attempt++ {
		records, err := a.source.FetchAll(ctx, accountID, "").Collect()
		if err != nil {
			return nil, err
		}

		valid := make([]types.ResourceRecord, 0, len(records))
		for _, r := range records {
			if r.Validate() == nil {
				valid = append(valid, r)
			}
		}
		if len(valid) == len(records) || attempt > 0 {
			return valid, nil
		}

		a.log.WithFields(map[string]interface{}{
			"account": accountID,
			"invalid": len(records) - len(valid),
		}).Warn("inventory contains malformed records, refreshing")
		if err := a.source.Invalidate(ctx, accountID); err != nil {
			return nil, err
		}
	}
}

// Forget drops the in-run memo.
func (a *Analyzer) Forget() {
	a.mu.Lock()
	a.memo = make(map[string]*types.AccountTagProfile)
	a.mu.Unlock()
}
