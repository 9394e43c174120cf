// Package inventory retrieves complete resource inventories from a
// paginated provider, repairing truncated result sets.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/yairfalse/lwcomply/internal/cache"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/pkg/types"
)

const (
	DefaultPageSize = 5000
	DefaultMaxPages = 1000
	defaultCloud    = "AWS"
)

// Options configures a Fetcher.
type Options struct {
	PageSize int
	MaxPages int
	Provider types.Provider
	Window   types.DateRange
	TTLs     cache.TTLPolicy
}

// phase1 is the memoised outcome of the broad per-type query.
type phase1 struct {
	state     types.TruncationState
	byAccount map[string][]types.ResourceRecord
}

// Fetcher returns complete, de-duplicated inventories per account. For a
// given resource type it first issues one broad query across all accounts;
// only when that result is truncated does it page the account-scoped query.
type Fetcher struct {
	provider Provider
	store    cache.Store
	opts     Options
	log      logger.Logger

	mu     sync.Mutex
	phase1 map[string]*phase1
	calls  int
}

// NewFetcher creates a Fetcher.
func NewFetcher(provider Provider, store cache.Store, opts Options, log logger.Logger) *Fetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Provider == "" {
		opts.Provider = types.ProviderAWS
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	if opts.TTLs == nil {
		opts.TTLs = cache.TTLPolicy{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Fetcher{
		provider: provider,
		store:    store,
		opts:     opts,
		log:      log.WithField("component", "inventory"),
		phase1:   make(map[string]*phase1),
	}
}

// Calls returns the number of provider searches issued so far.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Truncation returns the phase-one state of resourceType, if it has run.
func (f *Fetcher) Truncation(resourceType string) (types.TruncationState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.phase1[resourceType]
	if !ok {
		return types.TruncationState{}, false
	}
	return p.state, true
}

// Reset forgets the per-run phase-one results.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.phase1 = make(map[string]*phase1)
	f.mu.Unlock()
}

// Invalidate drops the cached full inventory of accountID.
func (f *Fetcher) Invalidate(ctx context.Context, accountID string) error {
	key := f.inventoryKey(accountID)
	return f.store.Invalidate(ctx, cache.NamespaceAccountInventory, &key)
}

// FetchAll streams every resource of resourceType in accountID. An empty
// resourceType streams the account's full inventory.
func (f *Fetcher) FetchAll(ctx context.Context, accountID, resourceType string) *Stream {
	if accountID == "" {
		return errStream(fmt.Errorf("account ID is required"))
	}
	if resourceType == "" {
		return f.fetchAccountInventory(ctx, accountID)
	}
	return f.fetchByType(ctx, accountID, resourceType)
}

// Prefetch runs the broad phase-one query for each type so later FetchAll
// calls are served from memory or cache.
func (f *Fetcher) Prefetch(ctx context.Context, resourceTypes []string) error {
	for _, rt := range resourceTypes {
		if _, err := f.runPhase1(ctx, rt); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) inventoryKey(accountID string) cache.Key {
	return cache.Key{
		Provider:  string(f.opts.Provider),
		AccountID: accountID,
		Name:      "account_" + accountID + "_inventory",
		Start:     windowStart(f.opts.Window),
		End:       windowEnd(f.opts.Window),
	}
}

func (f *Fetcher) typeKey(accountID, resourceType string) cache.Key {
	return cache.Key{
		Provider:  string(f.opts.Provider),
		AccountID: accountID,
		Name:      "account_" + accountID + "_type_" + resourceType,
		Start:     windowStart(f.opts.Window),
		End:       windowEnd(f.opts.Window),
	}
}

func (f *Fetcher) fetchAccountInventory(ctx context.Context, accountID string) *Stream {
	key := f.inventoryKey(accountID)
	if records, ok := cache.GetJSON[[]types.ResourceRecord](ctx, f.store, cache.NamespaceAccountInventory, key); ok {
		f.log.WithField("account", accountID).Debug("account inventory served from cache")
		return sliceStream(ctx, records)
	}

	pager := f.newPager(accountID, "", nil)
	return newStream(ctx, pager.pull, func(all []types.ResourceRecord) {
		f.save(ctx, cache.NamespaceAccountInventory, key, all)
	})
}

func (f *Fetcher) fetchByType(ctx context.Context, accountID, resourceType string) *Stream {
	key := f.typeKey(accountID, resourceType)
	if records, ok := cache.GetJSON[[]types.ResourceRecord](ctx, f.store, cache.NamespaceResourceTags, key); ok {
		f.log.WithFields(map[string]interface{}{
			"account": accountID,
			"type":    resourceType,
		}).Debug("resources served from cache")
		return sliceStream(ctx, records)
	}

	p1, err := f.runPhase1(ctx, resourceType)
	if err != nil {
		return errStream(err)
	}

	known := p1.byAccount[accountID]
	if !p1.state.IsTruncated {
		return sliceStream(ctx, known)
	}

	f.log.WithFields(map[string]interface{}{
		"account":  accountID,
		"type":     resourceType,
		"returned": p1.state.RequestedRows,
		"total":    p1.state.TotalRows,
	}).Info("broad query truncated, paging account-scoped query")

	pager := f.newPager(accountID, resourceType, known)
	return newStream(ctx, pager.pull, func(all []types.ResourceRecord) {
		f.save(ctx, cache.NamespaceResourceTags, key, all)
	})
}

// runPhase1 issues the broad query for resourceType once per run.
func (f *Fetcher) runPhase1(ctx context.Context, resourceType string) (*phase1, error) {
	f.mu.Lock()
	if p, ok := f.phase1[resourceType]; ok {
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	resp, err := f.search(ctx, SearchRequest{
		Cloud:        defaultCloud,
		ResourceType: resourceType,
		PageSize:     f.opts.PageSize,
		Window:       f.opts.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("broad inventory query for %s: %w", resourceType, err)
	}

	total := resp.Paging.TotalRows
	if total < len(resp.Records) {
		total = len(resp.Records)
	}
	p := &phase1{
		state:     types.NewTruncationState(resourceType, len(resp.Records), total),
		byAccount: groupByAccount(resp.Records),
	}

	f.mu.Lock()
	f.phase1[resourceType] = p
	f.mu.Unlock()

	if p.state.IsTruncated {
		f.log.WithFields(map[string]interface{}{
			"type":     resourceType,
			"returned": p.state.RequestedRows,
			"total":    p.state.TotalRows,
		}).Debug("broad inventory query truncated")
		return p, nil
	}

	for accountID, records := range p.byAccount {
		f.save(ctx, cache.NamespaceResourceTags, f.typeKey(accountID, resourceType), records)
	}
	return p, nil
}

func (f *Fetcher) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.provider.Search(ctx, req)
}

func (f *Fetcher) save(ctx context.Context, ns cache.Namespace, key cache.Key, records []types.ResourceRecord) {
	if records == nil {
		records = []types.ResourceRecord{}
	}
	if err := cache.PutJSON(ctx, f.store, ns, key, records, f.opts.TTLs.For(ns)); err != nil {
		f.log.WithField("key", key.String()).Error("failed to cache inventory", err)
	}
}

// pager walks the account-scoped query page by page. known holds rows
// already obtained from the broad query; they are merged after paging.
type pager struct {
	f            *Fetcher
	accountID    string
	resourceType string
	known        []types.ResourceRecord

	seen       map[string]bool
	cursor     types.PageCursor
	cumulative int
	total      int
	pages      int
	finished   bool
}

func (f *Fetcher) newPager(accountID, resourceType string, known []types.ResourceRecord) *pager {
	return &pager{
		f:            f,
		accountID:    accountID,
		resourceType: resourceType,
		known:        known,
		seen:         make(map[string]bool),
	}
}

// pull fetches one page. A short page ends the walk unless the provider
// returned a continuation token; providers that page natively may return
// short pages mid-stream.
func (p *pager) pull(ctx context.Context) ([]types.ResourceRecord, bool, error) {
	if p.finished {
		return p.remainder(), false, nil
	}

	resp, err := p.f.search(ctx, SearchRequest{
		Cloud:        defaultCloud,
		ResourceType: p.resourceType,
		AccountID:    p.accountID,
		PageSize:     p.f.opts.PageSize,
		Cursor:       p.cursor,
		Window:       p.f.opts.Window,
	})
	if err != nil {
		return nil, false, fmt.Errorf("inventory page %d for account %s: %w", p.pages+1, p.accountID, err)
	}
	p.pages++
	p.cumulative += len(resp.Records)
	if resp.Paging.TotalRows > p.total {
		p.total = resp.Paging.TotalRows
	}

	batch := make([]types.ResourceRecord, 0, len(resp.Records))
	for _, r := range resp.Records {
		if r.ARN == "" || p.seen[r.ARN] {
			continue
		}
		p.seen[r.ARN] = true
		batch = append(batch, r)
	}

	log := p.f.log.WithFields(map[string]interface{}{
		"account": p.accountID,
		"type":    p.resourceType,
		"page":    p.pages,
		"rows":    len(resp.Records),
	})

	hasNext := resp.Paging.NextCursor != nil && !resp.Paging.NextCursor.IsZero()

	switch {
	case !hasNext && len(resp.Records) < p.f.opts.PageSize:
		p.finished = true
	case resp.Paging.TotalRows > 0 && p.cumulative >= resp.Paging.TotalRows:
		p.finished = true
	case len(resp.Records) > 0 && len(batch) == 0:
		if p.total > len(p.seen) {
			return nil, false, errors.IncompleteInventory(p.accountID, len(p.seen), p.total)
		}
		log.Warn("page returned no new resources, stopping")
		p.finished = true
	case p.pages >= p.f.opts.MaxPages:
		log.Warn("page limit reached, inventory may be incomplete")
		p.finished = true
	default:
		p.cursor = nextCursor(resp)
	}

	log.Debug("inventory page fetched")

	if p.finished {
		return append(batch, p.remainder()...), false, nil
	}
	return batch, true, nil
}

// remainder returns the broad-query rows the paging did not already yield.
func (p *pager) remainder() []types.ResourceRecord {
	var out []types.ResourceRecord
	for _, r := range p.known {
		if r.ARN == "" || p.seen[r.ARN] {
			continue
		}
		p.seen[r.ARN] = true
		out = append(out, r)
	}
	p.known = nil
	return out
}

// nextCursor prefers a provider token and otherwise keys on the last
// record's (startTime, ARN).
func nextCursor(resp *SearchResponse) types.PageCursor {
	if resp.Paging.NextCursor != nil && !resp.Paging.NextCursor.IsZero() {
		return *resp.Paging.NextCursor
	}
	last := resp.Records[len(resp.Records)-1]
	return types.PageCursor{StartTime: last.StartTime, AfterID: last.ARN}
}

func groupByAccount(records []types.ResourceRecord) map[string][]types.ResourceRecord {
	out := make(map[string][]types.ResourceRecord)
	seen := make(map[string]bool)
	for _, r := range records {
		if r.ARN == "" || seen[r.ARN] {
			continue
		}
		seen[r.ARN] = true
		accountID := r.AccountID
		if accountID == "" {
			if parsed, err := ParseARN(r.ARN); err == nil {
				accountID = parsed.AccountID
			}
		}
		out[accountID] = append(out[accountID], r)
	}
	return out
}

func windowStart(w types.DateRange) string {
	if w.IsZero() {
		return ""
	}
	return w.StartString()
}

func windowEnd(w types.DateRange) string {
	if w.IsZero() {
		return ""
	}
	return w.EndString()
}
