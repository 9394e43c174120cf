package cache

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Namespace groups cache entries that share a TTL policy.
type Namespace string

const (
	NamespaceReportDefinitions Namespace = "report-definitions"
	NamespacePolicyDetails     Namespace = "policy-details"
	NamespaceAccountInventory  Namespace = "account-inventory"
	NamespaceComplianceReports Namespace = "account-compliance-reports"
	NamespaceResourceTags      Namespace = "resource-tags"
	NamespaceTagProfiles       Namespace = "account-tag-profiles"
	NamespaceAlertDetails      Namespace = "alert-details"
)

// ManualOnly marks entries that never expire by time.
const ManualOnly time.Duration = 0

// Namespaces lists every namespace in a stable order.
var Namespaces = []Namespace{
	NamespaceReportDefinitions,
	NamespacePolicyDetails,
	NamespaceAccountInventory,
	NamespaceComplianceReports,
	NamespaceResourceTags,
	NamespaceTagProfiles,
	NamespaceAlertDetails,
}

// DefaultTTLs is the retention policy per namespace.
var DefaultTTLs = map[Namespace]time.Duration{
	NamespaceReportDefinitions: ManualOnly,
	NamespacePolicyDetails:     ManualOnly,
	NamespaceAccountInventory:  24 * time.Hour,
	NamespaceComplianceReports: 24 * time.Hour,
	NamespaceResourceTags:      7 * 24 * time.Hour,
	NamespaceTagProfiles:       24 * time.Hour,
	NamespaceAlertDetails:      24 * time.Hour,
}

// TTLPolicy resolves the TTL of a namespace.
type TTLPolicy map[Namespace]time.Duration

// NewTTLPolicy returns the default policy with overrides applied. Unknown
// namespaces are rejected.
func NewTTLPolicy(overrides map[string]time.Duration) (TTLPolicy, error) {
	p := make(TTLPolicy, len(DefaultTTLs))
	for ns, ttl := range DefaultTTLs {
		p[ns] = ttl
	}
	for name, ttl := range overrides {
		ns := Namespace(name)
		if _, ok := DefaultTTLs[ns]; !ok {
			return nil, fmt.Errorf("unknown cache namespace %q", name)
		}
		p[ns] = ttl
	}
	return p, nil
}

// For returns the TTL configured for ns.
func (p TTLPolicy) For(ns Namespace) time.Duration {
	if ttl, ok := p[ns]; ok {
		return ttl
	}
	return DefaultTTLs[ns]
}

// Key addresses one entry within a namespace.
type Key struct {
	Provider  string
	AccountID string
	Name      string
	Start     string
	End       string
}

const (
	globalSegment = "_global"
	maxNameLength = 180
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._=-]+`)

// FileName returns the deterministic, filesystem-safe entry name. Names
// that would be too long are shortened with a content hash.
func (k Key) FileName() string {
	name := strings.ReplaceAll(k.Name, ":", "-")
	name = unsafeChars.ReplaceAllString(name, "_")
	if k.Start != "" || k.End != "" {
		name += "_dates_" + k.Start + "_to_" + k.End
	}
	if len(name) > maxNameLength {
		name = fmt.Sprintf("%s_%016x", name[:maxNameLength-17], xxhash.Sum64String(name))
	}
	return name
}

// Segments returns the provider and account path components.
func (k Key) Segments() (string, string) {
	provider, account := k.Provider, k.AccountID
	if provider == "" {
		provider = globalSegment
	}
	if account == "" {
		account = globalSegment
	}
	return provider, account
}

func (k Key) String() string {
	provider, account := k.Segments()
	return provider + "/" + account + "/" + k.FileName()
}

// Entry is a cached payload with its retention metadata.
type Entry struct {
	Namespace Namespace
	Key       Key
	Payload   []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt returns the expiry time, or the zero time for manual entries.
func (e *Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether a read at now must be treated as a miss.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// ttlSeconds encodes ttl for an envelope. It rounds up so a sub-second TTL
// still expires instead of turning into a manual-only entry.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Second - 1) / time.Second)
}

// Store persists namespaced, TTL-scoped payloads. Missing, expired and
// corrupt entries are all reported as a miss.
type Store interface {
	// Get returns the entry, or false on a miss.
	Get(ctx context.Context, ns Namespace, key Key) (*Entry, bool)

	// Put stores payload, which must be valid JSON, under key.
	Put(ctx context.Context, ns Namespace, key Key, payload []byte, ttl time.Duration) error

	// Invalidate removes one entry, or the whole namespace when key is nil.
	Invalidate(ctx context.Context, ns Namespace, key *Key) error

	// Stats returns hit/miss counters.
	Stats() Stats
}

// Stats provides cache performance metrics
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Writes        int64   `json:"writes"`
	Expired       int64   `json:"expired"`
	Corrupt       int64   `json:"corrupt"`
	Invalidations int64   `json:"invalidations"`
	HitRatio      float64 `json:"hit_ratio"`
}

type counters struct {
	mu    sync.Mutex
	stats Stats
}

func (c *counters) hit() { c.add(func(s *Stats) { s.Hits++ }) }
func (c *counters) miss() { c.add(func(s *Stats) { s.Misses++ }) }
func (c *counters) write() { c.add(func(s *Stats) { s.Writes++ }) }
func (c *counters) expired() { c.add(func(s *Stats) { s.Expired++; s.Misses++ }) }
func (c *counters) corrupt() { c.add(func(s *Stats) { s.Corrupt++; s.Misses++ }) }
func (c *counters) invalidate() { c.add(func(s *Stats) { s.Invalidations++ }) }

func (c *counters) add(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}
