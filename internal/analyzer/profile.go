// Package analyzer derives account-level ownership defaults from the tags
// carried by an account's resources.
package analyzer

import (
	"sort"
	"strings"
	"time"

	"github.com/yairfalse/lwcomply/pkg/types"
)

// maxDistribution caps the per-field value distributions kept on a profile.
const maxDistribution = 10

// Keys maps each ownership field to the tag key it is read from.
type Keys map[types.TagField]string

// NamespacedKeys returns the keys for the ownership fields under ns,
// e.g. "unsw:technical-owner".
func NamespacedKeys(ns string) Keys {
	keys := make(Keys, len(types.OwnershipFields))
	for _, f := range types.OwnershipFields {
		keys[f] = f.Key(ns)
	}
	return keys
}

// tally counts values in first-seen order.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(v string) {
	if _, ok := t.counts[v]; !ok {
		t.order = append(t.order, v)
	}
	t.counts[v]++
}

func (t *tally) total() int {
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// mode returns the most frequent value; ties go to the value seen first.
func (t *tally) mode() (string, bool) {
	best, bestCount := "", 0
	for _, v := range t.order {
		if c := t.counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, bestCount > 0
}

func (t *tally) top(n int) []types.ValueCount {
	out := make([]types.ValueCount, 0, len(t.order))
	for _, v := range t.order {
		out = append(out, types.ValueCount{Value: v, Count: t.counts[v]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ComputeProfile returns the ownership profile of accountID. For each field
// the profile holds the most frequent non-empty value among the records
// carrying that tag, ties broken by first-seen order. Fields no record
// carries are left unset.
func ComputeProfile(accountID string, records []types.ResourceRecord, keys Keys, now time.Time) *types.AccountTagProfile {
	profile := &types.AccountTagProfile{
		AccountID:      accountID,
		TotalResources: len(records),
		ComputedAt:     now.UTC(),
	}

	tallies := make(map[types.TagField]*tally, len(types.OwnershipFields))
	for _, f := range types.OwnershipFields {
		tallies[f] = newTally()
	}

	for i := range records {
		r := &records[i]
		if !r.HasTags() {
			continue
		}
		profile.TaggedResources++
		for _, f := range types.OwnershipFields {
			if v, ok := r.GetTag(keys[f]); ok {
				tallies[f].add(strings.TrimSpace(v))
			}
		}
	}

	if profile.TotalResources > 0 {
		profile.TaggingCoverage = float64(profile.TaggedResources) / float64(profile.TotalResources) * 100
	}

	for _, f := range types.OwnershipFields {
		t := tallies[f]
		if v, ok := t.mode(); ok {
			profile.SetValue(f, v)
		}
		if t.total() > 0 {
			if profile.Distributions == nil {
				profile.Distributions = make(map[types.TagField][]types.ValueCount)
			}
			profile.Distributions[f] = t.top(maxDistribution)
		}
	}
	return profile
}

var environmentAliases = map[string]string{
	"prod":        "prod",
	"production":  "prod",
	"dev":         "dev",
	"development": "dev",
	"test":        "test",
	"testing":     "test",
	"uat":         "uat",
	"staging":     "staging",
	"sandbox":     "sandbox",
}

// NormalizeEnvironment maps common environment spellings to their short
// form. Unknown values are returned unchanged.
func NormalizeEnvironment(v string) string {
	if n, ok := environmentAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
		return n
	}
	return v
}
