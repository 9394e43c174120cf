package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, *time.Time) {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestFileStore_PutGet(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	key := Key{Provider: "aws", AccountID: "123456789012", Name: "report", Start: "2024-01-01", End: "2024-01-07"}

	require.NoError(t, store.Put(ctx, NamespaceComplianceReports, key, []byte(`{"a": 1, "html": "<b>"}`), 24*time.Hour))

	entry, ok := store.Get(ctx, NamespaceComplianceReports, key)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1,"html":"<b>"}`, string(entry.Payload))
	assert.Equal(t, 24*time.Hour, entry.TTL)

	expected := filepath.Join(store.Root(), "account-compliance-reports", "aws", "123456789012", "report_dates_2024-01-01_to_2024-01-07.json")
	_, err := os.Stat(expected)
	assert.NoError(t, err, "entry should follow the namespace/provider/account layout")

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Writes)
}

func TestFileStore_Miss(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, ok := store.Get(context.Background(), NamespaceResourceTags, Key{AccountID: "1", Name: "missing"})
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Stats().Misses)
}

func TestFileStore_TTLExpiry(t *testing.T) {
	store, now := newTestFileStore(t)
	ctx := context.Background()
	key := Key{Provider: "aws", AccountID: "123456789012", Name: "inventory"}

	require.NoError(t, store.Put(ctx, NamespaceAccountInventory, key, []byte(`[]`), 24*time.Hour))

	*now = now.Add(23 * time.Hour)
	_, ok := store.Get(ctx, NamespaceAccountInventory, key)
	assert.True(t, ok)

	*now = now.Add(2 * time.Hour)
	_, ok = store.Get(ctx, NamespaceAccountInventory, key)
	assert.False(t, ok, "entry past its TTL is a miss")
	assert.Equal(t, int64(1), store.Stats().Expired)
}

func TestFileStore_ManualOnlyNeverExpires(t *testing.T) {
	store, now := newTestFileStore(t)
	ctx := context.Background()
	key := Key{Name: "definitions"}

	require.NoError(t, store.Put(ctx, NamespaceReportDefinitions, key, []byte(`{"x":1}`), ManualOnly))
	*now = now.Add(365 * 24 * time.Hour)

	_, ok := store.Get(ctx, NamespaceReportDefinitions, key)
	assert.True(t, ok)
}

func TestFileStore_CorruptEntryIsMissAndRemoved(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated json", `{"createdAt":"2024-06-01T12:00:00Z","ttlSeconds":3600,"payload":{"a":`},
		{"checksum mismatch", `{"createdAt":"2024-06-01T12:00:00Z","ttlSeconds":3600,"checksum":"deadbeef","payload":{"a":1}}`},
		{"empty file", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestFileStore(t)
			ctx := context.Background()
			key := Key{Provider: "aws", AccountID: "123456789012", Name: "profile"}

			path := store.Path(NamespaceTagProfiles, key)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, ok := store.Get(ctx, NamespaceTagProfiles, key)
			assert.False(t, ok)
			assert.Equal(t, int64(1), store.Stats().Corrupt)

			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err), "corrupt entry should be removed")

			require.NoError(t, store.Put(ctx, NamespaceTagProfiles, key, []byte(`{"a":1}`), time.Hour))
			_, ok = store.Get(ctx, NamespaceTagProfiles, key)
			assert.True(t, ok, "a fresh write after corruption is readable")
		})
	}
}

func TestFileStore_PutRejectsInvalidJSON(t *testing.T) {
	store, _ := newTestFileStore(t)
	err := store.Put(context.Background(), NamespaceResourceTags, Key{Name: "x"}, []byte(`{not json`), time.Hour)
	assert.Error(t, err)
}

func TestFileStore_Invalidate(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	a := Key{Provider: "aws", AccountID: "111111111111", Name: "a"}
	b := Key{Provider: "aws", AccountID: "222222222222", Name: "b"}

	require.NoError(t, store.Put(ctx, NamespaceResourceTags, a, []byte(`1`), time.Hour))
	require.NoError(t, store.Put(ctx, NamespaceResourceTags, b, []byte(`2`), time.Hour))
	require.NoError(t, store.Put(ctx, NamespaceTagProfiles, a, []byte(`3`), time.Hour))

	require.NoError(t, store.Invalidate(ctx, NamespaceResourceTags, &a))
	_, ok := store.Get(ctx, NamespaceResourceTags, a)
	assert.False(t, ok)
	_, ok = store.Get(ctx, NamespaceResourceTags, b)
	assert.True(t, ok)

	require.NoError(t, store.Invalidate(ctx, NamespaceResourceTags, nil))
	_, ok = store.Get(ctx, NamespaceResourceTags, b)
	assert.False(t, ok)
	_, ok = store.Get(ctx, NamespaceTagProfiles, a)
	assert.True(t, ok, "other namespaces are untouched")

	usage, err := store.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, usage[NamespaceTagProfiles])
	assert.Equal(t, 0, usage[NamespaceResourceTags])
}

func TestFileStore_SubSecondTTLExpires(t *testing.T) {
	store, now := newTestFileStore(t)
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "short"}

	require.NoError(t, store.Put(ctx, NamespaceTagProfiles, key, []byte(`{}`), 500*time.Millisecond))

	entry, ok := store.Get(ctx, NamespaceTagProfiles, key)
	require.True(t, ok)
	assert.Equal(t, time.Second, entry.TTL)

	*now = now.Add(2 * time.Second)
	_, ok = store.Get(ctx, NamespaceTagProfiles, key)
	assert.False(t, ok)
}
