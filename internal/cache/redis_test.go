package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, RedisOptions{Prefix: "test", LockWait: 200 * time.Millisecond}, nil)
	return store, mr
}

func TestRedisStore_PutGet(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{Provider: "aws", AccountID: "123456789012", Name: "report", Start: "2024-01-01", End: "2024-01-07"}

	require.NoError(t, store.Put(ctx, NamespaceComplianceReports, key, []byte(`{"a": 1}`), 24*time.Hour))

	entry, ok := store.Get(ctx, NamespaceComplianceReports, key)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(entry.Payload))

	redisKey := "test:account-compliance-reports:aws:123456789012:report_dates_2024-01-01_to_2024-01-07"
	assert.True(t, mr.Exists(redisKey))
	assert.Equal(t, 24*time.Hour, mr.TTL(redisKey))
	assert.False(t, mr.Exists(redisKey+":lock"), "lock released after write")
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "profile"}

	require.NoError(t, store.Put(ctx, NamespaceTagProfiles, key, []byte(`{}`), time.Hour))
	mr.FastForward(2 * time.Hour)

	_, ok := store.Get(ctx, NamespaceTagProfiles, key)
	assert.False(t, ok)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "inventory"}

	k := store.entryKey(NamespaceAccountInventory, key)
	require.NoError(t, mr.Set(k, "not msgpack"))

	_, ok := store.Get(ctx, NamespaceAccountInventory, key)
	assert.False(t, ok)
	assert.False(t, mr.Exists(k), "corrupt entry removed")
	assert.Equal(t, int64(1), store.Stats().Corrupt)
}

func TestRedisStore_LockContention(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "tags"}

	k := store.entryKey(NamespaceResourceTags, key)
	require.NoError(t, mr.Set(k+":lock", "someone-else"))

	err := store.Put(ctx, NamespaceResourceTags, key, []byte(`[]`), time.Hour)
	assert.ErrorIs(t, err, ErrLockTimeout)

	mr.Del(k + ":lock")
	assert.NoError(t, store.Put(ctx, NamespaceResourceTags, key, []byte(`[]`), time.Hour))
}

func TestRedisStore_InvalidateNamespace(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for _, id := range []string{"111111111111", "222222222222"} {
		require.NoError(t, store.Put(ctx, NamespaceResourceTags, Key{AccountID: id, Name: "x"}, []byte(`1`), time.Hour))
	}
	require.NoError(t, store.Put(ctx, NamespacePolicyDetails, Key{Name: "p"}, []byte(`1`), ManualOnly))

	require.NoError(t, store.Invalidate(ctx, NamespaceResourceTags, nil))

	_, ok := store.Get(ctx, NamespaceResourceTags, Key{AccountID: "111111111111", Name: "x"})
	assert.False(t, ok)
	_, ok = store.Get(ctx, NamespacePolicyDetails, Key{Name: "p"})
	assert.True(t, ok)
}

func TestRedisStore_SubSecondTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "short"}

	require.NoError(t, store.Put(ctx, NamespaceTagProfiles, key, []byte(`{}`), 500*time.Millisecond))

	entry, ok := store.Get(ctx, NamespaceTagProfiles, key)
	require.True(t, ok)
	assert.Equal(t, time.Second, entry.TTL)

	mr.FastForward(2 * time.Second)
	_, ok = store.Get(ctx, NamespaceTagProfiles, key)
	assert.False(t, ok)
}
