package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestExec_CacheAside(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{AccountID: "123456789012", Name: "sample"}

	calls := 0
	fetch := func(context.Context) (sample, error) {
		calls++
		return sample{Name: "a", Count: 2}, nil
	}

	v, cached, err := Exec(ctx, store, NamespaceTagProfiles, key, time.Hour, fetch)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, sample{Name: "a", Count: 2}, v)

	v, cached, err = Exec(ctx, store, NamespaceTagProfiles, key, time.Hour, fetch)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 2, v.Count)
	assert.Equal(t, 1, calls)
}

func TestExec_FetchErrorIsNotCached(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")

	_, _, err := Exec(context.Background(), store, NamespaceTagProfiles, Key{Name: "x"}, time.Hour, func(context.Context) (sample, error) {
		return sample{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestGetJSON_UndecodablePayloadIsMiss(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{Name: "x"}

	require.NoError(t, store.Put(ctx, NamespaceTagProfiles, key, []byte(`"a string"`), time.Hour))

	_, ok := GetJSON[sample](ctx, store, NamespaceTagProfiles, key)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len(), "undecodable entry is invalidated")
}
