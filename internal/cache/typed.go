package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON reads and decodes an entry. A payload that does not decode into T
// is invalidated and reported as a miss.
func GetJSON[T any](ctx context.Context, s Store, ns Namespace, key Key) (T, bool) {
	var zero T
	entry, ok := s.Get(ctx, ns, key)
	if !ok {
		return zero, false
	}

	var v T
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		_ = s.Invalidate(ctx, ns, &key)
		return zero, false
	}
	return v, true
}

// PutJSON encodes v and stores it.
func PutJSON(ctx context.Context, s Store, ns Namespace, key Key, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", ns, err)
	}
	return s.Put(ctx, ns, key, payload, ttl)
}

// Exec returns the cached value for key, or calls fetch and caches its
// result. The boolean reports whether the value came from the cache. A
// failed cache write does not fail the call.
func Exec[T any](ctx context.Context, s Store, ns Namespace, key Key, ttl time.Duration, fetch func(context.Context) (T, error)) (T, bool, error) {
	if v, ok := GetJSON[T](ctx, s, ns, key); ok {
		return v, true, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	_ = PutJSON(ctx, s, ns, key, v, ttl)
	return v, false, nil
}
