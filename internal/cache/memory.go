package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	payload   []byte
	createdAt time.Time
	ttl       time.Duration
}

// MemoryStore is an in-process Store with the same expiry semantics as
// FileStore. It is used for dry runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
	now   func() time.Time
	counters
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
}

// NewMemoryStoreWithClock creates a store that reads time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	s.now = now
	return s
}

func memoryKey(ns Namespace, key Key) string {
	return string(ns) + "/" + key.String()
}

func (s *MemoryStore) Get(ctx context.Context, ns Namespace, key Key) (*Entry, bool) {
	s.mu.RLock()
	item, exists := s.items[memoryKey(ns, key)]
	s.mu.RUnlock()

	if !exists {
		s.miss()
		return nil, false
	}

	entry := &Entry{
		Namespace: ns,
		Key:       key,
		Payload:   append([]byte(nil), item.payload...),
		CreatedAt: item.createdAt,
		TTL:       item.ttl,
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		delete(s.items, memoryKey(ns, key))
		s.mu.Unlock()
		s.expired()
		return nil, false
	}

	s.hit()
	return entry, true
}

func (s *MemoryStore) Put(ctx context.Context, ns Namespace, key Key, payload []byte, ttl time.Duration) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return fmt.Errorf("cache payload for %s/%s is not valid JSON: %w", ns, key, err)
	}

	s.mu.Lock()
	s.items[memoryKey(ns, key)] = &memoryItem{
		payload:   compact.Bytes(),
		createdAt: s.now(),
		ttl:       ttl,
	}
	s.mu.Unlock()

	s.write()
	return nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, ns Namespace, key *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != nil {
		delete(s.items, memoryKey(ns, *key))
	} else {
		prefix := string(ns) + "/"
		for k := range s.items {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				delete(s.items, k)
			}
		}
	}
	s.invalidate()
	return nil
}

func (s *MemoryStore) Stats() Stats {
	return s.snapshot()
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
