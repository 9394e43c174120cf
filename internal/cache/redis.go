package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/yairfalse/lwcomply/internal/logger"
)

// ErrLockTimeout is returned when the write lock for a key could not be
// acquired in time.
var ErrLockTimeout = fmt.Errorf("timed out waiting for cache write lock")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisEnvelope struct {
	CreatedAt  int64  `msgpack:"c"`
	TTLSeconds int64  `msgpack:"t"`
	Checksum   uint64 `msgpack:"s"`
	Payload    []byte `msgpack:"p"`
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Prefix       string
	LockTTL      time.Duration
	LockWait     time.Duration
	QueryTimeout time.Duration
}

// RedisStore shares cache entries between runners. Writes take a
// per-key lock so that concurrent runners never interleave a write.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
	log    logger.Logger
	now    func() time.Time
	tokens uint64
	counters
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a Store backed by client. The caller owns the
// client lifecycle.
func NewRedisStore(client *redis.Client, opts RedisOptions, log logger.Logger) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = "lwcomply"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisStore{
		client: client,
		opts:   opts,
		log:    log.WithField("component", "cache"),
		now:    time.Now,
	}
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.opts.QueryTimeout)
}

func (s *RedisStore) entryKey(ns Namespace, key Key) string {
	provider, account := key.Segments()
	return s.opts.Prefix + ":" + string(ns) + ":" + provider + ":" + account + ":" + key.FileName()
}

func (s *RedisStore) Get(ctx context.Context, ns Namespace, key Key) (*Entry, bool) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	k := s.entryKey(ns, key)
	data, err := s.client.Get(qctx, k).Bytes()
	if err == redis.Nil {
		s.miss()
		return nil, false
	}
	if err != nil {
		s.log.WithField("key", k).Error("cache read failed", err)
		s.miss()
		return nil, false
	}

	var env redisEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil || xxhash.Sum64(env.Payload) != env.Checksum {
		s.corrupt()
		s.log.WithField("key", k).Warn("discarding corrupt cache entry")
		s.client.Del(qctx, k)
		return nil, false
	}

	entry := &Entry{
		Namespace: ns,
		Key:       key,
		Payload:   env.Payload,
		CreatedAt: time.Unix(0, env.CreatedAt).UTC(),
		TTL:       time.Duration(env.TTLSeconds) * time.Second,
	}
	if entry.Expired(s.now()) {
		s.expired()
		return nil, false
	}

	s.hit()
	return entry, true
}

func (s *RedisStore) Put(ctx context.Context, ns Namespace, key Key, payload []byte, ttl time.Duration) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return fmt.Errorf("cache payload for %s/%s is not valid JSON: %w", ns, key, err)
	}

	data, err := msgpack.Marshal(&redisEnvelope{
		CreatedAt:  s.now().UnixNano(),
		TTLSeconds: ttlSeconds(ttl),
		Checksum:   xxhash.Sum64(compact.Bytes()),
		Payload:    compact.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	k := s.entryKey(ns, key)
	unlock, err := s.lock(ctx, k)
	if err != nil {
		return err
	}
	defer unlock()

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if err := s.client.Set(qctx, k, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", k, err)
	}

	s.write()
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, ns Namespace, key *Key) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if key != nil {
		if err := s.client.Del(qctx, s.entryKey(ns, *key)).Err(); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", ns, err)
		}
		s.invalidate()
		return nil
	}

	match := s.opts.Prefix + ":" + string(ns) + ":*"
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(qctx, cursor, match, 500).Result()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", ns, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(qctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate %s: %w", ns, err)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	s.invalidate()
	return nil
}

func (s *RedisStore) Stats() Stats {
	return s.snapshot()
}

// lock acquires the exclusive write lock for k, polling until LockWait
// elapses or ctx is done.
func (s *RedisStore) lock(ctx context.Context, k string) (func(), error) {
	lockKey := k + ":lock"
	token := fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), atomic.AddUint64(&s.tokens, 1))
	deadline := time.Now().Add(s.opts.LockWait)

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.opts.LockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire cache lock: %w", err)
		}
		if ok {
			return func() {
				if err := unlockScript.Run(context.Background(), s.client, []string{lockKey}, token).Err(); err != nil {
					s.log.WithField("key", lockKey).Error("failed to release cache lock", err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
