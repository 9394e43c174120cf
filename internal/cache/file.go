package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/logger"
	"github.com/yairfalse/lwcomply/internal/storage"
)

// envelope is the on-disk format of a cache entry.
type envelope struct {
	CreatedAt  time.Time       `json:"createdAt"`
	TTLSeconds int64           `json:"ttlSeconds"`
	Checksum   string          `json:"checksum"`
	Payload    json.RawMessage `json:"payload"`
}

// FileStore keeps entries as JSON files under
// <root>/<namespace>/<provider>/<accountId>/<key>.json.
type FileStore struct {
	root   string
	writer *storage.AtomicWriter
	log    logger.Logger
	now    func() time.Time
	counters
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FileStore{
		root:   dir,
		writer: storage.NewAtomicWriter(),
		log:    log.WithField("component", "cache"),
		now:    time.Now,
	}, nil
}

// Root returns the cache directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file that holds key.
func (s *FileStore) Path(ns Namespace, key Key) string {
	provider, account := key.Segments()
	return filepath.Join(s.root, string(ns), provider, account, key.FileName()+".json")
}

func (s *FileStore) Get(ctx context.Context, ns Namespace, key Key) (*Entry, bool) {
	path := s.Path(ns, key)

	data, err := s.writer.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.miss()
			return nil, false
		}
		s.discard(path, err)
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.discard(path, err)
		return nil, false
	}
	if len(env.Payload) == 0 || checksum(env.Payload) != env.Checksum {
		s.discard(path, fmt.Errorf("checksum mismatch"))
		return nil, false
	}

	entry := &Entry{
		Namespace: ns,
		Key:       key,
		Payload:   []byte(env.Payload),
		CreatedAt: env.CreatedAt,
		TTL:       time.Duration(env.TTLSeconds) * time.Second,
	}
	if entry.Expired(s.now()) {
		s.expired()
		return nil, false
	}

	s.hit()
	return entry, true
}

func (s *FileStore) Put(ctx context.Context, ns Namespace, key Key, payload []byte, ttl time.Duration) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return fmt.Errorf("cache payload for %s/%s is not valid JSON: %w", ns, key, err)
	}

	env := envelope{
		CreatedAt:  s.now().UTC(),
		TTLSeconds: ttlSeconds(ttl),
		Checksum:   checksum(compact.Bytes()),
		Payload:    json.RawMessage(compact.Bytes()),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	path := s.Path(ns, key)
	if err := s.writer.WriteFile(path, buf.Bytes(), 0644); err != nil {
		s.log.WithField("path", path).Error("cache write failed", err)
		return fmt.Errorf("failed to write cache entry %s: %w", path, err)
	}

	s.write()
	return nil
}

func (s *FileStore) Invalidate(ctx context.Context, ns Namespace, key *Key) error {
	var err error
	if key == nil {
		err = s.writer.RemoveAll(filepath.Join(s.root, string(ns)))
	} else {
		err = s.writer.Remove(s.Path(ns, *key))
	}
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", ns, err)
	}
	s.invalidate()
	return nil
}

func (s *FileStore) Stats() Stats {
	return s.snapshot()
}

// Usage counts the entry files per namespace.
func (s *FileStore) Usage() (map[Namespace]int, error) {
	usage := make(map[Namespace]int, len(Namespaces))
	for _, ns := range Namespaces {
		dir := filepath.Join(s.root, string(ns))
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return filepath.SkipDir
				}
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".json") {
				usage[ns]++
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return usage, nil
}

// discard removes an unreadable entry so the next run refetches it.
func (s *FileStore) discard(path string, cause error) {
	s.corrupt()
	s.log.WithField("path", path).Warn(errors.CacheCorruption(path, cause).Error())
	if err := s.writer.Remove(path); err != nil {
		s.log.WithField("path", path).Error("failed to remove corrupt cache entry", err)
	}
}

func checksum(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}
