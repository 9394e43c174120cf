package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyFile is returned when a file exists but holds no data.
var ErrEmptyFile = errors.New("file is empty")

var tempCounter uint64

// AtomicWriter provides atomic file operations. Writers never leave a
// partially written file at the target path.
type AtomicWriter struct {
	locks   map[string]*sync.RWMutex // per-file locks
	locksMu sync.Mutex               // protects the locks map
}

// NewAtomicWriter creates a new atomic writer
func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{
		locks: make(map[string]*sync.RWMutex),
	}
}

// WriteFile writes data to a temp file in the target directory, verifies
// it and renames it into place.
func (w *AtomicWriter) WriteFile(filename string, data []byte, perm os.FileMode) error {
	fileLock := w.getFileLock(filename)
	fileLock.Lock()
	defer fileLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := filename + ".tmp." + generateTempSuffix()

	if err := os.WriteFile(tempFile, data, perm); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := verifyFileIntegrity(tempFile, data); err != nil {
		os.Remove(tempFile)
		return err
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadFile reads a file under its read lock
func (w *AtomicWriter) ReadFile(filename string) ([]byte, error) {
	fileLock := w.getFileLock(filename)
	fileLock.RLock()
	defer fileLock.RUnlock()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// Remove deletes a file. A missing file is not an error.
func (w *AtomicWriter) Remove(filename string) error {
	fileLock := w.getFileLock(filename)
	fileLock.Lock()
	defer fileLock.Unlock()

	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveAll deletes a directory tree and forgets the locks under it.
func (w *AtomicWriter) RemoveAll(dir string) error {
	w.locksMu.Lock()
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	for name := range w.locks {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			delete(w.locks, name)
		}
	}
	w.locksMu.Unlock()

	return os.RemoveAll(dir)
}

// getFileLock gets or creates a lock for a specific file
func (w *AtomicWriter) getFileLock(filename string) *sync.RWMutex {
	w.locksMu.Lock()
	defer w.locksMu.Unlock()

	filename = filepath.Clean(filename)
	if lock, exists := w.locks[filename]; exists {
		return lock
	}

	lock := &sync.RWMutex{}
	w.locks[filename] = lock
	return lock
}

// verifyFileIntegrity verifies that written data matches expected data
func verifyFileIntegrity(filename string, expectedData []byte) error {
	actualData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	if xxhash.Sum64(expectedData) != xxhash.Sum64(actualData) {
		return fmt.Errorf("file integrity check failed: hash mismatch")
	}

	return nil
}

// generateTempSuffix generates a unique suffix for temporary files
func generateTempSuffix() string {
	n := atomic.AddUint64(&tempCounter, 1)
	return strconv.FormatUint(xxhash.Sum64String(fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), n)), 36)
}
