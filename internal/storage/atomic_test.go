package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestAtomicWriter_WriteFile(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	testFile := filepath.Join(tempDir, "nested", "dir", "entry.json")
	testData := []byte(`{"hello":"world"}`)

	if err := writer.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	data, err := writer.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != string(testData) {
		t.Errorf("File content mismatch. Expected: %s, Got: %s", testData, data)
	}

	newData := []byte(`{"hello":"again"}`)
	if err := writer.WriteFile(testFile, newData, 0644); err != nil {
		t.Fatalf("Failed to overwrite file: %v", err)
	}

	data, err = os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read updated file: %v", err)
	}
	if string(data) != string(newData) {
		t.Errorf("Updated file content mismatch. Expected: %s, Got: %s", newData, data)
	}

	entries, err := os.ReadDir(filepath.Dir(testFile))
	if err != nil {
		t.Fatalf("Failed to list dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriter_ConcurrentWrites(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()
	testFile := filepath.Join(tempDir, "concurrent.json")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf(`{"writer":%d}`, i))
			if err := writer.WriteFile(testFile, data, 0644); err != nil {
				t.Errorf("Write %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := writer.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"writer":`) {
		t.Errorf("Unexpected content after concurrent writes: %s", data)
	}
}

func TestAtomicWriter_ReadEmptyAndMissing(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	empty := filepath.Join(tempDir, "empty.json")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := writer.ReadFile(empty); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Expected ErrEmptyFile, got %v", err)
	}

	if _, err := writer.ReadFile(filepath.Join(tempDir, "missing.json")); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestAtomicWriter_Remove(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	file := filepath.Join(tempDir, "ns", "a.json")
	if err := writer.WriteFile(file, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := writer.Remove(file); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := writer.Remove(file); err != nil {
		t.Errorf("removing a missing file should not fail: %v", err)
	}

	if err := writer.WriteFile(file, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.RemoveAll(filepath.Join(tempDir, "ns")); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "ns")); !os.IsNotExist(err) {
		t.Errorf("Expected namespace dir to be gone, got %v", err)
	}
}
