package content

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"docvault/internal/core"
)

// MemoryStore is an in-memory implementation of the ContentStore
// interface, useful for testing. Safe for concurrent use.
type MemoryStore struct {
	blobs map[string][]byte // checksum -> content
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores content under its checksum.
func (m *MemoryStore) Put(checksum string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.blobs[checksum] = data
	return nil
}

// Get retrieves content by checksum and writes it to w.
func (m *MemoryStore) Get(checksum string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[checksum]
	if !ok {
		return fmt.Errorf("content not found: %s", checksum)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}

	return nil
}

// Len returns the number of stored blobs. For tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryStore implements core.ContentStore
var _ core.ContentStore = (*MemoryStore)(nil)
