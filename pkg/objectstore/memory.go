package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Memory keeps objects in process memory. Contents are lost on exit.
type Memory struct {
	publicURL string

	mu    sync.RWMutex
	keys  map[string]string
	blobs map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory(publicURL string) *Memory {
	return &Memory{
		publicURL: publicURL,
		keys:      make(map[string]string),
		blobs:     make(map[string][]byte),
	}
}

// Put stores a copy of data under key. Content the key pointed at before is dropped
// unless another key shares it.
func (m *Memory) Put(_ context.Context, key string, data []byte) (string, error) {
	if _, _, err := SplitKey(key); err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[hash]; !ok {
		m.blobs[hash] = bytes.Clone(data)
	}
	key = strings.TrimPrefix(key, "/")
	previous, existed := m.keys[key]
	m.keys[key] = hash
	if existed && previous != hash {
		m.release(previous)
	}

	return Reference(m.publicURL, hash), nil
}

// Get returns a copy of the content behind ref.
func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	hash, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return bytes.Clone(data), nil
}

// Locate returns the reference stored under key.
func (m *Memory) Locate(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hash, ok := m.keys[strings.TrimPrefix(key, "/")]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Reference(m.publicURL, hash), nil
}

// Open streams content by hash.
func (m *Memory) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	data, err := m.Get(ctx, Reference("", hash))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key and, unless another key shares it, its content.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key = strings.TrimPrefix(key, "/")
	hash, ok := m.keys[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.keys, key)
	m.release(hash)
	return nil
}

// release drops hash once no key maps to it. The caller holds mu.
func (m *Memory) release(hash string) {
	for _, h := range m.keys {
		if h == hash {
			return
		}
	}
	delete(m.blobs, hash)
}

// Blobs returns the number of distinct contents held.
func (m *Memory) Blobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Keys returns the number of keys currently mapped.
func (m *Memory) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}
