package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Mirror.Load when nothing is stored under the key.
var ErrNotFound = errors.New("history: key not found")

// Mirror is durable storage for the serialized history log.
// A mirror holds opaque bytes per key; the store owns the format.
type Mirror interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// FileMirror keeps each key in <dir>/<key>.json.
// Writes go to a temp file that is renamed into place.
type FileMirror struct {
	dir string
}

// NewFileMirror creates the directory if needed.
func NewFileMirror(dir string) (*FileMirror, error) {
	if dir == "" {
		return nil, errors.New("history: file mirror directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create %s: %w", dir, err)
	}
	return &FileMirror{dir: dir}, nil
}

func (m *FileMirror) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("history: invalid key %q", key)
	}
	return filepath.Join(m.dir, key+".json"), nil
}

// Load reads the file for key.
func (m *FileMirror) Load(_ context.Context, key string) ([]byte, error) {
	p, err := m.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Store replaces the file for key atomically.
func (m *FileMirror) Store(_ context.Context, key string, data []byte) error {
	p, err := m.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the file for key. A missing file is not an error.
func (m *FileMirror) Delete(_ context.Context, key string) error {
	p, err := m.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close is a no-op.
func (m *FileMirror) Close() error { return nil }

// MemoryMirror is an in-process mirror for tests and for running without
// persistence. Errors can be injected.
type MemoryMirror struct {
	mu   sync.Mutex
	data map[string][]byte

	LoadErr   error
	StoreErr  error
	DeleteErr error

	stores int
	closed bool
}

// NewMemoryMirror creates an empty MemoryMirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{data: make(map[string][]byte)}
}

// Load returns a copy of the stored bytes.
func (m *MemoryMirror) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Store saves a copy of data.
func (m *MemoryMirror) Store(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.stores++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key.
func (m *MemoryMirror) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.data, key)
	return nil
}

// Close marks the mirror closed.
func (m *MemoryMirror) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Put seeds raw bytes, bypassing error injection.
func (m *MemoryMirror) Put(key string, data []byte) {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Raw returns the stored bytes and whether the key exists.
func (m *MemoryMirror) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Stores returns the number of successful Store calls.
func (m *MemoryMirror) Stores() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}

// SetLoadErr changes the injected Load error.
func (m *MemoryMirror) SetLoadErr(err error) {
	m.mu.Lock()
	m.LoadErr = err
	m.mu.Unlock()
}

// SetStoreErr changes the injected Store error.
func (m *MemoryMirror) SetStoreErr(err error) {
	m.mu.Lock()
	m.StoreErr = err
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *MemoryMirror) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
