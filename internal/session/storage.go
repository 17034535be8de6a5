package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Storage is client-local persistent key/value storage for principals.
type Storage interface {
	Load(key string) (Principal, bool, error)
	Store(key string, principal Principal) error
	Delete(key string) error
}

// MemoryStorage keeps entries for the life of the process.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]Principal
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]Principal)}
}

func (m *MemoryStorage) Load(key string) (Principal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	principal, ok := m.entries[key]
	return principal, ok, nil
}

func (m *MemoryStorage) Store(key string, principal Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = principal
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// FileStorage keeps entries in a YAML document readable only by the current user.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage returns storage backed by the file at path. The file is created on first write.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("session: storage path required")
	}
	return &FileStorage{path: path}, nil
}

// Path returns the backing file.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load(key string) (Principal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return Principal{}, false, err
	}
	principal, ok := entries[key]
	return principal, ok, nil
}

func (f *FileStorage) Store(key string, principal Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[key] = principal
	return f.write(entries)
}

func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return f.write(entries)
}

func (f *FileStorage) read() (map[string]Principal, error) {
	entries := make(map[string]Principal)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", f.path, err)
	}
	if entries == nil {
		entries = make(map[string]Principal)
	}
	return entries, nil
}

func (f *FileStorage) write(entries map[string]Principal) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session: create directory: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	defer os.Remove(temp.Name()) //nolint:errcheck
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	if err := os.Rename(temp.Name(), f.path); err != nil {
		return fmt.Errorf("session: replace %s: %w", f.path, err)
	}
	return nil
}
