// Package settings persists user preferences (saved filters and plain
// key/value options such as column choices) in a TOML file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/issuelens/internal/filter"
)

// DefaultFilter is the name used when a filter is saved without one.
const DefaultFilter = "default"

// ErrNotFound is returned for keys and filters that were never saved.
var ErrNotFound = errors.New("setting not found")

// document is the on-disk layout.
type document struct {
	Values  map[string]string          `toml:"values,omitempty"`
	Filters map[string]filter.Criteria `toml:"filters,omitempty"`
}

// Store is a TOML-backed key/value store. Every call re-reads the file so
// concurrent lens processes see each other's writes.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store for path. The file is created on first write.
func Open(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns settings.toml under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "lens", "settings.toml"), nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (*document, error) {
	doc := &document{}
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is chosen by the user
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) save(doc *document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := toml.NewEncoder(tmp).Encode(doc); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) update(fn func(*document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return "", err
	}
	val, ok := doc.Values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	return s.update(func(doc *document) error {
		if doc.Values == nil {
			doc.Values = make(map[string]string)
		}
		doc.Values[key] = value
		return nil
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.update(func(doc *document) error {
		delete(doc.Values, key)
		return nil
	})
}

// SaveFilter stores criteria under name (DefaultFilter when empty).
func (s *Store) SaveFilter(name string, c filter.Criteria) error {
	if name == "" {
		name = DefaultFilter
	}
	return s.update(func(doc *document) error {
		if doc.Filters == nil {
			doc.Filters = make(map[string]filter.Criteria)
		}
		doc.Filters[name] = c
		return nil
	})
}

// LoadFilter returns the criteria saved under name (DefaultFilter when empty).
func (s *Store) LoadFilter(name string) (filter.Criteria, error) {
	if name == "" {
		name = DefaultFilter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return filter.Criteria{}, err
	}
	c, ok := doc.Filters[name]
	if !ok {
		return filter.Criteria{}, fmt.Errorf("%w: filter %s", ErrNotFound, name)
	}
	return c, nil
}

// DeleteFilter removes the named filter.
func (s *Store) DeleteFilter(name string) error {
	if name == "" {
		name = DefaultFilter
	}
	return s.update(func(doc *document) error {
		delete(doc.Filters, name)
		return nil
	})
}

// FilterNames lists saved filters alphabetically.
func (s *Store) FilterNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Filters))
	for name := range doc.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
