// Package preferences persists the API credential and the autoplay flag.
package preferences

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"upitquest/internal/domain"
)

// Keys of the string-valued store.
const (
	KeyAPIKey   = "OPEN_AI_API_KEY"
	KeyAutoPlay = "AUTO_PLAY"
)

// Store is a durable key-value file loaded once and rewritten on Save.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// Open loads path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("preferences path is empty")
	}

	s := &Store{path: path, values: map[string]string{}}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read preferences %q: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %q: %w", path, err)
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	return s, nil
}

// Current implements ports.PreferenceSource.
func (s *Store) Current() domain.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Preferences{
		APIKey:   s.values[KeyAPIKey],
		AutoPlay: s.values[KeyAutoPlay] == "true",
	}
}

// HasCredential reports whether an API key has been configured.
func (s *Store) HasCredential() bool {
	return strings.TrimSpace(s.Current().APIKey) != ""
}

// Save replaces both preferences and writes the file.
func (s *Store) Save(prefs domain.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+2)
	for key, value := range s.values {
		next[key] = value
	}
	next[KeyAPIKey] = strings.TrimSpace(prefs.APIKey)
	next[KeyAutoPlay] = fmt.Sprintf("%t", prefs.AutoPlay)

	if err := writeFile(s.path, next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func writeFile(path string, values map[string]string) error {
	contents, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".preferences-*")
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(contents); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
