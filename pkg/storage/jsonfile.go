package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// JSONFile persists the whole store as a single JSON object on disk,
// one property per key. Every write rewrites the file atomically.
type JSONFile struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewJSONFile opens (or creates) the store backed by path. A missing file
// starts an empty store; a corrupt file is an error.
func NewJSONFile(path string) (*JSONFile, error) {
	s := &JSONFile{path: path, data: make(map[string]json.RawMessage)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	decoded, err := DecodeBigInts(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := json.Unmarshal(decoded, &s.data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *JSONFile) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *JSONFile) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append(json.RawMessage(nil), value...)
	return s.flush()
}

func (s *JSONFile) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flush()
}

func (s *JSONFile) All(_ context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *JSONFile) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flush()
}

// flush serializes the map and replaces the file via rename so readers never
// observe a partial write. Caller holds s.mu.
func (s *JSONFile) flush() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	encoded, err := EncodeBigInts(raw)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
