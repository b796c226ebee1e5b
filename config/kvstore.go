package config

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax"
)

// kvstore is the shared read-whole-file/decode/mutate/write-temp-then-rename
// persistence shape behind holds.yaml, version_pins.yaml, and
// repository_pins.yaml (SPEC_FULL.md §4.8): one generic kvstore[V] keyed by
// package name.
type kvstore[V any] struct {
	path string

	mu   sync.Mutex
	data map[string]V
}

func newKVStore[V any](dir, filename string) *kvstore[V] {
	return &kvstore[V]{path: filepath.Join(dir, filename), data: map[string]V{}}
}

func (s *kvstore[V]) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = map[string]V{}
			return nil
		}
		return &pax.Error{Kind: pax.ErrConfig, Op: "kvstore.load", Inner: err}
	}
	m := map[string]V{}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return &pax.Error{Kind: pax.ErrConfig, Op: "kvstore.load", Message: "malformed " + filepath.Base(s.path), Inner: err}
	}
	s.data = m
	return nil
}

func (s *kvstore[V]) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := yaml.Marshal(s.data)
	if err != nil {
		return &pax.Error{Kind: pax.ErrConfig, Op: "kvstore.save", Inner: err}
	}
	return writeFileAtomic(s.path, b, 0o644)
}

func (s *kvstore[V]) get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *kvstore[V]) set(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
}

func (s *kvstore[V]) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *kvstore[V]) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

func (s *kvstore[V]) prune(drop func(V) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.data {
		if drop(v) {
			delete(s.data, k)
		}
	}
}
