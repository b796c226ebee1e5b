package config

import (
	"time"

	"github.com/oreonproject/pax"
)

// HoldStore persists holds.yaml: name -> [pax.Hold] (spec.md §4.8).
// Expired holds are garbage-collected on Load.
type HoldStore struct {
	kv *kvstore[pax.Hold]
}

// NewHoldStore opens the holds store rooted at dir, without reading it yet.
func NewHoldStore(dir string) *HoldStore {
	return &HoldStore{kv: newKVStore[pax.Hold](dir, "holds.yaml")}
}

// Load reads holds.yaml and drops any entry whose expiry has passed
// (spec.md §4.8: "Expired holds are garbage-collected on load").
func (s *HoldStore) Load() error {
	if err := s.kv.load(); err != nil {
		return err
	}
	now := time.Now()
	s.kv.prune(func(h pax.Hold) bool { return h.Expired(now) })
	return nil
}

// Save writes the current hold set to holds.yaml.
func (s *HoldStore) Save() error { return s.kv.save() }

// Get returns the hold on name, if any.
func (s *HoldStore) Get(name string) (pax.Hold, bool) { return s.kv.get(name) }

// Set records a hold on name, replacing any prior hold.
func (s *HoldStore) Set(name string, h pax.Hold) { s.kv.set(name, h) }

// Unhold removes any hold on name.
func (s *HoldStore) Unhold(name string) { s.kv.delete(name) }

// Names lists every package with an active hold.
func (s *HoldStore) Names() []string { return s.kv.keys() }

// VersionPinStore persists version_pins.yaml: name -> pinned version string.
type VersionPinStore struct {
	kv *kvstore[string]
}

func NewVersionPinStore(dir string) *VersionPinStore {
	return &VersionPinStore{kv: newKVStore[string](dir, "version_pins.yaml")}
}

func (s *VersionPinStore) Load() error { return s.kv.load() }
func (s *VersionPinStore) Save() error { return s.kv.save() }

// Get returns the pinned version for name, if any.
func (s *VersionPinStore) Get(name string) (string, bool) { return s.kv.get(name) }

// Pin records that name must resolve to exactly version.
func (s *VersionPinStore) Pin(name, version string) { s.kv.set(name, version) }

// Unpin removes any version pin on name.
func (s *VersionPinStore) Unpin(name string) { s.kv.delete(name) }

// RepositoryPinStore persists repository_pins.yaml: name -> repository URL.
type RepositoryPinStore struct {
	kv *kvstore[string]
}

func NewRepositoryPinStore(dir string) *RepositoryPinStore {
	return &RepositoryPinStore{kv: newKVStore[string](dir, "repository_pins.yaml")}
}

func (s *RepositoryPinStore) Load() error { return s.kv.load() }
func (s *RepositoryPinStore) Save() error { return s.kv.save() }

// Get returns the repository URL name is pinned to, if any.
func (s *RepositoryPinStore) Get(name string) (string, bool) { return s.kv.get(name) }

// Pin restricts name to repositoryURL.
func (s *RepositoryPinStore) Pin(name, repositoryURL string) { s.kv.set(name, repositoryURL) }

// Unpin removes any repository pin on name.
func (s *RepositoryPinStore) Unpin(name string) { s.kv.delete(name) }
