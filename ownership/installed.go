package ownership

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/config"
)

// InstalledSet implements resolver.InstalledLookup against the on-disk
// manifest directory plus the holds/version-pin stores, so the resolver
// never has to know about either's storage format (spec.md §4.5/§4.8).
type InstalledSet struct {
	manifestDir string
	versions    map[string]string
	holds       *config.HoldStore
	pins        *config.VersionPinStore
}

// LoadInstalledSet reads every manifest under manifestDir for installed
// versions, and loads the hold/pin stores rooted at metaDir.
func LoadInstalledSet(manifestDir, metaDir string) (*InstalledSet, error) {
	s := &InstalledSet{
		manifestDir: manifestDir,
		versions:    map[string]string{},
		holds:       config.NewHoldStore(metaDir),
		pins:        config.NewVersionPinStore(metaDir),
	}
	if err := s.holds.Load(); err != nil {
		return nil, err
	}
	if err := s.pins.Load(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(manifestDir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		m, err := LoadManifest(filepath.Join(manifestDir, e.Name()))
		if err != nil {
			continue
		}
		s.versions[m.PackageName] = m.PackageVersion
	}
	return s, nil
}

// Installed reports the installed version of name, if any.
func (s *InstalledSet) Installed(name string) (string, bool) {
	v, ok := s.versions[name]
	return v, ok
}

// Hold reports the active hold on name, if any.
func (s *InstalledSet) Hold(name string) (pax.HoldKind, bool) {
	h, ok := s.holds.Get(name)
	if !ok {
		return "", false
	}
	return h.Type, true
}

// Pin reports the version name is pinned to, if any.
func (s *InstalledSet) Pin(name string) (string, bool) {
	return s.pins.Get(name)
}

// Names returns every currently-installed package name, for callers that
// need to act on "everything installed" (e.g. `pax upgrade` with no
// arguments).
func (s *InstalledSet) Names() []string {
	out := make([]string, 0, len(s.versions))
	for name := range s.versions {
		out = append(out, name)
	}
	return out
}
