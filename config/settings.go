// Package config loads settings.yaml and sources.conf, and normalizes
// repository origins into [pax.OriginKind] values (spec.md §4.2, §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax"
)

// Arch enumerates the supported target architectures (spec.md §6).
type Arch string

const (
	ArchNoArch   Arch = "NoArch"
	ArchX86_64v1 Arch = "X86_64v1"
	ArchX86_64v3 Arch = "X86_64v3"
	ArchAarch64  Arch = "Aarch64"
	ArchArmv7l   Arch = "Armv7l"
	ArchArmv8l   Arch = "Armv8l"
)

// Settings is the decoded form of settings.yaml.
//
// The "locked" field is the cooperative program lock described in spec.md
// §5; it is layered on top of the hard flock(2) mutex the installer also
// takes (see the installer package), not a replacement for it.
type Settings struct {
	Locked          bool              `yaml:"locked"`
	Version         string            `yaml:"version"`
	Arch            Arch              `yaml:"arch"`
	Exec            string            `yaml:"exec,omitempty"`
	MirrorList      string            `yaml:"mirror_list,omitempty"`
	Sources         []pax.OriginKind  `yaml:"sources"`
	DisabledSources []DisabledSource  `yaml:"disabled_sources"`
}

// DisabledSource records a repository a health probe took offline, plus
// why and when, so a `--re-enable` surface can be actionable (SPEC_FULL.md
// §9.1, supplemented from original_source/metadata/src/repo_index.rs).
type DisabledSource struct {
	Name   string `yaml:"name"`
	Reason string `yaml:"reason"`
	At     string `yaml:"at"`
}

// Default returns a zero-value Settings with NoArch and no sources, the
// starting point before `pax-init` or a loaded file populates it.
func Default() Settings {
	return Settings{
		Version: "1",
		Arch:    ArchNoArch,
	}
}

// Load reads settings.yaml from dir. If the file does not exist, Load
// returns Default() rather than an error, matching the Rust original's
// get_settings behavior of falling back to fresh defaults.
func Load(dir string) (Settings, error) {
	path := filepath.Join(dir, "settings.yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, &pax.Error{Kind: pax.ErrConfig, Op: "config.Load", Inner: err}
	}
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, &pax.Error{Kind: pax.ErrConfig, Op: "config.Load", Message: "malformed settings.yaml", Inner: err}
	}
	return s, nil
}

// Save writes Settings to dir/settings.yaml using a write-temp-then-rename
// sequence, so a reader never observes a partially written file (spec.md
// §5: "writers use write-temp-then-rename").
func Save(dir string, s Settings) error {
	s.dedupeSources()
	b, err := yaml.Marshal(s)
	if err != nil {
		return &pax.Error{Kind: pax.ErrConfig, Op: "config.Save", Inner: err}
	}
	return writeFileAtomic(filepath.Join(dir, "settings.yaml"), b, 0o644)
}

// dedupeSources removes sources that are identical under originEqual,
// mirroring the Rust original's set_settings dedup pass.
func (s *Settings) dedupeSources() {
	out := s.Sources[:0:0]
	for _, candidate := range s.Sources {
		dup := false
		for _, existing := range out {
			if originEqual(existing, candidate) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, candidate)
		}
	}
	s.Sources = out
}

func originEqual(a, b pax.OriginKind) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case pax.OriginGithub:
		return a.GithubUser == b.GithubUser && a.GithubRepo == b.GithubRepo
	case pax.OriginR2:
		return a.R2Bucket == b.R2Bucket && a.R2AccountID == b.R2AccountID
	case pax.OriginLocal:
		return a.LocalPath == b.LocalPath
	default:
		return a.URL == b.URL
	}
}

func writeFileAtomic(path string, b []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &pax.Error{Kind: pax.ErrConfig, Op: "writeFileAtomic", Inner: err}
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return &pax.Error{Kind: pax.ErrConfig, Op: "writeFileAtomic", Inner: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return &pax.Error{Kind: pax.ErrConfig, Op: "writeFileAtomic", Inner: err}
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return &pax.Error{Kind: pax.ErrConfig, Op: "writeFileAtomic", Inner: err}
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return &pax.Error{Kind: pax.ErrConfig, Op: "writeFileAtomic", Inner: err}
	}
	return nil
}

// MetaDir returns the pax metadata directory: <PAX_ROOT>/etc/pax when
// PAX_ROOT is set, otherwise $HOME/.config/pax (HOME defaulting to /root).
// SUDO_USER and USER are not consulted.
func MetaDir() string {
	if root := os.Getenv("PAX_ROOT"); root != "" {
		return filepath.Join(root, "etc", "pax")
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = "/root"
	}
	return filepath.Join(home, ".config", "pax")
}

// EnsureMetaDir creates dir and its manifests/backups/transactions
// subdirectories if absent.
func EnsureMetaDir(dir string) error {
	for _, sub := range []string{"", "manifests", "backups", "transactions", "repo_indexes"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("config: ensure meta dir: %w", err)
		}
	}
	return nil
}
