// Package pax implements the [adapter.Adapter] for native .pax archives: a
// zstd-compressed tar containing a ".paxmeta" YAML file at its root
// (spec.md §4.3).
package pax

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/trace"

	"github.com/Masterminds/semver"
	"github.com/klauspost/compress/zstd"
	"github.com/quay/zlog"
	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax/adapter"
)

// Meta is the decoded form of ".paxmeta".
type Meta struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description"`
	SourceURL   string            `yaml:"source_url"`
	Hash        string            `yaml:"hash"`
	Arch        []string          `yaml:"arch"`
	Depends     []string          `yaml:"depends"`
	BuildDepends []string         `yaml:"build_depends"`
	Provides    []string          `yaml:"provides"`
	Conflicts   []string          `yaml:"conflicts"`
	Build       string            `yaml:"build"`
	Install     string            `yaml:"install"`
	Uninstall   string            `yaml:"uninstall"`
	Scripts     map[string]string `yaml:"scripts"` // pre-install, post-install, pre-remove, post-remove
}

// Adapter implements [adapter.Adapter] for one .pax archive file.
type Adapter struct {
	Path string

	meta   *Meta
	loaded bool
}

var _ adapter.Adapter = (*Adapter)(nil)

// New returns an Adapter for the archive at path. Nothing is read until a
// method is called.
func New(path string) *Adapter { return &Adapter{Path: path} }

func (a *Adapter) open() (*zstd.Decoder, *os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("pax: open %s: %w", a.Path, err)
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("pax: zstd init: %w", err)
	}
	return zr, f, nil
}

func (a *Adapter) loadMeta(ctx context.Context) (*Meta, error) {
	if a.loaded {
		return a.meta, nil
	}
	defer trace.StartRegion(ctx, "pax.Adapter.loadMeta").End()

	zr, f, err := a.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pax: reading archive: %w", err)
		}
		if filepath.Clean(h.Name) != ".paxmeta" {
			continue
		}
		var m Meta
		if err := yaml.NewDecoder(tr).Decode(&m); err != nil {
			return nil, fmt.Errorf("pax: decoding .paxmeta: %w", err)
		}
		a.meta = &m
		a.loaded = true
		return a.meta, nil
	}
	return nil, fmt.Errorf("pax: %s: no .paxmeta found at archive root", a.Path)
}

// ExtractMetadata implements [adapter.Adapter].
func (a *Adapter) ExtractMetadata(ctx context.Context) (adapter.Metadata, error) {
	m, err := a.loadMeta(ctx)
	if err != nil {
		return adapter.Metadata{}, err
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		zlog.Warn(ctx).Str("package", m.Name).Str("version", m.Version).
			Msg("pax package version is not strict semver")
	}
	return adapter.Metadata{
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Arch:        m.Arch,
		Source:      m.SourceURL,
	}, nil
}

// ExtractFiles implements [adapter.Adapter]: unpacks the tar (excluding
// ".paxmeta") into dest.
func (a *Adapter) ExtractFiles(ctx context.Context, dest string) ([]adapter.FileEntry, error) {
	defer trace.StartRegion(ctx, "pax.Adapter.ExtractFiles").End()
	zr, f, err := a.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer zr.Close()

	var out []adapter.FileEntry
	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pax: reading archive: %w", err)
		}
		name := filepath.Clean(h.Name)
		if name == ".paxmeta" {
			continue
		}
		target := filepath.Join(dest, name)
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(h.Mode)); err != nil {
				return nil, fmt.Errorf("pax: mkdir %s: %w", target, err)
			}
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Directory})
		case tar.TypeSymlink:
			os.MkdirAll(filepath.Dir(target), 0o755)
			os.Remove(target)
			if err := os.Symlink(h.Linkname, target); err != nil {
				return nil, fmt.Errorf("pax: symlink %s: %w", target, err)
			}
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Symlink, Target: h.Linkname})
		case tar.TypeReg:
			os.MkdirAll(filepath.Dir(target), 0o755)
			wf, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(h.Mode))
			if err != nil {
				return nil, fmt.Errorf("pax: create %s: %w", target, err)
			}
			if _, err := io.Copy(wf, tr); err != nil {
				wf.Close()
				return nil, fmt.Errorf("pax: write %s: %w", target, err)
			}
			wf.Close()
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Regular})
		}
	}
	return out, nil
}

// GetDependencies implements [adapter.Adapter].
func (a *Adapter) GetDependencies(ctx context.Context) ([]adapter.Dependency, error) {
	m, err := a.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	return parseDepends(m.Depends), nil
}

// parseDepends parses dependency strings of the form "name", "name>=v",
// "name>=v,<v2" into [adapter.Dependency] (spec.md §4.3 "dependency
// strings (name, name>=v, ...)").
func parseDepends(raw []string) []adapter.Dependency {
	out := make([]adapter.Dependency, 0, len(raw))
	for _, d := range raw {
		name, constraint := splitNameConstraint(d)
		out = append(out, adapter.Dependency{Name: name, Constraint: constraint})
	}
	return out
}

func splitNameConstraint(s string) (name, constraint string) {
	for i, r := range s {
		if r == '<' || r == '>' || r == '=' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// GetProvides implements [adapter.Adapter].
func (a *Adapter) GetProvides(ctx context.Context) ([]adapter.Provides, error) {
	m, err := a.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]adapter.Provides, 0, len(m.Provides))
	for _, p := range m.Provides {
		out = append(out, adapter.Provides{Name: p, Kind: adapter.ProvidesPackage})
	}
	return out, nil
}

// RunScript implements [adapter.Adapter].
func (a *Adapter) RunScript(ctx context.Context, stage adapter.ScriptStage, env adapter.Env) error {
	m, err := a.loadMeta(ctx)
	if err != nil {
		return err
	}
	script := m.Scripts[stage.String()]
	return adapter.RunShell(ctx, script, env)
}

// GetHash implements [adapter.Adapter]: streams the archive file through
// sha256, independent of the declared Hash field in .paxmeta (which is the
// upstream-declared hash to verify against, not recomputed here).
func (a *Adapter) GetHash(ctx context.Context) (string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("pax: open %s: %w", a.Path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("pax: hashing %s: %w", a.Path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
