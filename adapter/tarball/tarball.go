// Package tarball implements the [adapter.Adapter] for plain tarballs and
// GitHub release archives: no embedded metadata, no dependency graph, just
// files to place under the install root (spec.md §4.3's "compilable"
// install_kind path, and the Github/tarball [pax.OriginKind]).
package tarball

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/trace"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/oreonproject/pax/adapter"
)

// Adapter implements [adapter.Adapter] for one tarball file. Name and
// Version are supplied by the caller (derived from the release tag or
// sources.conf entry) since the archive itself carries no metadata.
type Adapter struct {
	Path    string
	Name    string
	Version string
}

var _ adapter.Adapter = (*Adapter)(nil)

// New returns an Adapter for the archive at path.
func New(path, name, version string) *Adapter {
	return &Adapter{Path: path, Name: name, Version: version}
}

// ExtractMetadata implements [adapter.Adapter].
func (a *Adapter) ExtractMetadata(ctx context.Context) (adapter.Metadata, error) {
	return adapter.Metadata{Name: a.Name, Version: a.Version}, nil
}

func (a *Adapter) decompressed() (io.ReadCloser, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("tarball: open %s: %w", a.Path, err)
	}
	switch {
	case strings.HasSuffix(a.Path, ".tar.gz"), strings.HasSuffix(a.Path, ".tgz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("tarball: gzip init: %w", err)
		}
		return readCloserPair{zr, f}, nil
	case strings.HasSuffix(a.Path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("tarball: zstd init: %w", err)
		}
		return readCloserPair{zr.IOReadCloser(), f}, nil
	case strings.HasSuffix(a.Path, ".tar.bz2"):
		return readCloserPair{io.NopCloser(bzip2.NewReader(f)), f}, nil
	case strings.HasSuffix(a.Path, ".tar"):
		return f, nil
	default:
		f.Close()
		return nil, fmt.Errorf("tarball: unrecognized archive extension for %q", a.Path)
	}
}

// readCloserPair closes both the decompressor and the underlying file.
type readCloserPair struct {
	io.ReadCloser
	file *os.File
}

func (p readCloserPair) Close() error {
	err := p.ReadCloser.Close()
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ExtractFiles implements [adapter.Adapter].
func (a *Adapter) ExtractFiles(ctx context.Context, dest string) ([]adapter.FileEntry, error) {
	defer trace.StartRegion(ctx, "tarball.Adapter.ExtractFiles").End()
	r, err := a.decompressed()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []adapter.FileEntry
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("tarball: reading archive: %w", err)
		}
		name := filepath.Clean("/" + h.Name)
		target := filepath.Join(dest, name)
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(h.Mode)); err != nil {
				return nil, fmt.Errorf("tarball: mkdir %s: %w", target, err)
			}
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Directory})
		case tar.TypeSymlink:
			os.MkdirAll(filepath.Dir(target), 0o755)
			os.Remove(target)
			if err := os.Symlink(h.Linkname, target); err != nil {
				return nil, fmt.Errorf("tarball: symlink %s: %w", target, err)
			}
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Symlink, Target: h.Linkname})
		case tar.TypeReg:
			os.MkdirAll(filepath.Dir(target), 0o755)
			wf, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(h.Mode))
			if err != nil {
				return nil, fmt.Errorf("tarball: create %s: %w", target, err)
			}
			if _, err := io.Copy(wf, tr); err != nil {
				wf.Close()
				return nil, fmt.Errorf("tarball: write %s: %w", target, err)
			}
			wf.Close()
			out = append(out, adapter.FileEntry{Path: name, Type: adapter.Regular})
		}
	}
}

// GetDependencies implements [adapter.Adapter]: tarballs carry no
// dependency metadata.
func (a *Adapter) GetDependencies(ctx context.Context) ([]adapter.Dependency, error) {
	return nil, nil
}

// GetProvides implements [adapter.Adapter]: a tarball provides only its own
// package name.
func (a *Adapter) GetProvides(ctx context.Context) ([]adapter.Provides, error) {
	return []adapter.Provides{{Name: a.Name, Kind: adapter.ProvidesPackage}}, nil
}

// RunScript implements [adapter.Adapter]: tarball sources have no
// scriptlets of their own, so this is a no-op for every stage.
func (a *Adapter) RunScript(ctx context.Context, stage adapter.ScriptStage, env adapter.Env) error {
	return nil
}

// GetHash implements [adapter.Adapter].
func (a *Adapter) GetHash(ctx context.Context) (string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("tarball: open %s: %w", a.Path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("tarball: hashing %s: %w", a.Path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
