// Package ownership builds a package's prospective [pax.FileManifest] and
// checks it for conflicts against every other installed manifest
// (spec.md §4.6).
package ownership

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/trace"
	"time"

	"github.com/oreonproject/pax"
)

// ConflictKind enumerates why a prospective manifest path is rejected.
type ConflictKind string

const (
	FileOwnership      ConflictKind = "file_ownership"
	DirectoryOwnership ConflictKind = "directory_ownership"
	SymlinkOwnership   ConflictKind = "symlink_ownership"
	UntrackedFile      ConflictKind = "untracked_file"
)

// Conflict is one path that failed ownership validation.
type Conflict struct {
	Path       string
	Kind       ConflictKind
	OwnedBy    string // empty for UntrackedFile
}

func (c Conflict) String() string {
	if c.OwnedBy == "" {
		return fmt.Sprintf("%s: %s (untracked)", c.Path, c.Kind)
	}
	return fmt.Sprintf("%s: %s (owned by %s)", c.Path, c.Kind, c.OwnedBy)
}

// BuildManifest walks stageDir (a private per-install extraction directory)
// and produces the prospective [pax.FileManifest], computing a streaming
// sha256 for every regular file with an 8 KiB buffer (spec.md §4.6).
func BuildManifest(ctx context.Context, pkgName, pkgVersion, stageDir, root string) (*pax.FileManifest, error) {
	defer trace.StartRegion(ctx, "ownership.BuildManifest").End()
	m := &pax.FileManifest{
		PackageName:    pkgName,
		PackageVersion: pkgVersion,
		InstalledAt:    time.Now(),
	}

	err := filepath.WalkDir(stageDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == stageDir {
			return nil
		}
		rel, err := filepath.Rel(stageDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(root, "/", rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("ownership: readlink %s: %w", p, err)
			}
			m.Symlinks = append(m.Symlinks, pax.SymlinkEntry{Path: target, Target: link})
		case d.IsDir():
			m.Directories = append(m.Directories, pax.DirEntry{Path: target, Permissions: uint32(info.Mode().Perm())})
		default:
			sum, err := hashFile(p)
			if err != nil {
				return err
			}
			m.Files = append(m.Files, pax.FileEntry{
				Path:        target,
				Size:        info.Size(),
				Permissions: uint32(info.Mode().Perm()),
				SHA256:      sum,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ownership: walking %s: %w", stageDir, err)
	}
	return m, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ownership: open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	buf := make([]byte, 8*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("ownership: hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Database is the path -> owning-package index built from every on-disk
// manifest (spec.md §4.4 of §4.6: "query the on-disk manifests").
type Database struct {
	owners map[string]ownerRecord
}

type ownerRecord struct {
	pkg  string
	kind ConflictKind
}

// NewDatabase builds a Database from every manifest under manifestDir.
func NewDatabase(manifestDir string) (*Database, error) {
	db := &Database{owners: map[string]ownerRecord{}}
	entries, err := os.ReadDir(manifestDir)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("ownership: reading %s: %w", manifestDir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m, err := LoadManifest(filepath.Join(manifestDir, e.Name()))
		if err != nil {
			continue
		}
		db.Index(m)
	}
	return db, nil
}

// Index adds every path in m to the database, attributed to m.PackageName.
func (db *Database) Index(m *pax.FileManifest) {
	for _, f := range m.Files {
		db.owners[f.Path] = ownerRecord{pkg: m.PackageName, kind: FileOwnership}
	}
	for _, d := range m.Directories {
		db.owners[d.Path] = ownerRecord{pkg: m.PackageName, kind: DirectoryOwnership}
	}
	for _, s := range m.Symlinks {
		db.owners[s.Path] = ownerRecord{pkg: m.PackageName, kind: SymlinkOwnership}
	}
}

// CheckConflicts reports every path in prospective that is already owned by
// a different package, or exists on disk untracked by anyone (spec.md
// §4.6).
func (db *Database) CheckConflicts(prospective *pax.FileManifest) []Conflict {
	var out []Conflict
	check := func(path string, kind ConflictKind) {
		if rec, ok := db.owners[path]; ok {
			if rec.pkg != prospective.PackageName {
				out = append(out, Conflict{Path: path, Kind: rec.kind, OwnedBy: rec.pkg})
			}
			return
		}
		if _, err := os.Lstat(path); err == nil {
			out = append(out, Conflict{Path: path, Kind: UntrackedFile})
		}
	}
	for _, f := range prospective.Files {
		check(f.Path, FileOwnership)
	}
	for _, d := range prospective.Directories {
		check(d.Path, DirectoryOwnership)
	}
	for _, s := range prospective.Symlinks {
		check(s.Path, SymlinkOwnership)
	}
	return out
}
