package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	paxmodel "github.com/oreonproject/pax"
	"github.com/oreonproject/pax/internal/metrics"
	"github.com/oreonproject/pax/ownership"
)

// Remove reverses an install's steps 6-8 using the stored FileManifest:
// files and symlinks are removed first, then directories in reverse
// manifest order and only when empty; a critical system directory itself
// is never removed (spec.md §4.7 "Removal reverses steps 6–8").
//
// Before deleting, Remove snapshots the manifest and every file's current
// bytes into a fresh backup directory, so a later [Installer.Rollback] can
// restore this operation exactly.
func (i *Installer) Remove(ctx context.Context, name string, txType paxmodel.TransactionType) (err error) {
	start := time.Now()
	defer func() {
		metrics.InstallDuration.WithLabelValues(string(txType)).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.TransactionOutcomes.WithLabelValues(outcome).Inc()
	}()

	fl, err := acquireFileLock(filepath.Join(i.MetaDir, ".lock"))
	if err != nil {
		return fmt.Errorf("installer: acquire lock: %w", err)
	}
	i.lock = fl
	defer releaseLock(i)

	m, err := ownership.LoadManifest(ownership.ManifestPath(i.manifestDir(), name))
	if err != nil {
		return fmt.Errorf("installer: loading manifest for %s: %w", name, err)
	}

	backupDir := filepath.Join(i.backupDir(), fmt.Sprintf("remove-%s-%d", name, time.Now().UnixNano()))
	if err := snapshotManifest(backupDir, m); err != nil {
		return err
	}

	for _, f := range m.Files {
		if !underCriticalDir(i.Root, f.Path) {
			os.Remove(f.Path)
		}
	}
	for _, s := range m.Symlinks {
		if !underCriticalDir(i.Root, s.Path) {
			os.Remove(s.Path)
		}
	}
	for j := len(m.Directories) - 1; j >= 0; j-- {
		d := m.Directories[j]
		if underCriticalDir(i.Root, d.Path) {
			fmt.Printf("[SKIP] %s: critical system directory\n", d.Path)
			continue
		}
		os.Remove(d.Path) // no-op if the directory is non-empty
	}
	if err := ownership.RemoveManifest(i.manifestDir(), name); err != nil {
		return err
	}

	tx := paxmodel.Transaction{
		ID:     newTxID(),
		Type:   txType,
		Status: paxmodel.StatusCompleted,
		Operations: []paxmodel.PackageOperation{{
			Name:       name,
			Version:    m.PackageVersion,
			Type:       txType,
			BackupDir:  backupDir,
			OldVersion: m.PackageVersion,
		}},
		CreatedAt: time.Now(),
	}
	return appendTransaction(i.MetaDir, tx)
}

// snapshotManifest copies m itself and every file it references into dir,
// storing each file under dir/files/<its full on-disk path> so it can be
// restored later.
func snapshotManifest(dir string, m *paxmodel.FileManifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("installer: create backup dir: %w", err)
	}
	if err := ownership.SaveManifest(dir, m); err != nil {
		return fmt.Errorf("installer: snapshot manifest: %w", err)
	}
	for _, f := range m.Files {
		dst := filepath.Join(dir, "files", f.Path)
		if err := copyFile(f.Path, dst, os.FileMode(f.Permissions)); err != nil {
			return fmt.Errorf("installer: snapshot %s: %w", f.Path, err)
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
