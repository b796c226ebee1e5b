package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/quay/zlog"

	paxmodel "github.com/oreonproject/pax"
	"github.com/oreonproject/pax/adapter"
	"github.com/oreonproject/pax/config"
	"github.com/oreonproject/pax/ownership"
)

// acquireLock takes the per-install program lock: the cooperative
// settings.yaml "locked" flag, backstopped by a real flock(2) on
// <meta_dir>/.lock so a crashed process cannot wedge it forever (spec.md
// §4.7 step 1; SPEC_FULL.md §4.7).
func acquireLock(ctx context.Context, o *op) (State, error) {
	fl, err := acquireFileLock(filepath.Join(o.inst.MetaDir, ".lock"))
	if err != nil {
		return InstallError, fmt.Errorf("installer: acquire lock: %w", err)
	}
	o.inst.lock = fl

	settings, err := config.Load(o.inst.MetaDir)
	if err != nil {
		fl.Release()
		return InstallError, err
	}
	settings.Locked = true
	if err := config.Save(o.inst.MetaDir, settings); err != nil {
		fl.Release()
		return InstallError, err
	}

	zlog.Debug(ctx).Msg("program lock acquired")
	return Fetch, nil
}

// fetch resolves the package file to a fresh path under the OS temp dir:
// a local copy for file-scheme origins, an HTTP GET for remote ones (spec.md
// §4.7 step 2).
func fetch(ctx context.Context, o *op) (State, error) {
	if o.req.DownloadURL == "" {
		return Extract, nil // remove/purge operations carry no download
	}
	dst, err := os.CreateTemp("", "pax-fetch-*")
	if err != nil {
		return InstallError, fmt.Errorf("installer: fetch temp file: %w", err)
	}
	defer dst.Close()

	if strings.HasPrefix(o.req.DownloadURL, "file://") {
		src, err := os.Open(strings.TrimPrefix(o.req.DownloadURL, "file://"))
		if err != nil {
			return InstallError, fmt.Errorf("installer: fetch local copy: %w", err)
		}
		defer src.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return InstallError, fmt.Errorf("installer: fetch local copy: %w", err)
		}
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.req.DownloadURL, nil)
		if err != nil {
			return InstallError, fmt.Errorf("installer: fetch request: %w", err)
		}
		resp, err := o.inst.Client.Do(req)
		if err != nil {
			return InstallError, fmt.Errorf("installer: fetch: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return InstallError, fmt.Errorf("installer: fetch: unexpected status %s", resp.Status)
		}
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return InstallError, fmt.Errorf("installer: fetch body: %w", err)
		}
	}

	o.fetchedPath = dst.Name()
	zlog.Debug(ctx).Str("path", o.fetchedPath).Msg("package fetched")
	return Extract, nil
}

// extract dispatches to the appropriate [adapter.Adapter] and unpacks the
// package into a private per-install staging directory (spec.md §4.7 step
// 3).
func extract(ctx context.Context, o *op) (State, error) {
	if o.fetchedPath == "" {
		return BuildManifest, nil // remove/purge: nothing to extract
	}
	stageDir, err := os.MkdirTemp("", "pax-stage-*")
	if err != nil {
		return InstallError, fmt.Errorf("installer: create stage dir: %w", err)
	}
	a, err := adapterFor(o.req, o.fetchedPath)
	if err != nil {
		return InstallError, err
	}
	if _, err := a.ExtractFiles(ctx, stageDir); err != nil {
		return InstallError, fmt.Errorf("installer: extract: %w", err)
	}
	o.stageDir = stageDir
	zlog.Debug(ctx).Str("stage_dir", stageDir).Msg("package extracted")
	return BuildManifest, nil
}

// buildManifest walks the staged tree and produces the prospective
// [paxmodel.FileManifest] (spec.md §4.7 step 4).
func buildManifest(ctx context.Context, o *op) (State, error) {
	if o.stageDir == "" {
		return CheckConflicts, nil
	}
	m, err := ownership.BuildManifest(ctx, o.req.Name, o.req.Version, o.stageDir, o.inst.Root)
	if err != nil {
		return InstallError, err
	}
	o.prospective = m
	return CheckConflicts, nil
}

// checkConflicts queries the on-disk manifest database for every target
// path; with AllowOverwrite unset, any conflict aborts the install (spec.md
// §4.6, §4.7 step 5).
func checkConflicts(ctx context.Context, o *op) (State, error) {
	if o.prospective == nil {
		return PlaceFiles, nil
	}
	db, err := ownership.NewDatabase(o.inst.manifestDir())
	if err != nil {
		return InstallError, err
	}
	conflicts := db.CheckConflicts(o.prospective)
	if len(conflicts) > 0 && !o.req.AllowOverwrite {
		msgs := make([]string, len(conflicts))
		for i, c := range conflicts {
			msgs[i] = c.String()
		}
		return InstallError, &paxmodel.Error{
			Kind:    paxmodel.ErrFilesystem,
			Op:      "installer.checkConflicts",
			Message: fmt.Sprintf("%d file conflict(s): %s", len(conflicts), strings.Join(msgs, "; ")),
		}
	}
	o.conflicts = conflicts
	return PlaceFiles, nil
}

// placeFiles creates directories, symlinks, and regular files in a single
// pass, backing up any conflicting existing file first when AllowOverwrite
// is set (spec.md §4.7 step 6).
func placeFiles(ctx context.Context, o *op) (State, error) {
	if o.prospective == nil {
		return RunLdconfig, nil
	}
	if o.req.AllowOverwrite {
		for _, c := range o.conflicts {
			if c.Kind == ownership.FileOwnership || c.Kind == ownership.UntrackedFile {
				if _, err := os.Lstat(c.Path); err == nil {
					if _, err := ownership.BackupAndOverwrite(o.inst.backupDir(), c.Path); err != nil {
						return InstallError, err
					}
				}
			}
		}
	}

	for _, d := range o.prospective.Directories {
		if err := os.MkdirAll(d.Path, os.FileMode(d.Permissions)); err != nil {
			return InstallError, fmt.Errorf("installer: mkdir %s: %w", d.Path, err)
		}
	}
	for _, s := range o.prospective.Symlinks {
		if err := placeSymlink(s.Path, s.Target); err != nil {
			return InstallError, err
		}
	}
	for _, f := range o.prospective.Files {
		if err := placeFile(o.stageDir, o.inst.Root, f); err != nil {
			return InstallError, err
		}
	}
	o.placedRoot = o.inst.Root
	return RunLdconfig, nil
}

func placeSymlink(path, target string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("installer: symlink parent %s: %w", path, err)
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		os.Remove(path)
		err = os.Symlink(target, path)
		if err == nil || !os.IsExist(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("installer: symlink %s -> %s: %w", path, target, err)
	}
	return nil
}

func placeFile(stageDir, root string, f paxmodel.FileEntry) error {
	rel, err := filepath.Rel(root, f.Path)
	if err != nil {
		return fmt.Errorf("installer: compute stage source for %s: %w", f.Path, err)
	}
	src := filepath.Join(stageDir, rel)

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("installer: parent dir for %s: %w", f.Path, err)
	}
	os.Remove(f.Path)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("installer: open staged %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(f.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(f.Permissions))
	if err != nil {
		return fmt.Errorf("installer: create %s: %w", f.Path, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("installer: copy to %s: %w", f.Path, err)
	}
	return os.Chmod(f.Path, os.FileMode(f.Permissions))
}

// ldconfigDirs are the library directories that trigger a post-install
// ldconfig run (spec.md §4.7 step 8).
var ldconfigDirs = []string{"/lib", "/usr/lib", "/usr/local/lib"}

// runLdconfig runs the host ldconfig if any placed path lies under a
// library directory; failure is only a warning (spec.md §4.7 step 8).
func runLdconfig(ctx context.Context, o *op) (State, error) {
	if o.prospective == nil {
		return RunScriptlet, nil
	}
	needed := false
	for _, f := range o.prospective.Files {
		for _, d := range ldconfigDirs {
			if strings.HasPrefix(f.Path, filepath.Join(o.inst.Root, d)) {
				needed = true
			}
		}
	}
	if !needed {
		return RunScriptlet, nil
	}
	args := []string{}
	if o.inst.Root != "" {
		args = append(args, "--root", o.inst.Root)
	}
	cmd := exec.CommandContext(ctx, "ldconfig", args...)
	if err := cmd.Run(); err != nil {
		zlog.Warn(ctx).Err(err).Msg("ldconfig failed, continuing")
	}
	return RunScriptlet, nil
}

// runScriptlet runs the adapter's PostInstall script; non-zero exit is a
// warning, not a failure (spec.md §4.7 step 9).
func runScriptlet(ctx context.Context, o *op) (State, error) {
	if o.fetchedPath == "" {
		return Record, nil
	}
	a, err := adapterFor(o.req, o.fetchedPath)
	if err != nil {
		return InstallError, err
	}
	env := adapter.Env{Package: o.req.Name, Version: o.req.Version, BuildRoot: o.stageDir}
	if err := a.RunScript(ctx, adapter.PostInstall, env); err != nil {
		zlog.Warn(ctx).Err(err).Msg("post-install scriptlet failed, continuing")
	}
	return Record, nil
}

// record persists the FileManifest and prepares the PackageOperation to be
// appended to the active Transaction (spec.md §4.7 step 7/10).
func record(ctx context.Context, o *op) (State, error) {
	if o.prospective != nil {
		if err := ownership.SaveManifest(o.inst.manifestDir(), o.prospective); err != nil {
			return InstallError, err
		}
	}
	o.txOp = paxmodel.PackageOperation{
		Name:         o.req.Name,
		Version:      o.req.Version,
		Type:         o.req.Type,
		OldVersion:   o.req.OldVersion,
		ManifestPath: ownership.ManifestPath(o.inst.manifestDir(), o.req.Name),
	}
	return Commit, nil
}

// commit writes a single-operation [paxmodel.Transaction], releases the
// program lock, and transitions to Terminal.
func commit(ctx context.Context, o *op) (State, error) {
	tx := paxmodel.Transaction{
		ID:         newTxID(),
		Type:       o.req.Type,
		Status:     paxmodel.StatusCompleted,
		Operations: []paxmodel.PackageOperation{o.txOp},
		CreatedAt:  time.Now(),
	}
	if err := appendTransaction(o.inst.MetaDir, tx); err != nil {
		return InstallError, err
	}
	releaseLock(o.inst)
	return Terminal, nil
}

func releaseLock(i *Installer) {
	if i.lock == nil {
		return
	}
	if settings, err := config.Load(i.MetaDir); err == nil {
		settings.Locked = false
		config.Save(i.MetaDir, settings)
	}
	i.lock.Release()
	i.lock = nil
}

// rollbackPlaced undoes whatever this operation already placed on disk,
// used when a later state in the same op fails (distinct from rolling back
// a previously-committed, already-logged Transaction — see Rollback).
func (o *op) rollbackPlaced(ctx context.Context) error {
	defer releaseLock(o.inst)
	if o.prospective == nil {
		return nil
	}
	for _, f := range o.prospective.Files {
		if !underCriticalDir(o.inst.Root, f.Path) {
			os.Remove(f.Path)
		}
	}
	for _, s := range o.prospective.Symlinks {
		if !underCriticalDir(o.inst.Root, s.Path) {
			os.Remove(s.Path)
		}
	}
	return nil
}
