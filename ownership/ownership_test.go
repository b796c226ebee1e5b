package ownership

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oreonproject/pax"
)

func writeStage(t *testing.T, stage string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(stage, "usr", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stage, "usr", "bin", "hello"), []byte("hello"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("hello", filepath.Join(stage, "usr", "bin", "hello-link")); err != nil {
		t.Fatal(err)
	}
}

func TestBuildManifestClassifiesEntries(t *testing.T) {
	stage := t.TempDir()
	writeStage(t, stage)
	root := t.TempDir()

	m, err := BuildManifest(context.Background(), "hello", "1.0.0", stage, root)
	if err != nil {
		t.Fatalf("BuildManifest: %v", err)
	}
	if len(m.Files) != 1 {
		t.Fatalf("Files = %+v, want 1 entry", m.Files)
	}
	if len(m.Symlinks) != 1 {
		t.Fatalf("Symlinks = %+v, want 1 entry", m.Symlinks)
	}
	wantFile := filepath.Join(root, "usr", "bin", "hello")
	if m.Files[0].Path != wantFile {
		t.Errorf("Files[0].Path = %s, want %s", m.Files[0].Path, wantFile)
	}
	if m.Files[0].SHA256 == "" {
		t.Error("expected non-empty sha256")
	}
}

func TestManifestSaveLoadRoundTrip(t *testing.T) {
	stage := t.TempDir()
	writeStage(t, stage)
	root := t.TempDir()
	manifestDir := t.TempDir()

	m, err := BuildManifest(context.Background(), "hello", "1.0.0", stage, root)
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveManifest(manifestDir, m); err != nil {
		t.Fatalf("SaveManifest: %v", err)
	}
	got, err := LoadManifest(ManifestPath(manifestDir, "hello"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got.PackageName != m.PackageName || len(got.Files) != len(m.Files) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestCheckConflictsDetectsOwnershipAndUntracked(t *testing.T) {
	root := t.TempDir()
	manifestDir := t.TempDir()

	existing := &pax.FileManifest{
		PackageName: "alpha",
		Files: []pax.FileEntry{
			{Path: filepath.Join(root, "usr", "bin", "shared"), SHA256: "x"},
		},
	}
	if err := SaveManifest(manifestDir, existing); err != nil {
		t.Fatal(err)
	}

	// An untracked file that exists on disk but has no manifest entry.
	if err := os.MkdirAll(filepath.Join(root, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	untrackedPath := filepath.Join(root, "etc", "stray.conf")
	if err := os.WriteFile(untrackedPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := NewDatabase(manifestDir)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}

	prospective := &pax.FileManifest{
		PackageName: "beta",
		Files: []pax.FileEntry{
			{Path: filepath.Join(root, "usr", "bin", "shared")},
			{Path: untrackedPath},
		},
	}
	conflicts := db.CheckConflicts(prospective)
	if len(conflicts) != 2 {
		t.Fatalf("conflicts = %+v, want 2", conflicts)
	}
	var sawOwned, sawUntracked bool
	for _, c := range conflicts {
		switch c.Kind {
		case FileOwnership:
			sawOwned = c.OwnedBy == "alpha"
		case UntrackedFile:
			sawUntracked = true
		}
	}
	if !sawOwned || !sawUntracked {
		t.Errorf("conflicts = %+v, missing expected kinds", conflicts)
	}
}

func TestCheckConflictsSamePackageNoConflict(t *testing.T) {
	root := t.TempDir()
	manifestDir := t.TempDir()
	existing := &pax.FileManifest{
		PackageName: "alpha",
		Files:       []pax.FileEntry{{Path: filepath.Join(root, "bin", "x")}},
	}
	if err := SaveManifest(manifestDir, existing); err != nil {
		t.Fatal(err)
	}
	db, err := NewDatabase(manifestDir)
	if err != nil {
		t.Fatal(err)
	}
	// A reinstall/upgrade of the same package over its own prior files must
	// not be reported as a conflict.
	conflicts := db.CheckConflicts(existing)
	if len(conflicts) != 0 {
		t.Errorf("conflicts = %+v, want none for same-package overlap", conflicts)
	}
}

func TestBackupAndOverwriteSweepsOldBackups(t *testing.T) {
	dir := t.TempDir()
	backupDir := t.TempDir()
	for i := 0; i < maxBackupsPerFile+3; i++ {
		name := filepath.Join(backupDir, "conf_"+itoa(1000+i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	target := filepath.Join(dir, "conf")
	if err := os.WriteFile(target, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := BackupAndOverwrite(backupDir, target); err != nil {
		t.Fatalf("BackupAndOverwrite: %v", err)
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != maxBackupsPerFile {
		t.Errorf("backups remaining = %d, want %d", len(entries), maxBackupsPerFile)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
