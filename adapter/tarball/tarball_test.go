package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestTarGz(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	body := []byte("hello\n")
	if err := tw.WriteHeader(&tar.Header{Name: "bin/hello", Mode: 0o755, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractFilesTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTestTarGz(t, archive)

	dest := filepath.Join(dir, "dest")
	a := New(archive, "hello", "1.0.0")
	entries, err := a.ExtractFiles(context.Background(), dest)
	if err != nil {
		t.Fatalf("ExtractFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/bin/hello" {
		t.Fatalf("entries = %+v", entries)
	}
	got, err := os.ReadFile(filepath.Join(dest, "bin", "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hello\n")) {
		t.Errorf("content = %q", got)
	}
}

func TestExtractMetadataUsesCallerSuppliedFields(t *testing.T) {
	a := New("/nonexistent.tar.gz", "foo", "2.3.4")
	md, err := a.ExtractMetadata(context.Background())
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if md.Name != "foo" || md.Version != "2.3.4" {
		t.Errorf("md = %+v", md)
	}
}

func TestGetProvidesIsJustPackageName(t *testing.T) {
	a := New("/nonexistent.tar.gz", "foo", "1.0.0")
	provides, err := a.GetProvides(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(provides) != 1 || provides[0].Name != "foo" {
		t.Errorf("provides = %+v", provides)
	}
}

func TestUnrecognizedExtension(t *testing.T) {
	a := New("/tmp/archive.rar", "x", "1.0")
	if _, err := a.ExtractFiles(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for unrecognized extension")
	}
}
