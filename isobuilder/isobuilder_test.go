package isobuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oreonproject/pax/repoindex"
	"github.com/oreonproject/pax/resolver"
)

func TestCreateSkeletonMakesExpectedDirs(t *testing.T) {
	dir := t.TempDir()
	if err := createSkeleton(dir); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"bin", "etc", "usr/lib", "proc"} {
		if fi, err := os.Stat(filepath.Join(dir, d)); err != nil || !fi.IsDir() {
			t.Errorf("expected directory %s to exist", d)
		}
	}
}

func TestDiscoverKernelRequiresMinimumSize(t *testing.T) {
	dir := t.TempDir()
	boot := filepath.Join(dir, "boot")
	os.MkdirAll(boot, 0o755)

	small := make([]byte, 1024)
	os.WriteFile(filepath.Join(boot, "vmlinuz-stub"), small, 0o644)
	if _, err := discoverKernel(dir); err == nil {
		t.Fatal("expected no kernel found for an undersized candidate")
	}

	big := make([]byte, minCandidateSize+1)
	os.WriteFile(filepath.Join(boot, "vmlinuz-6.1"), big, 0o644)
	p, err := discoverKernel(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "vmlinuz-6.1" {
		t.Errorf("expected to find vmlinuz-6.1, got %s", p)
	}
}

func TestDiscoverInitramfsReturnsEmptyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	p, err := discoverInitramfs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if p != "" {
		t.Errorf("expected no initramfs found, got %s", p)
	}
}

func TestPlanHasKernelMatchesNameFragments(t *testing.T) {
	plan := []resolver.PlanEntry{
		{Name: "bash", Entry: repoindex.Entry{Version: "5.1"}},
		{Name: "linux-image-generic", Entry: repoindex.Entry{Version: "6.1"}},
	}
	if !planHasKernel(plan) {
		t.Fatal("expected linux-image-generic to satisfy the kernel requirement")
	}

	noKernel := plan[:1]
	if planHasKernel(noKernel) {
		t.Fatal("expected no kernel match without a kernel-like package")
	}
}

func TestMatchesModuleName(t *testing.T) {
	cases := map[string]bool{
		"squashfs.ko":     true,
		"squashfs.ko.xz":  true,
		"overlay.ko.zst":  false,
		"loop.ko":         false,
	}
	for name, want := range cases {
		if got := matchesModuleName(name, "squashfs"); got != want {
			t.Errorf("matchesModuleName(%q, squashfs) = %v, want %v", name, got, want)
		}
	}
}
