package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oreonproject/pax"
)

func TestLoadMissingReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Arch != ArchNoArch {
		t.Errorf("expected default arch NoArch, got %v", s.Arch)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Default()
	s.Arch = ArchX86_64v3
	s.Sources = []pax.OriginKind{
		{Tag: pax.OriginPax, URL: "https://repo.example.com/pax"},
		{Tag: pax.OriginPax, URL: "https://repo.example.com/pax"}, // duplicate, should dedupe
	}
	if err := Save(dir, s); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Arch != ArchX86_64v3 {
		t.Errorf("arch not round-tripped: %v", got.Arch)
	}
	if len(got.Sources) != 1 {
		t.Errorf("expected duplicate source to be deduped, got %d entries", len(got.Sources))
	}
}

func TestEnsureMetaDir(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureMetaDir(dir); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"manifests", "backups", "transactions", "repo_indexes"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected %s to exist: %v", sub, err)
		}
	}
}
