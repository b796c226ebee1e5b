package repoindex

import (
	"context"
	"testing"
	"time"

	"github.com/oreonproject/pax"
)

func TestAddPackageNormalizesKeyCase(t *testing.T) {
	idx := emptyIndex(pax.OriginKind{Tag: pax.OriginRpm})
	addPackage(idx, "MyPkg", "1.0.0", pax.KindRPM, "http://x/MyPkg.rpm", []string{"libfoo.so.1", "/usr/bin/mypkg", "myalias"}, nil)

	entries, ok := idx.Packages["mypkg"]
	if !ok || len(entries) != 1 {
		t.Fatalf("Packages[mypkg] = %+v, ok=%v", entries, ok)
	}
	if entries[0].DisplayName != "MyPkg" {
		t.Errorf("DisplayName = %q, want original case preserved", entries[0].DisplayName)
	}
	if len(idx.ProvidesLib["libfoo.so.1"]) != 1 {
		t.Errorf("ProvidesLib missing libfoo.so.1: %+v", idx.ProvidesLib)
	}
	if len(idx.ProvidesFile["/usr/bin/mypkg"]) != 1 {
		t.Errorf("ProvidesFile missing /usr/bin/mypkg: %+v", idx.ProvidesFile)
	}
	if len(idx.ProvidesPkg["myalias"]) != 1 {
		t.Errorf("ProvidesPkg missing myalias: %+v", idx.ProvidesPkg)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, nil)
	origin := pax.OriginKind{Tag: pax.OriginLocal, LocalPath: "/srv/repo"}

	idx, err := b.LoadOrBuild(context.Background(), origin)
	if err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if len(idx.Packages) != 0 {
		t.Fatalf("expected empty index for catalog-less origin, got %+v", idx.Packages)
	}

	cached, err := b.loadCache(b.cachePath(origin))
	if err != nil {
		t.Fatalf("loadCache: %v", err)
	}
	if cached.Origin.Tag != origin.Tag {
		t.Errorf("cached origin = %+v", cached.Origin)
	}
}

func TestLookupSortsVersionDescending(t *testing.T) {
	idxA := emptyIndex(pax.OriginKind{Tag: pax.OriginRpm, URL: "http://a"})
	addPackage(idxA, "foo", "1.2.0", pax.KindRPM, "", nil, nil)
	addPackage(idxA, "foo", "1.10.0", pax.KindRPM, "", nil, nil)
	sortIndexVersionsDescending(idxA)

	m := &MultiRepoIndex{Indexes: []*RepoIndex{idxA}}
	entries := m.Lookup("FOO")
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Version != "1.10.0" {
		t.Errorf("entries[0].Version = %q, want 1.10.0 (structural, not lexical, compare)", entries[0].Version)
	}
}

func TestLoadOrBuildHonorsTTL(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, nil)
	origin := pax.OriginKind{Tag: pax.OriginLocal, LocalPath: "/srv/repo2"}
	idx := emptyIndex(origin)
	idx.BuiltAt = time.Now().Add(-time.Minute)
	if err := b.saveCache(b.cachePath(origin), idx); err != nil {
		t.Fatal(err)
	}
	got, err := b.LoadOrBuild(context.Background(), origin)
	if err != nil {
		t.Fatal(err)
	}
	if !got.BuiltAt.Equal(idx.BuiltAt) {
		t.Errorf("expected cached BuiltAt to be reused within TTL, got %v want %v", got.BuiltAt, idx.BuiltAt)
	}
}
