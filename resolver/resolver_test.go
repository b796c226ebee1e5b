package resolver

import (
	"context"
	"testing"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/repoindex"
	"github.com/oreonproject/pax/version"
)

// fakeInstalled is a minimal InstalledLookup for tests: nothing installed,
// no holds, no pins, unless populated.
type fakeInstalled struct {
	installed map[string]string
	holds     map[string]pax.HoldKind
	pins      map[string]string
}

func newFakeInstalled() *fakeInstalled {
	return &fakeInstalled{
		installed: map[string]string{},
		holds:     map[string]pax.HoldKind{},
		pins:      map[string]string{},
	}
}

func (f *fakeInstalled) Installed(name string) (string, bool) { v, ok := f.installed[name]; return v, ok }
func (f *fakeInstalled) Hold(name string) (pax.HoldKind, bool) { h, ok := f.holds[name]; return h, ok }
func (f *fakeInstalled) Pin(name string) (string, bool)        { v, ok := f.pins[name]; return v, ok }

func idxWith(entries ...struct {
	name     string
	ver      string
	deps     []pax.DependKind
	provides []string
}) *repoindex.MultiRepoIndex {
	idx := &repoindex.RepoIndex{
		Origin:       pax.OriginKind{Tag: pax.OriginPax, URL: "http://repo"},
		Packages:     map[string][]repoindex.Entry{},
		ProvidesPkg:  map[string][]string{},
		ProvidesLib:  map[string][]string{},
		ProvidesFile: map[string][]string{},
	}
	for _, e := range entries {
		key := e.name
		idx.Packages[key] = append(idx.Packages[key], repoindex.Entry{
			DisplayName:  e.name,
			Version:      e.ver,
			Kind:         pax.KindPAX,
			Dependencies: e.deps,
		})
		idx.ProvidesPkg[key] = append(idx.ProvidesPkg[key], e.name)
		for _, p := range e.provides {
			idx.ProvidesPkg[p] = append(idx.ProvidesPkg[p], e.name)
		}
	}
	return &repoindex.MultiRepoIndex{Indexes: []*repoindex.RepoIndex{idx}}
}

type entrySpec = struct {
	name     string
	ver      string
	deps     []pax.DependKind
	provides []string
}

func TestResolveSimpleTransitive(t *testing.T) {
	idx := idxWith(
		entrySpec{name: "a", ver: "1.0.0", deps: []pax.DependKind{pax.Specific("b", version.Range{Lower: version.Bound{Kind: version.Ge, Version: mustParse(t, "2.0.0")}, Upper: version.Bound{Kind: version.Lt, Version: mustParse(t, "3.0.0")}})}},
		entrySpec{name: "b", ver: "2.1.0"},
		entrySpec{name: "b", ver: "3.0.0"},
	)
	plan, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, newFakeInstalled())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan) != 2 || plan[0].Name != "b" || plan[1].Name != "a" {
		t.Fatalf("plan = %+v, want [b, a] with b first", plan)
	}
	if plan[0].Version != "2.1.0" {
		t.Errorf("b version = %s, want 2.1.0 (3.0.0 excluded by <3.0.0 constraint)", plan[0].Version)
	}
}

func TestResolveCircularDependency(t *testing.T) {
	idx := idxWith(
		entrySpec{name: "a", ver: "1.0.0", deps: []pax.DependKind{pax.Latest("b")}},
		entrySpec{name: "b", ver: "1.0.0", deps: []pax.DependKind{pax.Latest("a")}},
	)
	_, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, newFakeInstalled())
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != "CircularDependency" {
		t.Errorf("err = %v, want CircularDependency", err)
	}
}

func TestResolveProvidesSubstitution(t *testing.T) {
	idx := idxWith(
		entrySpec{name: "a", ver: "1.0.0", deps: []pax.DependKind{pax.Latest("webserver")}},
		entrySpec{name: "nginx", ver: "1.2.0", provides: []string{"webserver"}},
	)
	plan, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, newFakeInstalled())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var gotNginx bool
	for _, p := range plan {
		if p.Name == "nginx" {
			gotNginx = true
		}
	}
	if !gotNginx {
		t.Errorf("plan = %+v, expected nginx substituted for webserver", plan)
	}
}

func TestResolveNoSuchVersion(t *testing.T) {
	idx := idxWith(entrySpec{name: "a", ver: "1.0.0"})
	_, err := Resolve(context.Background(), []Root{{Name: "missing"}}, idx, newFakeInstalled())
	if err == nil {
		t.Fatal("expected NoSuchVersion error")
	}
}

func TestResolveHoldNoUpgradeBlocksUpgrade(t *testing.T) {
	idx := idxWith(entrySpec{name: "a", ver: "2.0.0"})
	inst := newFakeInstalled()
	inst.installed["a"] = "1.0.0"
	inst.holds["a"] = pax.HoldNoUpgrade
	_, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, inst)
	if err == nil {
		t.Fatal("expected hold conflict")
	}
}

func TestResolveDeterministic(t *testing.T) {
	idx := idxWith(
		entrySpec{name: "a", ver: "1.0.0", deps: []pax.DependKind{pax.Latest("b"), pax.Latest("c")}},
		entrySpec{name: "b", ver: "1.0.0"},
		entrySpec{name: "c", ver: "1.0.0"},
	)
	p1, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, newFakeInstalled())
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Resolve(context.Background(), []Root{{Name: "a"}}, idx, newFakeInstalled())
	if err != nil {
		t.Fatal(err)
	}
	if len(p1) != len(p2) {
		t.Fatalf("non-deterministic plan lengths: %d vs %d", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i].Name != p2[i].Name {
			t.Fatalf("non-deterministic plan order at %d: %s vs %s", i, p1[i].Name, p2[i].Name)
		}
	}
}

func mustParse(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.ParseGeneric(s)
	if err != nil {
		t.Fatalf("ParseGeneric(%q): %v", s, err)
	}
	return v
}
