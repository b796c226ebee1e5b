package repoindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/version"
)

// paxCatalog is the decoded form of a PAX origin's "packages.json": a flat
// list of package names mapped to their latest known version, used only to
// discover which per-package ".paxmeta" documents to fetch.
type paxCatalog struct {
	Packages map[string]string `json:"packages"`
}

// paxMeta mirrors adapter/pax.Meta's on-disk shape, duplicated here rather
// than imported to avoid a repoindex -> adapter/pax dependency edge (a repo
// index never needs to open an actual archive).
type paxMeta struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description" json:"description"`
	Provides    []string `yaml:"provides" json:"provides"`
	Depends     []string `yaml:"depends" json:"depends"`
}

// parseDependString parses pax's "name", "name>=v", "name>=v,<v2"
// dependency strings into a [pax.DependKind] (spec.md §4.3).
func parseDependString(s string) pax.DependKind {
	i := strings.IndexAny(s, "<>=")
	if i < 0 {
		return pax.Latest(s)
	}
	name := s[:i]
	r := version.Unrestricted
	for _, clause := range strings.Split(s[i:], ",") {
		switch {
		case strings.HasPrefix(clause, ">="):
			if v, err := version.ParseGeneric(clause[2:]); err == nil {
				r.Lower = version.Bound{Kind: version.Ge, Version: v}
			}
		case strings.HasPrefix(clause, ">"):
			if v, err := version.ParseGeneric(clause[1:]); err == nil {
				r.Lower = version.Bound{Kind: version.Gt, Version: v}
			}
		case strings.HasPrefix(clause, "<="):
			if v, err := version.ParseGeneric(clause[2:]); err == nil {
				r.Upper = version.Bound{Kind: version.Le, Version: v}
			}
		case strings.HasPrefix(clause, "<"):
			if v, err := version.ParseGeneric(clause[1:]); err == nil {
				r.Upper = version.Bound{Kind: version.Lt, Version: v}
			}
		case strings.HasPrefix(clause, "="):
			if v, err := version.ParseGeneric(clause[1:]); err == nil {
				r.Lower = version.Bound{Kind: version.Eq, Version: v}
				r.Upper = version.Bound{Kind: version.Eq, Version: v}
			}
		}
	}
	return pax.Specific(name, r)
}

// buildPax builds a [RepoIndex] from a PAX origin's packages.json plus a
// concurrent per-package metadata fetch (spec.md §4.4 step 3).
func (b *Builder) buildPax(ctx context.Context, origin pax.OriginKind) (*RepoIndex, error) {
	base := strings.TrimRight(origin.URL, "/")
	r, err := b.get(ctx, base+"/packages.json")
	if err != nil {
		return nil, err
	}
	var cat paxCatalog
	err = json.NewDecoder(r).Decode(&cat)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("repoindex: decoding packages.json: %w", err)
	}

	idx := emptyIndex(origin)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for name := range cat.Packages {
		name := name
		g.Go(func() error {
			m, err := b.fetchPaxMeta(gctx, base, name)
			if err != nil {
				// One missing/malformed .paxmeta shouldn't sink the whole
				// catalog build.
				return nil
			}
			deps := make([]pax.DependKind, 0, len(m.Depends))
			for _, d := range m.Depends {
				deps = append(deps, parseDependString(d))
			}
			mu.Lock()
			addPackage(idx, m.Name, m.Version, pax.KindPAX, base+"/"+name+".pax", m.Provides, deps)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortIndexVersionsDescending(idx)
	return idx, nil
}

func (b *Builder) fetchPaxMeta(ctx context.Context, base, name string) (*paxMeta, error) {
	r, err := b.get(ctx, base+"/"+name+".paxmeta")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var m paxMeta
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("repoindex: decoding %s.paxmeta: %w", name, err)
	}
	return &m, nil
}
