// Package resolver turns a set of requested packages into an ordered
// install plan against a [repoindex.MultiRepoIndex] (spec.md §4.5).
package resolver

import (
	"context"
	"fmt"
	"os/exec"
	"runtime/trace"
	"sort"

	"github.com/quay/zlog"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/internal/metrics"
	"github.com/oreonproject/pax/repoindex"
	"github.com/oreonproject/pax/version"
)

// Root is one top-level package the caller asked to resolve.
type Root struct {
	Name  string
	Range version.Range // Unrestricted if absent
}

// PlanEntry is one resolved node in the install plan, in dependency-first
// (build-then-runtime) order.
type PlanEntry struct {
	Name    string
	Version string
	Origin  pax.OriginKind
	Entry   repoindex.Entry
}

// InstalledLookup reports whether name is installed, and at which version,
// so provides-resolution can prefer an already-installed provider and
// holds/pins can compare against the installed set (spec.md §4.5/§4.8).
type InstalledLookup interface {
	Installed(name string) (version string, ok bool)
	Hold(name string) (pax.HoldKind, bool)
	Pin(name string) (version string, ok bool)
}

// Error is a resolution failure naming the offending package and the
// accumulated constraint that could not be satisfied.
type Error struct {
	Kind   string
	Name   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolver: %s: %s (%s)", e.Kind, e.Name, e.Detail)
}

type color int

const (
	white color = iota
	grey
	black
)

type queued struct {
	name string
	r    version.Range
}

// Resolve runs the algorithm in spec.md §4.5 against idx, returning a
// topologically-ordered plan: every dependency precedes its dependents.
func Resolve(ctx context.Context, roots []Root, idx *repoindex.MultiRepoIndex, installed InstalledLookup) ([]PlanEntry, error) {
	defer trace.StartRegion(ctx, "resolver.Resolve").End()

	constraints := map[string]version.Range{}
	colors := map[string]color{}
	resolved := map[string]PlanEntry{}
	var order []string
	edges := map[string][]string{} // dependent -> its dependencies, for the final topo sort
	resolvedAs := map[string]string{} // requested name -> resolved package name

	queue := make([]queued, 0, len(roots))
	for _, root := range roots {
		queue = append(queue, queued{name: root.Name, r: root.Range})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if colors[item.name] == black {
			if existing, ok := resolved[item.name]; ok {
				v, err := version.ParseGeneric(existing.Version)
				if err == nil && !item.r.Satisfies(v) {
					metrics.ResolveOutcomes.WithLabelValues("conflict").Inc()
					return nil, &Error{Kind: "VersionConflict", Name: item.name, Detail: fmt.Sprintf("resolved %s does not satisfy a later-discovered constraint %s", existing.Version, item.r)}
				}
			}
			continue
		}
		if colors[item.name] == grey {
			metrics.ResolveOutcomes.WithLabelValues("cycle").Inc()
			return nil, &Error{Kind: "CircularDependency", Name: item.name, Detail: "re-entered an in-progress node"}
		}

		acc, ok := constraints[item.name]
		if !ok {
			acc = version.Unrestricted
		}
		merged, ok := version.Negotiate(acc, item.r)
		if !ok {
			metrics.ResolveOutcomes.WithLabelValues("conflict").Inc()
			return nil, &Error{Kind: "ConstraintConflict", Name: item.name, Detail: "no version satisfies all accumulated ranges"}
		}
		constraints[item.name] = merged
		colors[item.name] = grey

		cand, err := pickCandidate(ctx, item.name, merged, idx, installed)
		if err != nil {
			metrics.ResolveOutcomes.WithLabelValues("no_such_version").Inc()
			return nil, err
		}

		if pin, ok := installed.Pin(cand.DisplayName); ok && pin != cand.Version {
			metrics.ResolveOutcomes.WithLabelValues("conflict").Inc()
			return nil, &Error{Kind: "PinConflict", Name: cand.DisplayName, Detail: fmt.Sprintf("pinned to %s, resolved %s", pin, cand.Version)}
		}
		if err := checkHold(cand.DisplayName, cand.Version, installed); err != nil {
			metrics.ResolveOutcomes.WithLabelValues("conflict").Inc()
			return nil, err
		}

		resolved[cand.DisplayName] = PlanEntry{Name: cand.DisplayName, Version: cand.Version, Origin: cand.Origin, Entry: cand.Entry}
		resolvedAs[item.name] = cand.DisplayName
		order = append(order, cand.DisplayName)
		colors[item.name] = black

		for _, dep := range cand.Entry.Dependencies {
			if dep.Tag == pax.DependVolatile {
				if _, err := exec.LookPath(dep.Name); err == nil {
					zlog.Debug(ctx).Str("volatile_dependency", dep.Name).Msg("satisfied by host binary")
					continue
				}
			}
			edges[cand.DisplayName] = append(edges[cand.DisplayName], dep.Name)
			queue = append(queue, queued{name: dep.Name, r: dep.Range})
		}
	}

	// Point each edge at the package resolved for it, so a provider
	// substituted for a virtual name is ordered before its dependents. A
	// package that provides something it also requires keeps the original
	// name on that edge.
	for n, deps := range edges {
		for k, d := range deps {
			if to, ok := resolvedAs[d]; ok && to != n {
				deps[k] = to
			}
		}
	}
	plan := orderPlan(order, resolved, edges)

	// Without a cycle orderPlan puts every dependency before its dependent;
	// a dependency at or after its dependent means a cycle.
	pos := make(map[string]int, len(plan))
	for k, e := range plan {
		pos[e.Name] = k
	}
	for k, e := range plan {
		for _, d := range edges[e.Name] {
			if p, ok := pos[d]; ok && p >= k {
				metrics.ResolveOutcomes.WithLabelValues("cycle").Inc()
				return nil, &Error{Kind: "CircularDependency", Name: e.Name, Detail: fmt.Sprintf("dependency cycle through %s", d)}
			}
		}
	}
	metrics.ResolveOutcomes.WithLabelValues("success").Inc()
	return plan, nil
}

func checkHold(name, candidateVersion string, installed InstalledLookup) error {
	hk, ok := installed.Hold(name)
	if !ok {
		return nil
	}
	instVer, isInstalled := installed.Installed(name)
	if !isInstalled {
		return nil
	}
	switch hk {
	case pax.HoldNoChange:
		if instVer != candidateVersion {
			return &Error{Kind: "HoldConflict", Name: name, Detail: "no-change hold blocks any version transition"}
		}
	case pax.HoldNoUpgrade:
		cmpV, _ := version.ParseGeneric(candidateVersion)
		instV, _ := version.ParseGeneric(instVer)
		if version.Less(instV, cmpV) {
			return &Error{Kind: "HoldConflict", Name: name, Detail: "no-upgrade hold blocks upgrade"}
		}
	case pax.HoldNoDowngrade:
		cmpV, _ := version.ParseGeneric(candidateVersion)
		instV, _ := version.ParseGeneric(instVer)
		if version.Less(cmpV, instV) {
			return &Error{Kind: "HoldConflict", Name: name, Detail: "no-downgrade hold blocks downgrade"}
		}
	}
	return nil
}

// pickCandidate selects the greatest-versioned candidate satisfying r,
// substituting through provides_pkg/provides_lib/provides_file when name
// matches no package directly (spec.md §4.5).
func pickCandidate(ctx context.Context, name string, r version.Range, idx *repoindex.MultiRepoIndex, installed InstalledLookup) (repoindex.Candidate, error) {
	candidates := idx.Lookup(name)
	if len(candidates) == 0 {
		providers := idx.ResolveProvides(name)
		if len(providers) == 0 {
			return repoindex.Candidate{}, &Error{Kind: "NoSuchVersion", Name: name, Detail: r.String()}
		}
		sort.Strings(providers)
		chosen := providers[0]
		for _, p := range providers {
			if v, ok := installed.Installed(p); ok {
				zlog.Debug(ctx).Str("dependency", name).Str("provider", p).Str("installed_version", v).Msg("provides resolved to already-installed package")
				chosen = p
				break
			}
		}
		return pickCandidate(ctx, chosen, r, idx, installed)
	}

	for _, c := range candidates {
		v, err := version.ParseGeneric(c.Version)
		if err != nil {
			continue
		}
		if r.Satisfies(v) {
			return c, nil
		}
	}
	return repoindex.Candidate{}, &Error{Kind: "NoSuchVersion", Name: name, Detail: r.String()}
}

// orderPlan produces the final build-then-runtime ordering: a dependency
// always precedes its dependents (spec.md §4.5 step 5). Ties are broken by
// name for determinism (testable property 3, spec.md §8).
func orderPlan(order []string, resolved map[string]PlanEntry, edges map[string][]string) []PlanEntry {
	names := append([]string(nil), order...)
	sort.Strings(names)

	visited := map[string]bool{}
	var out []PlanEntry
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		deps := append([]string(nil), edges[name]...)
		sort.Strings(deps)
		for _, d := range deps {
			if _, ok := resolved[d]; ok {
				visit(d)
			}
		}
		out = append(out, resolved[name])
	}
	for _, n := range names {
		visit(n)
	}
	return out
}
