package main

import (
	"context"
	"path/filepath"

	"github.com/oreonproject/pax/config"
	"github.com/oreonproject/pax/installer"
	"github.com/oreonproject/pax/ownership"
	"github.com/oreonproject/pax/repoindex"
	"github.com/oreonproject/pax/resolver"
)

func (c *commonConfig) manifestDir() string { return filepath.Join(c.MetaDir, "manifests") }

func (c *commonConfig) newInstaller() *installer.Installer {
	return installer.New(c.Root, c.MetaDir, c.Client)
}

// buildIndex loads settings for the active repository sources and returns
// their combined catalog (spec.md §4.4).
func buildIndex(ctx context.Context, c *commonConfig) (*repoindex.MultiRepoIndex, error) {
	s, err := config.Load(c.MetaDir)
	if err != nil {
		return nil, err
	}
	b := repoindex.NewBuilder(filepath.Join(c.MetaDir, "repo_indexes"), c.Client)
	return b.BuildAll(ctx, s.Sources)
}

func installedLookup(c *commonConfig) (resolver.InstalledLookup, error) {
	return ownership.LoadInstalledSet(c.manifestDir(), c.MetaDir)
}

func resolvePlan(ctx context.Context, c *commonConfig, names []string) ([]resolver.PlanEntry, error) {
	idx, err := buildIndex(ctx, c)
	if err != nil {
		return nil, err
	}
	lookup, err := installedLookup(c)
	if err != nil {
		return nil, err
	}
	roots := make([]resolver.Root, len(names))
	for i, n := range names {
		roots[i] = resolver.Root{Name: n}
	}
	return resolver.Resolve(ctx, roots, idx, lookup)
}
