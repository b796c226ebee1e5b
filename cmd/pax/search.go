package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oreonproject/pax"
)

// Search lists every package whose name contains pattern (spec.md §6
// `search <pattern>`).
func Search(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("search: exactly one pattern required")
	}
	pattern := strings.ToLower(args[0])

	idx, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	var names []string
	seen := map[string]bool{}
	for _, ri := range idx.Indexes {
		for name := range ri.Packages {
			if strings.Contains(name, pattern) && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	for _, name := range names {
		cands := idx.Lookup(name)
		if len(cands) == 0 {
			continue
		}
		fmt.Printf("%s  %s\n", name, cands[0].Version)
	}
	return nil
}

// Info prints the available versions and dependencies for one package
// (spec.md §6 `info <pkg>`).
func Info(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("info: exactly one package name required")
	}
	idx, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	cands := idx.Lookup(args[0])
	if len(cands) == 0 {
		return fmt.Errorf("info: %s not found in any configured source", args[0])
	}
	for _, cand := range cands {
		purl := pax.PackageURL(cand.Kind, args[0], cand.Version, "")
		fmt.Printf("%s %s (%s) via %s\n", args[0], cand.Version, cand.Kind, cand.Origin.Tag)
		fmt.Printf("  purl: %s\n", purl.ToString())
		for _, dep := range cand.Dependencies {
			fmt.Printf("  depends: %s\n", dep.Name)
		}
	}
	return nil
}

// List shows every installed package and version (spec.md §6 `list`).
func List(ctx context.Context, c *commonConfig, args []string) error {
	lookup, err := installedLookup(c)
	if err != nil {
		return err
	}
	is, ok := lookup.(interface{ Names() []string })
	if !ok {
		return fmt.Errorf("list: installed set does not support enumeration")
	}
	names := is.Names()
	sort.Strings(names)
	for _, name := range names {
		v, _ := lookup.Installed(name)
		fmt.Printf("%s %s\n", name, v)
	}
	return nil
}
