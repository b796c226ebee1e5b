package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/oreonproject/pax"
)

// Install resolves and installs every named package (spec.md §6
// `install <pkg...>`).
func Install(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	allowOverwrite := fs.Bool("allow-overwrite", false, "back up and overwrite files owned by another package")
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		return fmt.Errorf("install: at least one package name required")
	}

	plan, err := resolvePlan(ctx, c, names)
	if err != nil {
		return err
	}
	inst := c.newInstaller()
	for _, e := range plan {
		req := pax.TxInstall
		fmt.Printf("installing %s %s\n", e.Name, e.Version)
		if err := inst.Install(ctx, buildRequest(e, req, *allowOverwrite)); err != nil {
			return fmt.Errorf("install %s: %w", e.Name, err)
		}
	}
	return nil
}

// Upgrade resolves the latest satisfying version of each named package (or
// every installed package if none is named) and installs over the current
// one (spec.md §6 `upgrade [pkg...]`).
func Upgrade(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	names := fs.Args()
	if len(names) == 0 {
		lookup, err := installedLookup(c)
		if err != nil {
			return err
		}
		is, ok := lookup.(interface{ Names() []string })
		if ok {
			names = is.Names()
		}
	}
	if len(names) == 0 {
		fmt.Println("nothing to upgrade")
		return nil
	}

	plan, err := resolvePlan(ctx, c, names)
	if err != nil {
		return err
	}
	lookup, err := installedLookup(c)
	if err != nil {
		return err
	}
	inst := c.newInstaller()
	for _, e := range plan {
		old, ok := lookup.Installed(e.Name)
		if ok && old == e.Version {
			continue
		}
		req := buildRequest(e, pax.TxUpgrade, false)
		req.OldVersion = old
		fmt.Printf("upgrading %s %s -> %s\n", e.Name, old, e.Version)
		if err := inst.Install(ctx, req); err != nil {
			return fmt.Errorf("upgrade %s: %w", e.Name, err)
		}
	}
	return nil
}

// Update refreshes every configured repository's index without installing
// anything (spec.md §6 `update`).
func Update(ctx context.Context, c *commonConfig, args []string) error {
	_, err := buildIndex(ctx, c)
	if err != nil {
		return err
	}
	fmt.Println("repository indexes refreshed")
	return nil
}
