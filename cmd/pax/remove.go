package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/oreonproject/pax"
)

// Remove uninstalls each named package, keeping a backup that `rollback`
// can restore (spec.md §6 `remove <pkg...>`).
func Remove(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return removeNamed(ctx, c, fs.Args(), pax.TxRemove)
}

// Purge runs the same removal as Remove (spec.md §6 `purge <pkg...>`) and
// differs only in the transaction type it records. It deletes the
// package's files and manifest; holds and version pins on the package are
// left in place, and a later rollback restores a purged package from its
// backup exactly as it does for a plain removal.
func Purge(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return removeNamed(ctx, c, fs.Args(), pax.TxPurge)
}

func removeNamed(ctx context.Context, c *commonConfig, names []string, typ pax.TransactionType) error {
	if len(names) == 0 {
		return fmt.Errorf("at least one package name required")
	}
	inst := c.newInstaller()
	for _, name := range names {
		fmt.Printf("removing %s\n", name)
		if err := inst.Remove(ctx, name, typ); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// Rollback reverses a completed transaction by ID (spec.md §6 `rollback
// <txid>`).
func Rollback(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("rollback: exactly one transaction id required")
	}
	inst := c.newInstaller()
	if err := inst.Rollback(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("transaction %s rolled back\n", args[0])
	return nil
}
