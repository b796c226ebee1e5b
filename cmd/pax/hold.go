package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/config"
)

// Hold prevents a package from being changed by future installs/upgrades
// (spec.md §6 `hold <pkg>`, §4.8).
func Hold(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("hold", flag.ExitOnError)
	kind := fs.String("type", string(pax.HoldNoChange), "hold type: no_upgrade, no_downgrade, no_change")
	reason := fs.String("reason", "", "human-readable reason recorded with the hold")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("hold: exactly one package name required")
	}

	s := config.NewHoldStore(c.MetaDir)
	if err := s.Load(); err != nil {
		return err
	}
	s.Set(fs.Arg(0), pax.Hold{Type: pax.HoldKind(*kind), Reason: *reason})
	return s.Save()
}

// Unhold removes a previously-set hold (spec.md §6 `unhold <pkg>`).
func Unhold(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("unhold: exactly one package name required")
	}
	s := config.NewHoldStore(c.MetaDir)
	if err := s.Load(); err != nil {
		return err
	}
	s.Unhold(args[0])
	return s.Save()
}

// Pin locks a package to an exact version (spec.md §6 `pin <pkg>`, §4.8).
func Pin(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("pin: usage: pin <pkg> <version>")
	}
	s := config.NewVersionPinStore(c.MetaDir)
	if err := s.Load(); err != nil {
		return err
	}
	s.Pin(args[0], args[1])
	return s.Save()
}

// Unpin removes a version pin (spec.md §6 `unpin <pkg>`).
func Unpin(ctx context.Context, c *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("unpin: exactly one package name required")
	}
	s := config.NewVersionPinStore(c.MetaDir)
	if err := s.Load(); err != nil {
		return err
	}
	s.Unpin(args[0])
	return s.Save()
}
