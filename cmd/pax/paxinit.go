package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oreonproject/pax/config"
)

// PaxInit writes a fresh settings.yaml and imports sources.conf if present,
// the one-time setup step before any other subcommand can run (spec.md §6
// `pax-init`).
func PaxInit(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("pax-init", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing settings.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settingsPath := filepath.Join(c.MetaDir, "settings.yaml")
	if _, err := os.Stat(settingsPath); err == nil && !*force {
		return fmt.Errorf("pax-init: %s already exists (use --force to overwrite)", settingsPath)
	}

	s := config.Default()

	confPath := filepath.Join(c.MetaDir, "sources.conf")
	if f, err := os.Open(confPath); err == nil {
		defer f.Close()
		entries, err := config.ParseSourcesConf(f)
		if err != nil {
			return fmt.Errorf("pax-init: parsing %s: %w", confPath, err)
		}
		for _, e := range entries {
			if e.IsMirror {
				if s.MirrorList == "" {
					s.MirrorList = e.Origin.URL
				}
				continue
			}
			s.Sources = append(s.Sources, e.Origin)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pax-init: %s: %w", confPath, err)
	}

	if err := config.Save(c.MetaDir, s); err != nil {
		return err
	}
	fmt.Printf("initialized pax metadata under %s\n", c.MetaDir)
	return nil
}
