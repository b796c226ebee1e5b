package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/config"
	"github.com/oreonproject/pax/isobuilder"
)

// Isocreate builds a bootable live image from a package list, optionally
// seeded by a template file (spec.md §6 `isocreate`, §4.10).
func Isocreate(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("isocreate", flag.ExitOnError)
	output := fs.String("output", "pax-live.iso", "path to write the finished ISO to")
	templatePath := fs.String("template", "", "optional template YAML listing packages/repositories/config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	packages := fs.Args()
	var tmpl *isobuilder.Template
	if *templatePath != "" {
		t, err := isobuilder.LoadTemplate(*templatePath)
		if err != nil {
			return err
		}
		tmpl = t
		packages = append(append([]string{}, t.Packages...), packages...)
	}
	if len(packages) == 0 {
		return fmt.Errorf("isocreate: no packages named (pass packages or --template)")
	}

	settings, err := config.Load(c.MetaDir)
	if err != nil {
		return err
	}
	origins := append([]pax.OriginKind{}, settings.Sources...)
	if tmpl != nil && len(tmpl.Repositories) > 0 {
		entries, err := config.ParseSourcesConf(strings.NewReader(strings.Join(tmpl.Repositories, "\n")))
		if err != nil {
			return fmt.Errorf("isocreate: parsing template repositories: %w", err)
		}
		for _, e := range entries {
			if !e.IsMirror {
				origins = append(origins, e.Origin)
			}
		}
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	opts := isobuilder.Options{
		OutputPath: *output,
		Packages:   packages,
		Origins:    origins,
		CacheDir:   filepath.Join(c.MetaDir, "repo_indexes"),
		Client:     client,
	}
	if err := isobuilder.Build(ctx, opts); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *output)
	return nil
}
