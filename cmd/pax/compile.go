package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/builder"
	"github.com/oreonproject/pax/installer"
)

// Compile builds a .pax archive from a source recipe and installs it
// (spec.md §6 `compile <url|path>`). The argument is either a local
// ".paxmeta" path, a direct URL to one, or a GitHub repository URL.
func Compile(ctx context.Context, c *commonConfig, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	outDir := fs.String("out", c.MetaDir+"/built", "directory to write the built .pax archive to")
	noInstall := fs.Bool("no-install", false, "build the archive but do not install it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("compile: usage: compile <url|path>")
	}
	if os.Geteuid() != 0 {
		return fmt.Errorf("compile: must be run as root")
	}
	source := fs.Arg(0)

	recipe, err := builder.LoadRecipe(ctx, source, c.Client)
	if err != nil {
		return err
	}
	fmt.Printf("=== Building %s %s ===\n", recipe.Name, recipe.Version)

	workDir, err := os.MkdirTemp("", "pax-compile-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	archivePath, err := builder.Build(ctx, recipe, c.Client, workDir, *outDir)
	if err != nil {
		return err
	}
	fmt.Printf("built %s\n", archivePath)
	if *noInstall {
		return nil
	}

	inst := c.newInstaller()
	req := installer.Request{
		Name:        recipe.Name,
		Version:     recipe.Version,
		Kind:        pax.KindPAX,
		DownloadURL: "file://" + archivePath,
		Type:        pax.TxInstall,
	}
	if err := inst.Install(ctx, req); err != nil {
		return fmt.Errorf("compile: install %s: %w", recipe.Name, err)
	}
	fmt.Printf("installed %s %s\n", recipe.Name, recipe.Version)
	return nil
}
