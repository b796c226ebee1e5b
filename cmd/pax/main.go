// Command pax is the CLI dispatcher for the package manager: a thin tree
// of named actions over the resolver, installer, repoindex, config, and
// ownership packages (spec.md §6, SPEC_FULL.md §4.11), modeled on
// cmd/cctool's use of flag.NewFlagSet per subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oreonproject/pax/config"
)

type commonConfig struct {
	MetaDir string
	Root    string // PAX_ROOT; "" for the host
	Client  *http.Client
}

type subcmd func(context.Context, *commonConfig, []string) error

var subcommands = map[string]subcmd{
	"install":   Install,
	"remove":    Remove,
	"purge":     Purge,
	"upgrade":   Upgrade,
	"update":    Update,
	"search":    Search,
	"info":      Info,
	"list":      List,
	"hold":      Hold,
	"unhold":    Unhold,
	"pin":       Pin,
	"unpin":     Unpin,
	"rollback":  Rollback,
	"compile":   Compile,
	"isocreate": Isocreate,
	"pax-init":  PaxInit,
	"doctor":    Doctor,
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		<-ch
		cancel()
	}()

	fs := flag.NewFlagSet("pax", flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s <command> [args]\n\nCommands:\n", os.Args[0])
		for name := range subcommands {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}
	metaDir := fs.String("meta-dir", config.MetaDir(), "pax metadata directory")
	root := fs.String("root", os.Getenv("PAX_ROOT"), "install root (PAX_ROOT)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := subcommands[name]
	if !ok {
		fs.Usage()
		if name != "" {
			fmt.Fprintf(os.Stderr, "\nunknown command %q\n", name)
		}
		return 2
	}

	if err := config.EnsureMetaDir(*metaDir); err != nil {
		log.Print(err)
		return 1
	}
	cfg := &commonConfig{MetaDir: *metaDir, Root: *root, Client: http.DefaultClient}

	if err := cmd(ctx, cfg, fs.Args()[1:]); err != nil {
		log.Print(err)
		return 1
	}
	return 0
}
