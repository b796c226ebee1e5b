// Package isobuilder drives the live-image pipeline of spec.md §4.10:
// resolve a package list, install it into a synthetic rootfs, discover or
// synthesize a kernel/initramfs pair, and emit a bootable ISO via
// mksquashfs + grub-mkrescue.
package isobuilder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/trace"
	"strings"

	"github.com/quay/zlog"
	"gopkg.in/yaml.v2"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/installer"
	"github.com/oreonproject/pax/internal/doctor"
	"github.com/oreonproject/pax/repoindex"
	"github.com/oreonproject/pax/resolver"
)

// Template is the optional YAML document `isocreate --template` reads
// (spec.md §4.10 step 1: "packages, repositories, and config").
type Template struct {
	Packages     []string          `yaml:"packages"`
	Repositories []string          `yaml:"repositories"`
	Config       map[string]string `yaml:"config"`
}

// LoadTemplate parses a template file from path.
func LoadTemplate(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("isobuilder: reading template: %w", err)
	}
	var t Template
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("isobuilder: decoding template: %w", err)
	}
	return &t, nil
}

// Options configures one ISO build.
type Options struct {
	OutputPath string
	Packages   []string
	Origins    []pax.OriginKind
	CacheDir   string
	WorkDir    string // temp tree root; a fresh os.MkdirTemp dir if empty
	Client     *http.Client
}

// kernelNameFragments is what makes a resolved package "effectively the
// kernel" for build validation (spec.md §4.10: "names containing kernel,
// linux, or linux-image").
var kernelNameFragments = []string{"kernel", "linux", "linux-image"}

// InstalledLookup is satisfied against an empty synthetic rootfs: nothing
// is pre-installed, and holds/pins don't apply to a from-scratch image.
type emptyLookup struct{}

func (emptyLookup) Installed(string) (string, bool)   { return "", false }
func (emptyLookup) Hold(string) (pax.HoldKind, bool)  { return "", false }
func (emptyLookup) Pin(string) (string, bool)         { return "", false }

var _ resolver.InstalledLookup = emptyLookup{}

// Build runs the 8-step pipeline in spec.md §4.10 and leaves the finished
// ISO at opts.OutputPath.
func Build(ctx context.Context, opts Options) (err error) {
	defer trace.StartRegion(ctx, "isobuilder.Build").End()
	ctx = zlog.ContextWithValues(ctx, "component", "isobuilder.Build")

	if r := doctor.CheckSubset("mksquashfs", "grub-mkrescue", "ldconfig"); !r.OK() {
		return fmt.Errorf("isobuilder: %s", r)
	}

	work := opts.WorkDir
	if work == "" {
		work, err = os.MkdirTemp("", "pax-iso-*")
		if err != nil {
			return fmt.Errorf("isobuilder: create work dir: %w", err)
		}
		defer os.RemoveAll(work)
	}
	rootfs := filepath.Join(work, "rootfs")
	isoDir := filepath.Join(work, "iso")

	// Step 1: resolve the requested package list.
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	b := repoindex.NewBuilder(opts.CacheDir, client)
	idx, err := b.BuildAll(ctx, opts.Origins)
	if err != nil {
		return fmt.Errorf("isobuilder: building repo index: %w", err)
	}
	roots := make([]resolver.Root, len(opts.Packages))
	for i, p := range opts.Packages {
		roots[i] = resolver.Root{Name: p}
	}
	plan, err := resolver.Resolve(ctx, roots, idx, emptyLookup{})
	if err != nil {
		return fmt.Errorf("isobuilder: resolving packages: %w", err)
	}
	if !planHasKernel(plan) {
		return fmt.Errorf("isobuilder: resolved plan has no package matching kernel/linux/linux-image")
	}

	// Step 2: synthetic rootfs skeleton.
	if err := createSkeleton(rootfs); err != nil {
		return err
	}

	// Step 3: install every planned package into the rootfs.
	metaDir := filepath.Join(work, "pax-meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return fmt.Errorf("isobuilder: create meta dir: %w", err)
	}
	inst := installer.New(rootfs, metaDir, client)
	for _, entry := range plan {
		zlog.Info(ctx).Str("package", entry.Name).Str("version", entry.Version).Msg("installing into rootfs")
		req := installer.Request{
			Name:        entry.Name,
			Version:     entry.Version,
			Kind:        entry.Entry.Kind,
			Origin:      entry.Origin,
			DownloadURL: entry.Entry.DownloadURL,
			Type:        pax.TxInstall,
		}
		if err := inst.Install(ctx, req); err != nil {
			return fmt.Errorf("isobuilder: installing %s: %w", entry.Name, err)
		}
	}

	// Step 4: ldconfig + ABI-compat symlinks.
	if err := configureLdconfig(ctx, rootfs); err != nil {
		return err
	}

	// Step 5/6: kernel and initramfs discovery, falling back to synthesis.
	kernelPath, err := discoverKernel(rootfs)
	if err != nil {
		return err
	}
	initrdPath, err := discoverInitramfs(rootfs)
	if err != nil {
		return err
	}
	if initrdPath == "" {
		initrdPath = filepath.Join(rootfs, "boot", "initrd.img")
		if err := synthesizeInitramfs(ctx, rootfs, kernelPath, initrdPath); err != nil {
			return err
		}
	}

	// Step 7: squash the rootfs.
	if err := os.MkdirAll(filepath.Join(isoDir, "live"), 0o755); err != nil {
		return fmt.Errorf("isobuilder: create iso/live: %w", err)
	}
	squashPath := filepath.Join(isoDir, "live", "rootfs.squashfs")
	if err := buildSquashfs(ctx, rootfs, squashPath); err != nil {
		return err
	}

	// Step 8: GRUB config and ISO.
	if err := stageBootFiles(rootfs, isoDir, kernelPath, initrdPath); err != nil {
		return err
	}
	if err := writeGrubConfig(isoDir); err != nil {
		return err
	}
	return buildGrubRescueISO(ctx, isoDir, opts.OutputPath)
}

func planHasKernel(plan []resolver.PlanEntry) bool {
	for _, e := range plan {
		lower := strings.ToLower(e.Name)
		for _, frag := range kernelNameFragments {
			if strings.Contains(lower, frag) {
				return true
			}
		}
	}
	return false
}
