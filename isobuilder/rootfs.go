package isobuilder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/quay/zlog"
)

// skeletonDirs is the Linux filesystem skeleton created before any package
// is installed (spec.md §4.10 step 2).
var skeletonDirs = []string{
	"bin", "sbin", "lib", "lib64", "etc", "var", "tmp", "run", "home", "root",
	"proc", "sys", "dev", "mnt", "media", "opt", "boot", "usr/bin", "usr/sbin",
	"usr/lib", "usr/lib64", "lib/modules",
}

func createSkeleton(rootfs string) error {
	for _, d := range skeletonDirs {
		if err := os.MkdirAll(filepath.Join(rootfs, d), 0o755); err != nil {
			return fmt.Errorf("isobuilder: create skeleton dir %s: %w", d, err)
		}
	}
	return nil
}

// abiCompatLinks is the narrow, data-driven table of known ABI-compatible
// library symlinks (spec.md §4.10 step 4, SPEC_FULL.md §4.10: "data-driven
// from a small static table rather than hardcoded branches").
var abiCompatLinks = []struct {
	dir, from, to string
}{
	{"lib", "libcrypt.so.1", "libcrypt.so.2"},
	{"lib64", "libcrypt.so.1", "libcrypt.so.2"},
	{"lib", "libtinfo.so.5", "libtinfo.so.6"},
	{"lib64", "libtinfo.so.5", "libtinfo.so.6"},
}

// configureLdconfig writes /etc/ld.so.conf, runs `ldconfig --root`, and
// adds the narrow set of ABI-compatibility symlinks (spec.md §4.10 step 4).
func configureLdconfig(ctx context.Context, rootfs string) error {
	conf := "/lib\n/lib64\n/usr/lib\n/usr/lib64\n"
	if err := os.WriteFile(filepath.Join(rootfs, "etc", "ld.so.conf"), []byte(conf), 0o644); err != nil {
		return fmt.Errorf("isobuilder: write ld.so.conf: %w", err)
	}

	// Make the dynamic linker resolvable at its canonical path even when a
	// package only shipped it under /usr/lib64 (spec.md §4.10 step 4).
	canonical := filepath.Join(rootfs, "lib64", "ld-linux-x86-64.so.2")
	if _, err := os.Lstat(canonical); err != nil {
		if alt := filepath.Join(rootfs, "usr", "lib64", "ld-linux-x86-64.so.2"); fileExists(alt) {
			if err := os.Symlink(alt, canonical); err != nil {
				zlog.Warn(ctx).Err(err).Msg("isobuilder: could not link dynamic loader")
			}
		}
	}

	for _, l := range abiCompatLinks {
		target := filepath.Join(rootfs, l.dir, l.to)
		if _, err := os.Lstat(target); err != nil {
			continue // the compatible version isn't present in this image
		}
		link := filepath.Join(rootfs, l.dir, l.from)
		if _, err := os.Lstat(link); err == nil {
			continue // already resolvable
		}
		if err := os.Symlink(l.to, link); err != nil {
			zlog.Warn(ctx).Err(err).Str("link", link).Msg("isobuilder: could not add ABI-compat symlink")
		}
	}

	cmd := exec.CommandContext(ctx, "ldconfig", "--root", rootfs)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("isobuilder: ldconfig --root %s: %w: %s", rootfs, err, out)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
