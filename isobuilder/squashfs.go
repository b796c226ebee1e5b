package isobuilder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// squashExclude is excluded from the rootfs image (spec.md §4.10 step 7).
var squashExclude = []string{"boot", "proc", "sys", "dev", "tmp", "run", "mnt"}

func buildSquashfs(ctx context.Context, rootfs, dest string) error {
	args := []string{rootfs, dest, "-noappend"}
	for _, d := range squashExclude {
		args = append(args, "-e", d)
	}
	cmd := exec.CommandContext(ctx, "mksquashfs", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("isobuilder: mksquashfs: %w: %s", err, out)
	}
	return nil
}

// stageBootFiles copies the discovered/synthesized kernel and initramfs
// into iso/boot/vmlinuz and iso/boot/initrd.img (spec.md §4.10 step 8).
func stageBootFiles(rootfs, isoDir, kernelPath, initrdPath string) error {
	bootDir := filepath.Join(isoDir, "boot")
	if err := os.MkdirAll(bootDir, 0o755); err != nil {
		return fmt.Errorf("isobuilder: create iso/boot: %w", err)
	}
	if err := copyFile(kernelPath, filepath.Join(bootDir, "vmlinuz"), 0o644); err != nil {
		return fmt.Errorf("isobuilder: staging kernel: %w", err)
	}
	if err := copyFile(initrdPath, filepath.Join(bootDir, "initrd.img"), 0o644); err != nil {
		return fmt.Errorf("isobuilder: staging initramfs: %w", err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
