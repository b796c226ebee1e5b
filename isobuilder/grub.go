package isobuilder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// grubCfgTemplate points at the staged kernel/initramfs (spec.md §4.10
// step 8: "Emit a GRUB config pointing to /boot/vmlinuz and
// /boot/initrd.img").
const grubCfgTemplate = `set timeout=5
set default=0

menuentry "pax live" {
	linux /boot/vmlinuz boot=live
	initrd /boot/initrd.img
}
`

func writeGrubConfig(isoDir string) error {
	dir := filepath.Join(isoDir, "boot", "grub")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("isobuilder: create boot/grub: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "grub.cfg"), []byte(grubCfgTemplate), 0o644)
}

// buildGrubRescueISO calls grub-mkrescue to produce the final ISO,
// distinguishing a missing binary (a [doctor] diagnostic) from a failed
// invocation (spec.md §9.1, "distinguishing 'tool missing' from 'tool
// failed'", supplemented from original_source/pax-builder/src/lib.rs).
func buildGrubRescueISO(ctx context.Context, isoDir, outputPath string) error {
	if _, err := exec.LookPath("grub-mkrescue"); err != nil {
		return fmt.Errorf("isobuilder: grub-mkrescue not found on PATH: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("isobuilder: create output dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, "grub-mkrescue", "-o", outputPath, isoDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("isobuilder: grub-mkrescue failed: %w: %s", err, out)
	}
	return nil
}
