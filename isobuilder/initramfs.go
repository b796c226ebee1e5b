package isobuilder

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cavaliergopher/cpio"

	"github.com/oreonproject/pax/internal/doctor"
)

// Raw cpio "newc" mode bits (the on-disk st_mode field), used directly
// since [cpio.FileMode] is that raw field, not Go's [os.FileMode] layout.
const (
	cpioModeDir = 0o040000
	cpioModeReg = 0o100000
	cpioModeLnk = 0o120000
)

// initModules is the set of kernel modules the synthesized init needs to
// mount the live image (spec.md §4.10 step 6).
var initModules = []string{"squashfs", "isofs", "overlay", "loop"}

// initScript is the busybox-rooted init run as PID 1 by the fallback
// initramfs: mount the ISO, mount the squashfs, set up an overlay upper,
// and switch_root into /sbin/init (spec.md §4.10 step 6).
const initScript = `#!/bin/busybox sh
/bin/busybox mkdir -p /proc /sys /dev /mnt/cdrom /mnt/squash /mnt/overlay/upper /mnt/overlay/work /newroot
/bin/busybox mount -t proc proc /proc
/bin/busybox mount -t sysfs sysfs /sys
/bin/busybox mount -t devtmpfs devtmpfs /dev
/bin/busybox mount -t iso9660 -o ro /dev/sr0 /mnt/cdrom || /bin/busybox mount -t iso9660 -o ro /dev/cdrom /mnt/cdrom
/bin/busybox mount -t squashfs -o loop /mnt/cdrom/live/rootfs.squashfs /mnt/squash
/bin/busybox mount -t overlay overlay -o lowerdir=/mnt/squash,upperdir=/mnt/overlay/upper,workdir=/mnt/overlay/work /newroot
exec /bin/busybox switch_root /newroot /sbin/init
`

// synthesizeInitramfs builds a gzip-compressed cpio "newc" archive rooted
// at a static busybox, containing the modules in [initModules] (copied
// from rootfs's /lib/modules/<kver> when present) and [initScript] as
// /init, and writes it to dest.
func synthesizeInitramfs(ctx context.Context, rootfs, kernelPath, dest string) error {
	if r := doctor.CheckSubset("busybox"); !r.OK() {
		return fmt.Errorf("isobuilder: %s", r)
	}
	busybox, err := exec.LookPath("busybox")
	if err != nil {
		return fmt.Errorf("isobuilder: locating busybox: %w", err)
	}

	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)

	for _, dir := range []string{"bin", "sbin", "proc", "sys", "dev", "mnt", "newroot", "lib/modules"} {
		if err := w.WriteHeader(&cpio.Header{Name: dir, Mode: cpioModeDir | 0o755}); err != nil {
			return fmt.Errorf("isobuilder: cpio dir %s: %w", dir, err)
		}
	}

	bbData, err := os.ReadFile(busybox)
	if err != nil {
		return fmt.Errorf("isobuilder: reading busybox: %w", err)
	}
	if err := writeCpioFile(w, "bin/busybox", cpioModeReg|0o755, bbData); err != nil {
		return err
	}
	if err := writeCpioFile(w, "init", cpioModeReg|0o755, []byte(initScript)); err != nil {
		return err
	}

	if mdir := modulesDirFor(rootfs, kernelPath); mdir != "" {
		for _, mod := range initModules {
			if err := copyModule(w, mdir, mod); err != nil {
				return err
			}
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("isobuilder: closing cpio archive: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("isobuilder: create initramfs: %w", err)
	}
	defer out.Close()
	gw := gzip.NewWriter(out)
	if _, err := gw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("isobuilder: compressing initramfs: %w", err)
	}
	return gw.Close()
}

func writeCpioFile(w *cpio.Writer, name string, mode int64, data []byte) error {
	if err := w.WriteHeader(&cpio.Header{Name: name, Mode: cpio.FileMode(mode), Size: int64(len(data))}); err != nil {
		return fmt.Errorf("isobuilder: cpio header %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("isobuilder: cpio write %s: %w", name, err)
	}
	return nil
}

// copyModule finds a .ko (or .ko.xz/.ko.zst/.ko.gz) file for name anywhere
// under modulesDir and writes its bytes into the cpio archive as found; a
// compressed module stays compressed.
func copyModule(w *cpio.Writer, modulesDir, name string) error {
	var found string
	filepath.WalkDir(modulesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if matchesModuleName(d.Name(), name) {
			found = path
		}
		return nil
	})
	if found == "" {
		return nil // module not present in this image; init script tolerates absence
	}
	data, err := os.ReadFile(found)
	if err != nil {
		return fmt.Errorf("isobuilder: reading module %s: %w", found, err)
	}
	return writeCpioFile(w, filepath.Join("lib/modules", filepath.Base(found)), cpioModeReg|0o644, data)
}

func matchesModuleName(fileName, modName string) bool {
	base := fileName
	for _, suffix := range []string{".ko", ".ko.xz", ".ko.zst", ".ko.gz"} {
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			return base[:len(base)-len(suffix)] == modName
		}
	}
	return false
}
