package isobuilder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// minCandidateSize is the size threshold below which a name match is
// assumed to be a stub or symlink rather than a real kernel/initramfs
// image (spec.md §4.10 steps 5/6: "larger than 1 MiB").
const minCandidateSize = 1 << 20

var kernelPrefixes = []string{"vmlinuz", "vmlinux", "bzimage", "kernel"}
var initramfsPrefixes = []string{"initrd", "initramfs"}

// discoverKernel scans /boot, then the whole rootfs, for a file whose name
// matches one of [kernelPrefixes] and whose size exceeds [minCandidateSize].
func discoverKernel(rootfs string) (string, error) {
	if p := findByPrefix(filepath.Join(rootfs, "boot"), kernelPrefixes); p != "" {
		return p, nil
	}
	if p := findByPrefix(rootfs, kernelPrefixes); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("isobuilder: no kernel image found (looked for %v under /boot and rootfs)", kernelPrefixes)
}

// discoverInitramfs is the same scheme as [discoverKernel], but returns ""
// rather than an error when nothing is found — the caller synthesizes a
// fallback in that case (spec.md §4.10 step 6).
func discoverInitramfs(rootfs string) (string, error) {
	if p := findByPrefix(filepath.Join(rootfs, "boot"), initramfsPrefixes); p != "" {
		return p, nil
	}
	if p := findByPrefix(rootfs, initramfsPrefixes); p != "" {
		return p, nil
	}
	return "", nil
}

func findByPrefix(dir string, prefixes []string) string {
	var found string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != "" || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				if info, err := d.Info(); err == nil && info.Size() > minCandidateSize {
					found = path
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	return found
}

// modulesDirFor returns /lib/modules/<kver> if it exists for the kernel at
// kernelPath, cross-referencing the version embedded in its filename
// (spec.md §4.10 step 5: "cross-reference with /lib/modules/<kver> if
// present").
func modulesDirFor(rootfs, kernelPath string) string {
	base := filepath.Base(kernelPath)
	for _, p := range kernelPrefixes {
		if strings.HasPrefix(strings.ToLower(base), p) {
			kver := strings.TrimPrefix(base, base[:len(p)])
			kver = strings.Trim(kver, "-_")
			if kver == "" {
				break
			}
			dir := filepath.Join(rootfs, "lib", "modules", kver)
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				return dir
			}
		}
	}
	return ""
}
