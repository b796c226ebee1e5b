package installer

import "path/filepath"

// criticalDirs are never removed by the remover even if a manifest claims
// them (spec.md §4.7: "Critical system directories ... are never removed by
// the remover even if claimed").
var criticalDirs = []string{
	"/", "/bin", "/sbin", "/lib", "/lib64",
	"/usr", "/usr/bin", "/usr/sbin", "/usr/lib", "/usr/lib64",
	"/etc", "/var", "/tmp", "/home", "/root",
	"/proc", "/sys", "/dev", "/mnt", "/media", "/opt", "/boot", "/run",
}

// underCriticalDir reports whether path, relative to root (the empty string
// for the host, or PAX_ROOT under the live-image builder), is exactly one
// of [criticalDirs]. A directory removal that names one of these exactly is
// skipped rather than attempted; [Installer.Remove] prints a [SKIP] line
// for it. Paths below a critical directory are not matched.
func underCriticalDir(root, path string) bool {
	if root == "" {
		root = "/"
	}
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	rel = "/" + rel
	for _, d := range criticalDirs {
		if filepath.Clean(rel) == d {
			return true
		}
	}
	return false
}
