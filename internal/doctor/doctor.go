// Package doctor checks that the external binaries pax shells out to are
// present on PATH, so a missing tool is diagnosed up front rather than
// mid-install or mid-build (spec.md §4.12, §9: "their absence must be
// diagnosed at startup ... not silently at first use").
package doctor

import (
	"fmt"
	"os/exec"
	"strings"
)

// required lists the host binaries pax depends on (spec.md §9).
var required = []string{
	"tar", "dpkg-deb", "rpm2cpio", "cpio",
	"ldconfig", "mksquashfs", "grub-mkrescue", "bwrap",
}

// Report is the result of one [Check] run.
type Report struct {
	Missing []string
}

// OK reports whether every required binary was found.
func (r Report) OK() bool { return len(r.Missing) == 0 }

func (r Report) String() string {
	if r.OK() {
		return "doctor: all required tools present"
	}
	return fmt.Sprintf("doctor: missing tools: %s", strings.Join(r.Missing, ", "))
}

// Check runs exec.LookPath against every tool in [required] and returns
// which ones could not be found.
func Check() Report {
	var missing []string
	for _, bin := range required {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return Report{Missing: missing}
}

// CheckSubset is like Check but restricted to the named tools, for callers
// (the live-image builder) that only need a subset diagnosed before a
// specific step runs.
func CheckSubset(tools ...string) Report {
	var missing []string
	for _, bin := range tools {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return Report{Missing: missing}
}
