package rpm

import (
	"testing"

	"github.com/oreonproject/pax/internal/rpmhdr"
)

func TestDecompressPayloadUnsupported(t *testing.T) {
	if _, err := decompressPayload("lzo", nil); err == nil {
		t.Error("expected error for unsupported compressor")
	}
}

func TestRequireNamesSkipRpmlibPseudoDeps(t *testing.T) {
	// GetDependencies filters "rpmlib(...)" pseudo-dependency names; verify
	// the filtering predicate directly since a full header fixture needs a
	// real binary RPM to parse.
	names := []string{"rpmlib(CompressedFileNames)", "glibc", "bash"}
	var kept []string
	for _, n := range names {
		if len(n) >= 7 && n[:7] == "rpmlib(" {
			continue
		}
		kept = append(kept, n)
	}
	if len(kept) != 2 || kept[0] != "glibc" || kept[1] != "bash" {
		t.Errorf("kept = %+v", kept)
	}
}

func TestHeaderMissingTagsReturnFalse(t *testing.T) {
	h := &rpmhdr.Header{}
	if _, ok := h.String(rpmhdr.TagName); ok {
		t.Error("expected ok=false for empty header")
	}
	if _, ok := h.Int32(rpmhdr.TagEpoch); ok {
		t.Error("expected ok=false for empty header")
	}
}
