package doctor

import "testing"

func TestCheckSubsetReportsMissing(t *testing.T) {
	r := CheckSubset("definitely-not-a-real-binary-xyz")
	if r.OK() {
		t.Fatal("expected a missing tool to be reported")
	}
	if len(r.Missing) != 1 || r.Missing[0] != "definitely-not-a-real-binary-xyz" {
		t.Fatalf("unexpected missing list: %v", r.Missing)
	}
}

func TestCheckSubsetEmptyWhenSatisfied(t *testing.T) {
	r := CheckSubset("sh")
	if !r.OK() {
		t.Fatalf("expected sh to be found on PATH, got missing: %v", r.Missing)
	}
}
