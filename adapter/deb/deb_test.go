package deb

import "testing"

func TestParseDependsBasic(t *testing.T) {
	deps := parseDepends("libc6 (>= 2.17), libssl3, coreutils (>> 8.0) | busybox")
	if len(deps) != 3 {
		t.Fatalf("got %d deps, want 3: %+v", len(deps), deps)
	}
	if deps[0].Name != "libc6" || deps[0].Constraint != ">= 2.17" {
		t.Errorf("deps[0] = %+v", deps[0])
	}
	if deps[1].Name != "libssl3" || deps[1].Constraint != "" {
		t.Errorf("deps[1] = %+v", deps[1])
	}
	if deps[2].Name != "coreutils" || deps[2].Constraint != ">> 8.0" {
		t.Errorf("deps[2] = %+v", deps[2])
	}
}

func TestParseDependsEmpty(t *testing.T) {
	if deps := parseDepends(""); deps != nil {
		t.Errorf("expected nil for empty field, got %+v", deps)
	}
}

func TestSplitDebConstraint(t *testing.T) {
	op, v, err := splitDebConstraint(">= 1.2.3-4")
	if err != nil {
		t.Fatalf("splitDebConstraint: %v", err)
	}
	if op != ">=" {
		t.Errorf("op = %q, want >=", op)
	}
	if v.String() != "1.2.3-4" {
		t.Errorf("version = %q, want 1.2.3-4", v.String())
	}
}

func TestSplitDebConstraintMalformed(t *testing.T) {
	if _, _, err := splitDebConstraint("notanop"); err == nil {
		t.Error("expected error for malformed constraint")
	}
}
