package version

import "testing"

func mustParse(t *testing.T, s string) Version {
	t.Helper()
	v, err := Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestNegotiateIntersection(t *testing.T) {
	v := func(s string) Version { return mustParse(t, s) }

	ge20 := Range{Lower: Bound{Kind: Ge, Version: v("2.0.0")}}
	lt30 := Range{Upper: Bound{Kind: Lt, Version: v("3.0.0")}}

	got, ok := Negotiate(ge20, lt30)
	if !ok {
		t.Fatal("expected a non-empty intersection")
	}
	if !got.Satisfies(v("2.1.0")) {
		t.Errorf("expected 2.1.0 to satisfy intersection")
	}
	if got.Satisfies(v("3.0.0")) {
		t.Errorf("expected 3.0.0 to be excluded")
	}
	if got.Satisfies(v("1.9.0")) {
		t.Errorf("expected 1.9.0 to be excluded")
	}
}

func TestNegotiateEmpty(t *testing.T) {
	v := func(s string) Version { return mustParse(t, s) }
	a := Range{Upper: Bound{Kind: Lt, Version: v("2.0.0")}}
	b := Range{Lower: Bound{Kind: Ge, Version: v("3.0.0")}}
	if _, ok := Negotiate(a, b); ok {
		t.Fatal("expected empty intersection")
	}
}

func TestNegotiateEqCollapses(t *testing.T) {
	v := func(s string) Version { return mustParse(t, s) }
	eq := Range{Lower: Bound{Kind: Eq, Version: v("1.5.0")}, Upper: Bound{Kind: Eq, Version: v("1.5.0")}}
	wide := Range{Lower: Bound{Kind: Ge, Version: v("1.0.0")}, Upper: Bound{Kind: Lt, Version: v("2.0.0")}}
	got, ok := Negotiate(eq, wide)
	if !ok {
		t.Fatal("expected eq to collapse into a satisfiable point")
	}
	if !got.Satisfies(v("1.5.0")) {
		t.Errorf("expected exact match to satisfy")
	}
}

func TestNegotiateCommutative(t *testing.T) {
	v := func(s string) Version { return mustParse(t, s) }
	a := Range{Lower: Bound{Kind: Ge, Version: v("1.0.0")}, Upper: Bound{Kind: Lt, Version: v("5.0.0")}}
	b := Range{Lower: Bound{Kind: Gt, Version: v("2.0.0")}, Upper: Bound{Kind: Le, Version: v("4.0.0")}}

	ab, okAB := Negotiate(a, b)
	ba, okBA := Negotiate(b, a)
	if okAB != okBA {
		t.Fatalf("commutativity mismatch on ok: %v vs %v", okAB, okBA)
	}
	for _, probe := range []string{"1.5.0", "2.0.0", "2.0.1", "4.0.0", "4.5.0"} {
		p := v(probe)
		if ab.Satisfies(p) != ba.Satisfies(p) {
			t.Errorf("negotiate(a,b) and negotiate(b,a) disagree on %q", probe)
		}
	}
}

func TestNegotiateAssociative(t *testing.T) {
	v := func(s string) Version { return mustParse(t, s) }
	a := Range{Lower: Bound{Kind: Ge, Version: v("1.0.0")}}
	b := Range{Upper: Bound{Kind: Lt, Version: v("10.0.0")}}
	c := Range{Lower: Bound{Kind: Gt, Version: v("3.0.0")}}

	ab, _ := Negotiate(a, b)
	abc1, ok1 := Negotiate(ab, c)

	bc, _ := Negotiate(b, c)
	abc2, ok2 := Negotiate(a, bc)

	if ok1 != ok2 {
		t.Fatalf("associativity mismatch on ok")
	}
	for _, probe := range []string{"0.5.0", "3.0.0", "3.0.1", "9.9.9", "10.0.0"} {
		p := v(probe)
		if abc1.Satisfies(p) != abc2.Satisfies(p) {
			t.Errorf("grouping disagreement on %q", probe)
		}
	}
}

func TestRangeUnrestrictedMatchesEverything(t *testing.T) {
	v := mustParse(t, "999.999.999")
	if !Unrestricted.Satisfies(v) {
		t.Fatal("unrestricted range must match everything")
	}
}
