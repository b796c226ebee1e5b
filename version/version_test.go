package version

import "testing"

func TestCompareOrdering(t *testing.T) {
	cases := []struct{ lo, hi string }{
		{"1.0.0", "1.0.1"},
		{"1.0.0", "2.0.0"},
		{"1.0.0-alpha", "1.0.0"},
		{"1:1.0.0", "2:0.0.1"},
		{"1.0~rc1", "1.0"},
		{"1.0^", "1.0"},
		{"1.0.0", "1.0.0a"},
		{"0:1.2.3-1", "0:1.2.3-2"},
	}
	for _, c := range cases {
		lo, err := Parse(c.lo)
		if err != nil {
			t.Fatalf("parse %q: %v", c.lo, err)
		}
		hi, err := Parse(c.hi)
		if err != nil {
			t.Fatalf("parse %q: %v", c.hi, err)
		}
		if !Less(lo, hi) {
			t.Errorf("expected %q < %q", c.lo, c.hi)
		}
		if Less(hi, lo) {
			t.Errorf("expected %q not < %q", c.hi, c.lo)
		}
	}
}

func TestCompareEqual(t *testing.T) {
	a, _ := Parse("1.2.3")
	b, _ := Parse("0:1.2.3")
	if !Equal(a, b) {
		t.Errorf("expected %q == %q", a, b)
	}
}

func TestParseGenericEVR(t *testing.T) {
	v, err := ParseGeneric("2:1.2.3-4.el8")
	if err != nil {
		t.Fatal(err)
	}
	if v.Epoch != "2" || v.Body != "1.2.3" || v.Release != "4.el8" {
		t.Errorf("unexpected parse: %+v", v)
	}
}

func TestStructuralNotLexical(t *testing.T) {
	// Lexically "10" < "9", but numerically 10 > 9.
	a, _ := Parse("1.9.0")
	b, _ := Parse("1.10.0")
	if !Less(a, b) {
		t.Errorf("expected 1.9.0 < 1.10.0 structurally, got Compare=%d", Compare(a, b))
	}
}
