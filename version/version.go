// Package version implements the version ordering and range-intersection
// algebra shared by every pax component that needs to compare package
// versions. No other package should open-code a version comparison; they
// should parse into a [Version] and use [Compare] or [Negotiate].
package version

import (
	"strings"
	"unicode/utf8"

	"github.com/Masterminds/semver"
)

// Version is a parsed package version: an epoch, a dotted version body, and
// an optional release/pre-release suffix. Equality and ordering are
// structural, never lexical (spec.md §3).
type Version struct {
	Epoch   string // defaults to "0"
	Body    string // the numeric-with-dots core, e.g. "1.2.3"
	Release string // RPM-style release, or a semver pre-release (with a leading "~") and/or build metadata; may be empty

	raw string
}

// String returns the original string this Version was parsed from, if any,
// or a reconstructed "epoch:body-release" otherwise.
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	var b strings.Builder
	if v.Epoch != "" && v.Epoch != "0" {
		b.WriteString(v.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(v.Body)
	if v.Release != "" {
		b.WriteByte('-')
		b.WriteString(v.Release)
	}
	return b.String()
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.Epoch == "" && v.Body == "" && v.Release == ""
}

// Parse parses s into a Version.
//
// Strings that [github.com/Masterminds/semver] accepts (the common case for
// native .pax packages; shortened forms such as "1.0" are accepted too and
// become "1.0.0") are parsed with it. A pre-release is stored in Release
// with a leading "~", so [Compare] sorts it before the same version without
// one. Build metadata is kept in Release as well and takes part in
// ordering, so "1.0.0+b1" sorts after "1.0.0". Anything else (RPM EVR
// strings, Debian versions, loose tags) falls back to the generalized
// epoch:version-release scanner below (SPEC_FULL.md §4.1).
func Parse(s string) (Version, error) {
	if sv, err := semver.NewVersion(stripEpoch(s)); err == nil {
		epoch, _ := splitEpoch(s)
		pre := sv.Prerelease()
		if pre != "" {
			pre = "~" + pre
		}
		if meta := sv.Metadata(); meta != "" {
			if pre != "" {
				pre += "+" + meta
			} else {
				pre = meta
			}
		}
		return Version{
			Epoch:   epoch,
			Body:    trimSemverBody(sv),
			Release: pre,
			raw:     s,
		}, nil
	}
	return parseGeneric(s)
}

func trimSemverBody(sv *semver.Version) string {
	return strings.Join([]string{
		itoa(sv.Major()), itoa(sv.Minor()), itoa(sv.Patch()),
	}, ".")
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func splitEpoch(s string) (epoch, rest string) {
	if i := strings.IndexByte(s, ':'); i != -1 {
		return s[:i], s[i+1:]
	}
	return "0", s
}

func stripEpoch(s string) string {
	_, rest := splitEpoch(s)
	return rest
}

// ParseGeneric parses "[epoch:]version[-release]" without attempting the
// semver fast path, for callers (adapters) that already know their input is
// not strict semver.
func ParseGeneric(s string) (Version, error) { return parseGeneric(s) }

func parseGeneric(s string) (Version, error) {
	v := Version{Epoch: "0", raw: s}
	rest := s
	if i := strings.IndexByte(rest, ':'); i != -1 {
		if e := rest[:i]; e != "" {
			v.Epoch = e
		}
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, '-'); i != -1 {
		v.Body = rest[:i]
		v.Release = rest[i+1:]
	} else {
		v.Body = rest
	}
	return v, nil
}

// Compare returns -1, 0, or 1 according to whether a sorts before, the
// same as, or after b. It never compares raw strings lexically.
//
// This is a generalized port of the rpmvercmp algorithm (tilde sorts
// before everything, caret sorts after a bare end-of-string, alpha/numeric
// segments compared piecewise) applied across Epoch, Body, and Release in
// turn, since it is a strict superset of plain dotted-numeric ordering.
func Compare(a, b Version) int {
	if c := segcmp(a.Epoch, b.Epoch); c != 0 {
		return c
	}
	if c := segcmp(a.Body, b.Body); c != 0 {
		return c
	}
	return segcmp(a.Release, b.Release)
}

// Less reports whether a sorts strictly before b.
func Less(a, b Version) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b compare as the same version.
func Equal(a, b Version) bool { return Compare(a, b) == 0 }

// segcmp compares two version segments using rpmvercmp semantics.
func segcmp(a, b string) int {
	if a == b {
		return 0
	}
	for {
		a = strings.TrimLeftFunc(a, isSeparator)
		b = strings.TrimLeftFunc(b, isSeparator)

		switch {
		case strings.HasPrefix(a, "~") && strings.HasPrefix(b, "~"):
			a, b = a[1:], b[1:]
			continue
		case strings.HasPrefix(a, "~"):
			return -1
		case strings.HasPrefix(b, "~"):
			return 1
		}

		switch {
		case strings.HasPrefix(a, "^") && strings.HasPrefix(b, "^"):
			a, b = a[1:], b[1:]
			continue
		case a == "" && strings.HasPrefix(b, "^"):
			return -1
		case strings.HasPrefix(a, "^") && b == "":
			return 1
		case strings.HasPrefix(a, "^"):
			return -1
		case strings.HasPrefix(b, "^"):
			return 1
		}

		if a == "" || b == "" {
			break
		}

		r, _ := utf8.DecodeRuneInString(a)
		numeric := isDigit(r)
		var aSeg, bSeg string
		if numeric {
			aSeg, a = splitWhile(a, isDigit)
			bSeg, b = splitWhile(b, isDigit)
		} else {
			aSeg, a = splitWhile(a, isAlpha)
			bSeg, b = splitWhile(b, isAlpha)
		}

		switch {
		case aSeg == "":
			return -1
		case bSeg == "" && !numeric:
			return -1
		case bSeg == "" && numeric:
			return 1
		}

		if numeric {
			aSeg = strings.TrimLeft(aSeg, "0")
			bSeg = strings.TrimLeft(bSeg, "0")
			switch {
			case len(aSeg) > len(bSeg):
				return 1
			case len(aSeg) < len(bSeg):
				return -1
			}
		}

		if c := strings.Compare(aSeg, bSeg); c != 0 {
			return c
		}
	}

	switch {
	case a == "" && b == "":
		return 0
	case a != "":
		return 1
	default:
		return -1
	}
}

func splitWhile(s string, f func(rune) bool) (string, string) {
	i := strings.IndexFunc(s, func(r rune) bool { return !f(r) })
	if i == -1 {
		return s, ""
	}
	return s[:i], s[i:]
}

func isSeparator(r rune) bool { return !isAlnum(r) && r != '~' && r != '^' }
func isAlpha(r rune) bool     { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }
func isDigit(r rune) bool     { return r >= '0' && r <= '9' }
func isAlnum(r rune) bool     { return isAlpha(r) || isDigit(r) }
