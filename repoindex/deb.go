package repoindex

import (
	"bufio"
	"compress/gzip"
	"context"
	"net/textproto"
	"strings"

	"github.com/oreonproject/pax"
	pkgversion "github.com/oreonproject/pax/version"
)

// buildDeb builds a [RepoIndex] from an Apt/Deb origin's flat "Packages.gz"
// stanza file (spec.md §4.4 step 3).
func (b *Builder) buildDeb(ctx context.Context, origin pax.OriginKind) (*RepoIndex, error) {
	base := strings.TrimRight(origin.URL, "/")
	r, err := b.get(ctx, base+"/Packages.gz")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	idx := emptyIndex(origin)
	tp := textproto.NewReader(bufio.NewReader(zr))
	for {
		h, err := tp.ReadMIMEHeader()
		if len(h) == 0 && err != nil {
			break
		}
		name := h.Get("Package")
		ver := h.Get("Version")
		if name == "" {
			continue
		}
		filename := h.Get("Filename")
		provides := splitCommaList(h.Get("Provides"))
		deps := parseDebDepends(h.Get("Depends"))
		addPackage(idx, name, ver, pax.KindDEB, base+"/"+filename, provides, deps)
		if err != nil {
			break
		}
	}
	sortIndexVersionsDescending(idx)
	return idx, nil
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if i := strings.IndexByte(p, '('); i != -1 {
			p = strings.TrimSpace(p[:i])
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDebDepends parses a "Depends:" field's "name (op version), ..."
// entries into [pax.DependKind], mirroring adapter/deb's own parsing
// without importing that package (a repo index build never opens an
// archive, so it keeps its own small copy of this grammar).
func parseDebDepends(field string) []pax.DependKind {
	if field == "" {
		return nil
	}
	var out []pax.DependKind
	for _, raw := range strings.Split(field, ",") {
		raw = strings.TrimSpace(strings.SplitN(raw, "|", 2)[0])
		if raw == "" {
			continue
		}
		name := raw
		op, ver := "", ""
		if i := strings.IndexByte(raw, '('); i != -1 {
			name = strings.TrimSpace(raw[:i])
			j := strings.IndexByte(raw[i:], ')')
			if j != -1 {
				fields := strings.Fields(raw[i+1 : i+j])
				if len(fields) == 2 {
					op, ver = fields[0], fields[1]
				}
			}
		}
		if op == "" {
			out = append(out, pax.Latest(name))
			continue
		}
		v, err := pkgversion.ParseGeneric(ver)
		if err != nil {
			out = append(out, pax.Latest(name))
			continue
		}
		r := pkgversion.Unrestricted
		switch op {
		case ">=":
			r.Lower = pkgversion.Bound{Kind: pkgversion.Ge, Version: v}
		case ">>":
			r.Lower = pkgversion.Bound{Kind: pkgversion.Gt, Version: v}
		case "<=":
			r.Upper = pkgversion.Bound{Kind: pkgversion.Le, Version: v}
		case "<<":
			r.Upper = pkgversion.Bound{Kind: pkgversion.Lt, Version: v}
		case "=":
			r.Lower = pkgversion.Bound{Kind: pkgversion.Eq, Version: v}
			r.Upper = pkgversion.Bound{Kind: pkgversion.Eq, Version: v}
		}
		out = append(out, pax.Specific(name, r))
	}
	return out
}
