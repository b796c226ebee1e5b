package repoindex

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/version"
)

// repomd is the top-level repomd.xml document: a list of named data files
// (primary, filelists, ...), of which only "primary" matters here.
type repomd struct {
	XMLName xml.Name `xml:"repomd"`
	Data    []struct {
		Type     string `xml:"type,attr"`
		Location struct {
			Href string `xml:"href,attr"`
		} `xml:"location"`
	} `xml:"data"`
}

// primaryXML is the subset of primary.xml this index cares about.
type primaryXML struct {
	XMLName  xml.Name        `xml:"metadata"`
	Packages []primaryPkg    `xml:"package"`
}

type primaryPkg struct {
	Name    string `xml:"name"`
	Arch    string `xml:"arch"`
	Version struct {
		Epoch string `xml:"epoch,attr"`
		Ver   string `xml:"ver,attr"`
		Rel   string `xml:"rel,attr"`
	} `xml:"version"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Format struct {
		Provides struct {
			Entry []primaryEntry `xml:"entry"`
		} `xml:"provides"`
		Requires struct {
			Entry []primaryEntry `xml:"entry"`
		} `xml:"requires"`
	} `xml:"format"`
}

type primaryEntry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Ver   string `xml:"ver,attr"`
}

// rangeFromFlags builds a [version.Range] from an rpm primary.xml
// requires-entry's "flags"/"ver" attribute pair (GE/GT/LE/LT/EQ).
func rangeFromFlags(flags, ver string) version.Range {
	if flags == "" || ver == "" {
		return version.Unrestricted
	}
	v, err := version.ParseGeneric(ver)
	if err != nil {
		return version.Unrestricted
	}
	switch flags {
	case "GE":
		return version.Range{Lower: version.Bound{Kind: version.Ge, Version: v}}
	case "GT":
		return version.Range{Lower: version.Bound{Kind: version.Gt, Version: v}}
	case "LE":
		return version.Range{Upper: version.Bound{Kind: version.Le, Version: v}}
	case "LT":
		return version.Range{Upper: version.Bound{Kind: version.Lt, Version: v}}
	case "EQ":
		return version.Range{Lower: version.Bound{Kind: version.Eq, Version: v}, Upper: version.Bound{Kind: version.Eq, Version: v}}
	default:
		return version.Unrestricted
	}
}

// buildRepomd builds a [RepoIndex] by fetching repomd.xml and then the
// referenced primary.xml(.gz|.zst) from an RPM/YUM origin (spec.md §4.4
// step 3).
func (b *Builder) buildRepomd(ctx context.Context, origin pax.OriginKind) (*RepoIndex, error) {
	base := strings.TrimRight(origin.URL, "/")
	rmd, err := b.fetchRepomd(ctx, base)
	if err != nil {
		return nil, err
	}
	var primaryHref string
	for _, d := range rmd.Data {
		if d.Type == "primary" {
			primaryHref = d.Location.Href
			break
		}
	}
	if primaryHref == "" {
		return nil, fmt.Errorf("repoindex: %s: repomd.xml has no primary data entry", base)
	}

	pkgs, err := b.fetchPrimary(ctx, base+"/"+primaryHref)
	if err != nil {
		return nil, err
	}

	idx := emptyIndex(origin)
	for _, p := range pkgs {
		ver := p.Version.Ver + "-" + p.Version.Rel
		if p.Version.Epoch != "" && p.Version.Epoch != "0" {
			ver = p.Version.Epoch + ":" + ver
		}
		var provides []string
		for _, e := range p.Format.Provides.Entry {
			if e.Name == "" || isVirtualNoise(e.Name) {
				continue
			}
			provides = append(provides, e.Name)
		}
		var deps []pax.DependKind
		for _, e := range p.Format.Requires.Entry {
			if e.Name == "" || isVirtualNoise(e.Name) {
				continue
			}
			if e.Flags == "" {
				deps = append(deps, pax.Latest(e.Name))
				continue
			}
			deps = append(deps, pax.Specific(e.Name, rangeFromFlags(e.Flags, e.Ver)))
		}
		addPackage(idx, p.Name, ver, pax.KindRPM, base+"/"+p.Location.Href, provides, deps)
	}
	sortIndexVersionsDescending(idx)
	return idx, nil
}

// isVirtualNoise filters RPM's internal virtual-dependency noise (ELF
// soname symbol versions, rpmlib features) out of a package's advertised
// provides, per spec.md §4.4's "virtual-dependency heuristic filtering".
func isVirtualNoise(name string) bool {
	switch {
	case strings.HasPrefix(name, "rpmlib("):
		return true
	case strings.HasPrefix(name, "(") && strings.Contains(name, "if"):
		return true
	case strings.Contains(name, "(") && strings.HasSuffix(name, "bit)"):
		return true
	default:
		return false
	}
}

func (b *Builder) fetchRepomd(ctx context.Context, base string) (*repomd, error) {
	r, err := b.get(ctx, base+"/repodata/repomd.xml")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var rmd repomd
	if err := xml.NewDecoder(r).Decode(&rmd); err != nil {
		return nil, fmt.Errorf("repoindex: decoding repomd.xml: %w", err)
	}
	return &rmd, nil
}

func (b *Builder) fetchPrimary(ctx context.Context, url string) ([]primaryPkg, error) {
	r, err := b.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dr, err := decompressByExtension(url, r)
	if err != nil {
		return nil, err
	}
	var p primaryXML
	if err := xml.NewDecoder(dr).Decode(&p); err != nil {
		return nil, fmt.Errorf("repoindex: decoding primary.xml: %w", err)
	}
	return p.Packages, nil
}

func decompressByExtension(name string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return gzip.NewReader(r)
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return r, nil
	}
}

func (b *Builder) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repoindex: fetching %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("repoindex: fetching %s: status %s", url, resp.Status)
	}
	return resp.Body, nil
}
