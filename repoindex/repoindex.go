// Package repoindex builds and caches the queryable catalog of packages
// available from a configured [pax.OriginKind] (spec.md §4.4).
package repoindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/trace"
	"sort"
	"strings"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/internal/metrics"
	"github.com/oreonproject/pax/version"
)

// TTL is how long an on-disk repo-index cache remains valid before a
// rebuild is triggered (spec.md §4.4 step 1).
const TTL = 24 * time.Hour

// RepoIndex is the queryable catalog built from one [pax.OriginKind].
type RepoIndex struct {
	Origin      pax.OriginKind         `json:"origin"`
	BuiltAt     time.Time              `json:"built_at"`
	Packages    map[string][]Entry     `json:"packages"` // lower-cased name -> versions, descending
	ProvidesPkg map[string][]string    `json:"provides_pkg"`
	ProvidesLib map[string][]string    `json:"provides_lib"`
	ProvidesFile map[string][]string   `json:"provides_file"`
}

// Entry is one version of a package as listed by a repo index.
type Entry struct {
	DisplayName  string          `json:"display_name"`
	Version      string          `json:"version"`
	Kind         pax.AdapterKind `json:"kind"`
	DownloadURL  string          `json:"download_url"`
	Provides     []string        `json:"provides"`
	Dependencies []pax.DependKind `json:"dependencies"`
}

// MultiRepoIndex is the union of every configured source's [RepoIndex],
// queried together at resolution time.
type MultiRepoIndex struct {
	Indexes []*RepoIndex
}

// Candidate pairs an [Entry] with the origin it came from.
type Candidate struct {
	Entry
	Origin pax.OriginKind
}

// Lookup returns every [Candidate] for name across all indexes, sorted
// version-descending.
func (m *MultiRepoIndex) Lookup(name string) []Candidate {
	name = strings.ToLower(name)
	var out []Candidate
	for _, idx := range m.Indexes {
		for _, e := range idx.Packages[name] {
			out = append(out, Candidate{Entry: e, Origin: idx.Origin})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi, _ := version.ParseGeneric(out[i].Version)
		vj, _ := version.ParseGeneric(out[j].Version)
		return version.Compare(vi, vj) > 0
	})
	return out
}

// ResolveProvides returns the names of the packages providing name as a
// package, library, or file name, in index order.
func (m *MultiRepoIndex) ResolveProvides(name string) []string {
	var out []string
	for _, idx := range m.Indexes {
		out = append(out, idx.ProvidesPkg[name]...)
		out = append(out, idx.ProvidesLib[name]...)
		out = append(out, idx.ProvidesFile[name]...)
	}
	return out
}

// Builder builds or loads-from-cache a [RepoIndex] for one origin.
type Builder struct {
	CacheDir string
	Client   *http.Client
}

// NewBuilder returns a Builder caching under cacheDir.
func NewBuilder(cacheDir string, client *http.Client) *Builder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Builder{CacheDir: cacheDir, Client: client}
}

// LoadOrBuild returns the cached index for origin if it is younger than
// [TTL], else builds a fresh one and writes it back to cache (spec.md §4.4
// step 1).
func (b *Builder) LoadOrBuild(ctx context.Context, origin pax.OriginKind) (*RepoIndex, error) {
	defer trace.StartRegion(ctx, "repoindex.Builder.LoadOrBuild").End()
	path := b.cachePath(origin)
	if idx, err := b.loadCache(path); err == nil && time.Since(idx.BuiltAt) < TTL {
		metrics.RepoIndexCacheHits.WithLabelValues("hit").Inc()
		zlog.Debug(ctx).Str("origin", string(origin.Tag)).Msg("repo index cache hit")
		return idx, nil
	}
	metrics.RepoIndexCacheHits.WithLabelValues("miss").Inc()

	idx, err := b.build(ctx, origin)
	if err != nil {
		return nil, err
	}
	if err := b.saveCache(path, idx); err != nil {
		zlog.Warn(ctx).Err(err).Str("origin", string(origin.Tag)).Msg("failed to persist repo index cache")
	}
	return idx, nil
}

// BuildAll builds or loads indexes for every origin concurrently (spec.md
// §4.4: independent per-origin builds), returning a [MultiRepoIndex].
func (b *Builder) BuildAll(ctx context.Context, origins []pax.OriginKind) (*MultiRepoIndex, error) {
	defer trace.StartRegion(ctx, "repoindex.Builder.BuildAll").End()
	out := make([]*RepoIndex, len(origins))
	g, gctx := errgroup.WithContext(ctx)
	for i, o := range origins {
		i, o := i, o
		g.Go(func() error {
			idx, err := b.LoadOrBuild(gctx, o)
			if err != nil {
				// A single bad mirror shouldn't fail a resolve against every
				// other configured source; log and index as empty.
				zlog.Warn(gctx).Err(err).Str("origin", string(o.Tag)).Msg("repo index build failed, indexing as empty")
				idx = emptyIndex(o)
			}
			out[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &MultiRepoIndex{Indexes: out}, nil
}

func (b *Builder) build(ctx context.Context, origin pax.OriginKind) (*RepoIndex, error) {
	if !origin.HasCatalog() {
		return emptyIndex(origin), nil
	}
	switch origin.Tag {
	case pax.OriginRpm, pax.OriginYum:
		return b.buildRepomd(ctx, origin)
	case pax.OriginPax:
		return b.buildPax(ctx, origin)
	case pax.OriginApt, pax.OriginDeb:
		return b.buildDeb(ctx, origin)
	default:
		return emptyIndex(origin), nil
	}
}

func emptyIndex(origin pax.OriginKind) *RepoIndex {
	return &RepoIndex{
		Origin:       origin,
		BuiltAt:      time.Now(),
		Packages:     map[string][]Entry{},
		ProvidesPkg:  map[string][]string{},
		ProvidesLib:  map[string][]string{},
		ProvidesFile: map[string][]string{},
	}
}

func (b *Builder) cachePath(origin pax.OriginKind) string {
	return filepath.Join(b.CacheDir, origin.CacheKey()+".json")
}

func (b *Builder) loadCache(path string) (*RepoIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var idx RepoIndex
	if err := json.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("repoindex: decoding cache %s: %w", path, err)
	}
	return &idx, nil
}

func (b *Builder) saveCache(path string, idx *RepoIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".repoindex-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := json.NewEncoder(tmp).Encode(idx); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// addPackage inserts one parsed package into idx, lower-casing the lookup
// key while retaining the display name (spec.md §4.4: "name normalization:
// lowercase keys, original-case display").
func addPackage(idx *RepoIndex, name, version string, kind pax.AdapterKind, url string, provides []string, deps []pax.DependKind) {
	key := strings.ToLower(name)
	idx.Packages[key] = append(idx.Packages[key], Entry{
		DisplayName:  name,
		Version:      version,
		Kind:         kind,
		DownloadURL:  url,
		Provides:     provides,
		Dependencies: deps,
	})
	idx.ProvidesPkg[key] = append(idx.ProvidesPkg[key], name)
	for _, p := range provides {
		if strings.Contains(p, ".so") {
			idx.ProvidesLib[p] = append(idx.ProvidesLib[p], name)
		} else if strings.HasPrefix(p, "/") {
			idx.ProvidesFile[p] = append(idx.ProvidesFile[p], name)
		} else {
			idx.ProvidesPkg[strings.ToLower(p)] = append(idx.ProvidesPkg[strings.ToLower(p)], name)
		}
	}
}

func sortIndexVersionsDescending(idx *RepoIndex) {
	for key, entries := range idx.Packages {
		sort.SliceStable(entries, func(i, j int) bool {
			vi, _ := version.ParseGeneric(entries[i].Version)
			vj, _ := version.ParseGeneric(entries[j].Version)
			return version.Compare(vi, vj) > 0
		})
		idx.Packages[key] = entries
	}
}
