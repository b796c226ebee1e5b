// Package builder implements `pax compile`: turning a source recipe into a
// built .pax archive and installing it. The recipe format is exactly the
// ".paxmeta" YAML the pax adapter reads back out of a finished archive
// (adapter/pax.Meta); its "source_url" field names the upstream source to
// build from (spec.md §6 `compile <url|path>`).
package builder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	paxadapter "github.com/oreonproject/pax/adapter/pax"
)

// Recipe is a build-time ".paxmeta": an alias of [paxadapter.Meta] with no
// extra fields. SourceURL and Hash double as
// both the recipe's "where do I get the tarball" fields and the resulting
// package's provenance metadata, so a built archive's .paxmeta is literally
// this struct with Build/Install left populated for a future rebuild.
type Recipe = paxadapter.Meta

// LoadRecipe resolves source into a Recipe. source may be:
//   - a local filesystem path to a .paxmeta file
//   - a direct URL to a .paxmeta file
//   - a GitHub repository URL, in which case a ".paxmeta" at the repo root
//     is fetched via the raw-content host, falling back to a minimal
//     auto-generated recipe if none is published.
func LoadRecipe(ctx context.Context, source string, client *http.Client) (*Recipe, error) {
	if isGithubRepoURL(source) {
		return loadFromGithub(ctx, source, client)
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		body, err := fetchURL(ctx, client, source)
		if err != nil {
			return nil, err
		}
		return decodeRecipe(body)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("builder: open recipe %s: %w", source, err)
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("builder: read recipe %s: %w", source, err)
	}
	return decodeRecipe(body)
}

func decodeRecipe(body []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("builder: parse .paxmeta: %w", err)
	}
	if r.Name == "" || r.Version == "" {
		return nil, fmt.Errorf("builder: .paxmeta missing name/version")
	}
	if len(r.Arch) == 0 {
		r.Arch = []string{"x86_64", "aarch64"}
	}
	return &r, nil
}

func fetchURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("builder: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("builder: fetch %s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func isGithubRepoURL(source string) bool {
	return strings.Contains(source, "github.com/") && !strings.HasSuffix(source, ".paxmeta")
}

// convertToRawGithubURL turns a github.com browse URL (optionally with a
// "/tree/<branch>" path component) into its raw.githubusercontent.com
// equivalent rooted on that branch, or on "main" when no branch is given.
func convertToRawGithubURL(githubURL string) string {
	u := strings.TrimRight(githubURL, "/")
	u = strings.Replace(u, "github.com", "raw.githubusercontent.com", 1)
	if strings.Contains(u, "/tree/") {
		return strings.Replace(u, "/tree/", "/", 1)
	}
	return u + "/main"
}

func loadFromGithub(ctx context.Context, repoURL string, client *http.Client) (*Recipe, error) {
	raw := convertToRawGithubURL(repoURL)
	if body, err := fetchURL(ctx, client, raw+"/.paxmeta"); err == nil {
		return decodeRecipe(body)
	}
	return autoDetectRecipe(repoURL), nil
}

// autoDetectRecipe produces a best-effort recipe for a repo that publishes
// no .paxmeta: a plain "make && make install" build against the repo's
// default-branch source tarball. This mirrors what a human would try first
// before writing a real recipe.
func autoDetectRecipe(repoURL string) *Recipe {
	trimmed := strings.TrimRight(repoURL, "/")
	parts := strings.Split(trimmed, "/")
	name := parts[len(parts)-1]
	if name == "" {
		name = "unknown"
	}
	return &Recipe{
		Name:        name,
		Version:     "git-main",
		Description: fmt.Sprintf("Built from %s", repoURL),
		SourceURL:   trimmed + "/archive/refs/heads/main.tar.gz",
		Arch:        []string{"x86_64", "aarch64"},
		Provides:    []string{name},
		Build:       "make && make install DESTDIR=$PAX_BUILD_ROOT",
	}
}
