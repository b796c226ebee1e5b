package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/oreonproject/pax"
)

// SourceEntry is one parsed line from sources.conf: either a mirror or a
// repository, per spec.md §6.
type SourceEntry struct {
	IsMirror bool
	Origin   pax.OriginKind
}

// knownPrefixes maps a URL scheme prefix to its normalized [pax.OriginTag],
// per spec.md §4.2/§6.
var knownPrefixes = map[string]pax.OriginTag{
	"rpm://":    pax.OriginRpm,
	"yum://":    pax.OriginYum,
	"dnf://":    pax.OriginRpm,
	"apt://":    pax.OriginApt,
	"deb://":    pax.OriginDeb,
	"pax://":    pax.OriginPax,
	"github://": pax.OriginGithub,
}

var providerAliases = map[string]pax.OriginTag{
	"apt":       pax.OriginApt,
	"deb":       pax.OriginDeb,
	"dpkg":      pax.OriginDeb,
	"rpm":       pax.OriginRpm,
	"yum":       pax.OriginYum,
	"dnf":       pax.OriginRpm,
	"cloudflare": pax.OriginR2,
	"r2":        pax.OriginR2,
	"local":     pax.OriginLocal,
	"dir":       pax.OriginLocal,
	"directory": pax.OriginLocal,
	"github":    pax.OriginGithub,
}

// ParseSourcesConf parses the line-oriented sources.conf grammar from
// spec.md §6: "#" comments, each active line a whitespace-separated set of
// key=value pairs.
func ParseSourcesConf(r io.Reader) ([]SourceEntry, error) {
	var out []SourceEntry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseSourceLine(line)
		if err != nil {
			return nil, &pax.Error{Kind: pax.ErrConfig, Op: "config.ParseSourcesConf",
				Message: fmt.Sprintf("line %d", lineNo), Inner: err}
		}
		out = append(out, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, &pax.Error{Kind: pax.ErrConfig, Op: "config.ParseSourcesConf", Inner: err}
	}
	return out, nil
}

func parseSourceLine(line string) (SourceEntry, error) {
	fields := map[string]string{}
	for _, tok := range strings.Fields(line) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return SourceEntry{}, fmt.Errorf("config: malformed key=value token %q", tok)
		}
		fields[strings.ToLower(k)] = v
	}

	entry := SourceEntry{}
	switch st := fields["sourcetype"]; st {
	case "mirror":
		entry.IsMirror = true
	case "repo", "repository", "":
		entry.IsMirror = false
	default:
		return SourceEntry{}, fmt.Errorf("config: unknown sourcetype %q", st)
	}

	if gh := fields["github"]; gh != "" {
		user, repo, ok := strings.Cut(gh, "/")
		if !ok {
			return SourceEntry{}, fmt.Errorf("config: malformed github shorthand %q", gh)
		}
		entry.Origin = pax.OriginKind{Tag: pax.OriginGithub, GithubUser: user, GithubRepo: repo}
		return entry, nil
	}

	if url := fields["url"]; url != "" {
		if tag, rest, ok := stripKnownPrefix(url); ok {
			entry.Origin = originFromURL(tag, rest)
			return entry, nil
		}
		tag := pax.OriginPax
		if p := fields["provider"]; p != "" {
			alias, ok := providerAliases[strings.ToLower(p)]
			if !ok {
				return SourceEntry{}, fmt.Errorf("config: unknown provider %q", p)
			}
			tag = alias
		} else if fields["type"] != "" {
			alias, ok := providerAliases[strings.ToLower(fields["type"])]
			if ok {
				tag = alias
			}
		}
		entry.Origin = originFromURL(tag, url)
		return entry, nil
	}

	if fields["provider"] == "cloudflare" || fields["provider"] == "r2" {
		entry.Origin = pax.OriginKind{
			Tag:               pax.OriginR2,
			R2Bucket:          fields["bucket"],
			R2AccountID:       fields["account_id"],
			R2AccessKeyID:     fields["access_key_id"],
			R2SecretAccessKey: fields["secret_access_key"],
			R2Region:          fields["region"],
		}
		return entry, nil
	}

	if u, r := fields["user"], fields["repo"]; u != "" && r != "" {
		entry.Origin = pax.OriginKind{Tag: pax.OriginGithub, GithubUser: u, GithubRepo: r}
		return entry, nil
	}

	return SourceEntry{}, fmt.Errorf("config: line has no recognisable url/provider/github key: %q", line)
}

func stripKnownPrefix(url string) (pax.OriginTag, string, bool) {
	for prefix, tag := range knownPrefixes {
		if strings.HasPrefix(url, prefix) {
			return tag, strings.TrimPrefix(url, prefix), true
		}
	}
	return "", "", false
}

func originFromURL(tag pax.OriginTag, url string) pax.OriginKind {
	switch tag {
	case pax.OriginLocal:
		return pax.OriginKind{Tag: tag, LocalPath: url}
	default:
		return pax.OriginKind{Tag: tag, URL: url}
	}
}
