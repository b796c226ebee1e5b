package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oreonproject/pax"
)

func TestParseSourcesConf(t *testing.T) {
	in := `
# a comment
sourcetype=repo url=rpm://mirror.example.com/fedora/40/x86_64
sourcetype=mirror url=https://mirrors.example.com/list?arch=$arch
sourcetype=repo provider=cloudflare bucket=pax-pkgs account_id=abc123 access_key_id=k1 secret_access_key=s1 region=auto
sourcetype=repo github=oreonproject/extras
sourcetype=repo provider=local url=/srv/pax/local
`
	got, err := ParseSourcesConf(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []SourceEntry{
		{Origin: pax.OriginKind{Tag: pax.OriginRpm, URL: "mirror.example.com/fedora/40/x86_64"}},
		{IsMirror: true, Origin: pax.OriginKind{Tag: pax.OriginPax, URL: "https://mirrors.example.com/list?arch=$arch"}},
		{Origin: pax.OriginKind{Tag: pax.OriginR2, R2Bucket: "pax-pkgs", R2AccountID: "abc123", R2AccessKeyID: "k1", R2SecretAccessKey: "s1", R2Region: "auto"}},
		{Origin: pax.OriginKind{Tag: pax.OriginGithub, GithubUser: "oreonproject", GithubRepo: "extras"}},
		{Origin: pax.OriginKind{Tag: pax.OriginLocal, LocalPath: "/srv/pax/local"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected parse (-want +got):\n%s", diff)
	}
}

func TestParseSourcesConfMalformed(t *testing.T) {
	if _, err := ParseSourcesConf(strings.NewReader("sourcetype=repo badtoken")); err == nil {
		t.Fatal("expected an error for a token without '='")
	}
}
