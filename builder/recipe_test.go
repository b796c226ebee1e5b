package builder

import "testing"

func TestConvertToRawGithubURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/user/repo":          "https://raw.githubusercontent.com/user/repo/main",
		"https://github.com/user/repo/tree/main": "https://raw.githubusercontent.com/user/repo/main",
		"https://github.com/user/repo/":         "https://raw.githubusercontent.com/user/repo/main",
	}
	for in, want := range cases {
		if got := convertToRawGithubURL(in); got != want {
			t.Errorf("convertToRawGithubURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsGithubRepoURL(t *testing.T) {
	if !isGithubRepoURL("https://github.com/user/repo") {
		t.Error("expected github repo URL to be detected")
	}
	if isGithubRepoURL("https://github.com/user/repo/raw/main/.paxmeta") {
		t.Error("a direct .paxmeta URL should not be treated as a repo URL")
	}
	if isGithubRepoURL("https://example.com/foo.paxmeta") {
		t.Error("non-github URL should not be treated as a repo URL")
	}
}

func TestAutoDetectRecipe(t *testing.T) {
	r := autoDetectRecipe("https://github.com/user/widget")
	if r.Name != "widget" {
		t.Errorf("Name = %q, want widget", r.Name)
	}
	if r.Version != "git-main" {
		t.Errorf("Version = %q, want git-main", r.Version)
	}
	if r.Build == "" {
		t.Error("expected a default build script")
	}
}

func TestDecodeRecipeRequiresNameAndVersion(t *testing.T) {
	if _, err := decodeRecipe([]byte("description: nothing\n")); err == nil {
		t.Error("expected error for recipe missing name/version")
	}
}

func TestDecodeRecipeDefaultsArch(t *testing.T) {
	r, err := decodeRecipe([]byte("name: foo\nversion: \"1.0\"\n"))
	if err != nil {
		t.Fatalf("decodeRecipe: %v", err)
	}
	if len(r.Arch) != 2 {
		t.Errorf("expected default arch list, got %v", r.Arch)
	}
}
