package config

import (
	"testing"
	"time"

	"github.com/oreonproject/pax"
)

func TestHoldStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewHoldStore(dir)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Set("openssl", pax.Hold{Type: pax.HoldNoUpgrade, Reason: "CVE triage in progress"})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := NewHoldStore(dir)
	if err := reopened.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	h, ok := reopened.Get("openssl")
	if !ok || h.Type != pax.HoldNoUpgrade || h.Reason != "CVE triage in progress" {
		t.Errorf("Get(openssl) = %+v, %v", h, ok)
	}
}

func TestHoldStoreExpiresOnLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewHoldStore(dir)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	s.Set("stale", pax.Hold{Type: pax.HoldNoChange, ExpiresAt: &past})
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	reopened := NewHoldStore(dir)
	if err := reopened.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Get("stale"); ok {
		t.Error("expected expired hold to be pruned on Load")
	}
}

func TestVersionPinStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewVersionPinStore(dir)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	s.Pin("nginx", "1.24.0")
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	reopened := NewVersionPinStore(dir)
	if err := reopened.Load(); err != nil {
		t.Fatal(err)
	}
	v, ok := reopened.Get("nginx")
	if !ok || v != "1.24.0" {
		t.Errorf("Get(nginx) = %q, %v", v, ok)
	}
	reopened.Unpin("nginx")
	if _, ok := reopened.Get("nginx"); ok {
		t.Error("expected Unpin to remove the entry")
	}
}
