package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sentinelServer(t *testing.T, delay time.Duration, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == Sentinel {
			time.Sleep(delay)
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestResolvePicksFastResponder(t *testing.T) {
	slow := sentinelServer(t, 50*time.Millisecond, http.StatusOK)
	defer slow.Close()
	fast := sentinelServer(t, 0, http.StatusOK)
	defer fast.Close()

	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(slow.URL + "\n" + fast.URL + "\n"))
	}))
	defer list.Close()

	p := NewPool(slow.Client())
	got, err := p.Resolve(context.Background(), list.URL, "x86_64")
	if err != nil {
		t.Fatal(err)
	}
	if got != fast.URL {
		t.Errorf("expected fast mirror %q, got %q", fast.URL, got)
	}
}

func TestResolveCaches(t *testing.T) {
	var hits int
	listSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("http://127.0.0.1:1\n"))
	}))
	defer listSrv.Close()

	only := sentinelServer(t, 0, http.StatusOK)
	defer only.Close()

	list2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(only.URL + "\n"))
	}))
	defer list2.Close()

	p := NewPool(only.Client())
	first, err := p.Resolve(context.Background(), list2.URL, "x86_64")
	if err != nil {
		t.Fatal(err)
	}
	// With the list server gone, the second call can only succeed from the cache.
	list2.Close()
	second, err := p.Resolve(context.Background(), list2.URL, "x86_64")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("expected cached mirror to be returned unchanged")
	}
}

func TestResolveEmptyList(t *testing.T) {
	list := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\n# comment only\n"))
	}))
	defer list.Close()

	p := NewPool(nil)
	if _, err := p.Resolve(context.Background(), list.URL, "x86_64"); err == nil {
		t.Fatal("expected an error for an empty mirror list")
	} else if !strings.Contains(err.Error(), "zero entries") {
		t.Errorf("unexpected error: %v", err)
	}
}
