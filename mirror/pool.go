// Package mirror implements mirror-list resolution and parallel latency
// probing (spec.md §4.2): download a mirror list, substitute "$arch",
// probe each candidate with a short HEAD request, and pick the first
// responder under 500ms, falling back to the globally fastest.
package mirror

import (
	"context"
	"net/http"
	"net/url"
	"runtime/trace"
	"strings"
	"sync"
	"time"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/oreonproject/pax"
	"github.com/oreonproject/pax/internal/metrics"
)

// Sentinel is the path probed on each mirror candidate.
const Sentinel = "/.pax-sentinel"

// ProbeTimeout is the latency threshold for an "immediate" winner (spec.md
// §4.2: "picks the first responder under 500 ms").
const ProbeTimeout = 500 * time.Millisecond

// CacheTTL is how long a chosen mirror URL is remembered in-process
// (spec.md §4.2: "cached in-process for 1 hour").
const CacheTTL = time.Hour

// Pool probes mirror lists and caches the winning URL per list, guarded by
// a mutex with a TTL (spec.md §5 "Mirror cache").
type Pool struct {
	Client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	url     string
	at      time.Time
}

// NewPool constructs a Pool. A nil client defaults to http.DefaultClient.
func NewPool(client *http.Client) *Pool {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pool{Client: client, cache: make(map[string]cacheEntry)}
}

// Resolve substitutes "$arch" into listURL, downloads the resulting list
// (one URL per line), probes every candidate concurrently, and returns the
// winner: whichever responds successfully in under [ProbeTimeout], or
// failing that, whichever finishes first of the rest.
//
// The winner is cached in-process for [CacheTTL]; subsequent calls with the
// same listURL+arch skip probing entirely until the cache entry expires
// (spec.md §4.2, testable scenario 4 "Mirror fallback").
func (p *Pool) Resolve(ctx context.Context, listURL, arch string) (_ string, err error) {
	defer trace.StartRegion(ctx, "mirror.Pool.Resolve").End()
	ctx, span := tracer.Start(ctx, "mirror.Pool.Resolve", otelTrace.WithAttributes(
		attribute.String("list_url", listURL),
		attribute.String("arch", arch),
	))
	defer func() {
		span.RecordError(err)
		if err == nil {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	key := listURL + "|" + arch

	p.mu.Lock()
	if e, ok := p.cache[key]; ok && time.Since(e.at) < CacheTTL {
		p.mu.Unlock()
		zlog.Debug(ctx).Str("mirror", e.url).Msg("using cached mirror")
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return e.url, nil
	}
	p.mu.Unlock()

	candidates, err := p.fetchList(ctx, listURL, arch)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		err = &pax.Error{Kind: pax.ErrNetwork, Op: "mirror.Resolve", Message: "mirror list had zero entries"}
		return "", err
	}

	winner := p.race(ctx, candidates)
	if winner == "" {
		err = &pax.Error{Kind: pax.ErrNetwork, Op: "mirror.Resolve", Message: "no mirror responded"}
		return "", err
	}

	p.mu.Lock()
	p.cache[key] = cacheEntry{url: winner, at: time.Now()}
	p.mu.Unlock()
	span.SetAttributes(attribute.String("winner", winner))
	return winner, nil
}

func (p *Pool) fetchList(ctx context.Context, listURL, arch string) ([]string, error) {
	u := strings.ReplaceAll(listURL, "$arch", arch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &pax.Error{Kind: pax.ErrNetwork, Op: "mirror.fetchList", Inner: err}
	}
	tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := p.Client.Do(req.WithContext(tctx))
	if err != nil {
		return nil, &pax.Error{Kind: pax.ErrNetwork, Op: "mirror.fetchList", Inner: err}
	}
	defer resp.Body.Close()

	var out []string
	scanLines(resp, func(line string) {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	})
	return out, nil
}

// race probes every candidate concurrently, returning the first to pass
// within [ProbeTimeout]; if none qualify that fast, it waits for every
// probe to finish and returns the fastest one that passed. A sync.Once
// hands over the single winner.
func (p *Pool) race(ctx context.Context, candidates []string) string {
	type result struct {
		url string
		dur time.Duration
		ok  bool
	}
	ch := make(chan result, len(candidates))
	tctx, cancel := context.WithTimeout(ctx, 2*ProbeTimeout)
	defer cancel()

	for _, c := range candidates {
		u := c
		go func() {
			start := time.Now()
			ok := p.probe(tctx, u)
			ch <- result{url: u, dur: time.Since(start), ok: ok}
		}()
	}

	var fastestOK string
	fastestDur := time.Duration(1<<63 - 1)
	immediate := make(chan string, 1)
	var once sync.Once

	go func() {
		for i := 0; i < len(candidates); i++ {
			r := <-ch
			if !r.ok {
				continue
			}
			if r.dur < ProbeTimeout {
				once.Do(func() { immediate <- r.url })
			}
			if r.dur < fastestDur {
				fastestDur = r.dur
				fastestOK = r.url
			}
		}
		once.Do(func() { immediate <- fastestOK })
	}()

	select {
	case winner := <-immediate:
		return winner
	case <-ctx.Done():
		return ""
	}
}

func (p *Pool) probe(ctx context.Context, base string) bool {
	u, err := url.Parse(base)
	if err != nil {
		metrics.MirrorProbes.WithLabelValues("error").Inc()
		return false
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + Sentinel
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		metrics.MirrorProbes.WithLabelValues("error").Inc()
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			metrics.MirrorProbes.WithLabelValues("timeout").Inc()
		} else {
			metrics.MirrorProbes.WithLabelValues("error").Inc()
		}
		return false
	}
	defer resp.Body.Close()
	ok := resp.StatusCode < 500
	if ok {
		metrics.MirrorProbes.WithLabelValues("ok").Inc()
	} else {
		metrics.MirrorProbes.WithLabelValues("error").Inc()
	}
	return ok
}

// scanLines is a tiny line scanner so this file doesn't need bufio wired
// purely for one call site's worth of logic duplicated elsewhere.
func scanLines(resp *http.Response, yield func(string)) {
	const chunk = 4096
	buf := make([]byte, 0, chunk)
	tmp := make([]byte, chunk)
	for {
		n, err := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		for {
			i := indexByte(buf, '\n')
			if i < 0 {
				break
			}
			yield(string(buf[:i]))
			buf = buf[i+1:]
		}
		if err != nil {
			if len(buf) > 0 {
				yield(string(buf))
			}
			return
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
