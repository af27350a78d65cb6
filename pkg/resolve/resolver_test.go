package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"search-scraper/pkg/cache"
	"search-scraper/pkg/config"
	"search-scraper/pkg/fetch"
	"search-scraper/pkg/utils"
)

// testResolveClient returns an http.Client that does not follow redirects,
// matching the client the resolver uses in production.
func testResolveClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// newTestResolver fills opts with fast test defaults and builds a Resolver.
func newTestResolver(t *testing.T, opts Options) *Resolver {
	t.Helper()
	log := testLogger()
	if opts.Client == nil {
		opts.Client = testResolveClient()
	}
	if opts.Gate == nil {
		opts.Gate = fetch.NewGate(25, time.Second, log)
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(config.CacheConfig{}, log)
	}
	if opts.MinDelay == 0 {
		opts.MinDelay = time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 2 * time.Millisecond
	}
	return New(opts, log)
}

// failingTransport fails the test on any network request.
type failingTransport struct{ t *testing.T }

func (f *failingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.t.Errorf("unexpected network request to %s", req.URL)
	return nil, errors.New("network disabled")
}

// erroringTransport fails every request and counts attempts.
type erroringTransport struct{ attempts atomic.Int32 }

func (e *erroringTransport) RoundTrip(*http.Request) (*http.Response, error) {
	e.attempts.Add(1)
	return nil, errors.New("connection refused")
}

func TestResolver_EmptyURL(t *testing.T) {
	r := newTestResolver(t, Options{})

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestResolver_CacheHitBypassesNetwork(t *testing.T) {
	log := testLogger()
	urlCache := cache.New(config.CacheConfig{}, log)
	urlCache.Set("https://tracker.example/r?id=1", "https://real.example/article")

	r := newTestResolver(t, Options{
		Client: &http.Client{Transport: &failingTransport{t}},
		Cache:  urlCache,
	})

	got, err := r.Resolve(context.Background(), "https://tracker.example/r?id=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://real.example/article" {
		t.Errorf("expected cached resolution, got %q", got)
	}
}

func TestResolver_FollowsRedirectChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Options{MaxRedirects: 5})

	got, err := r.Resolve(context.Background(), server.URL+"/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := server.URL + "/c"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	// Second resolve must come from the cache.
	if cached, ok := r.cache.Get(server.URL + "/a"); !ok || cached != want {
		t.Errorf("expected cached mapping to %q, got %q (present=%v)", want, cached, ok)
	}
}

func TestResolver_RedirectWithoutLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound) // no Location header
	}))
	defer server.Close()

	r := newTestResolver(t, Options{})

	got, err := r.Resolve(context.Background(), server.URL+"/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != server.URL+"/x" {
		t.Errorf("expected current URL as final, got %q", got)
	}
}

func TestResolver_RedirectLimit(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n), http.StatusFound)
	}))
	defer server.Close()

	r := newTestResolver(t, Options{MaxRedirects: 3})

	got, err := r.Resolve(context.Background(), server.URL+"/hop/0")
	if !errors.Is(err, utils.ErrRedirectExceeded) {
		t.Fatalf("expected ErrRedirectExceeded, got %v", err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected exactly 3 requests, got %d", n)
	}
	// The last Location is returned without being fetched.
	if got != server.URL+"/hop/3" {
		t.Errorf("expected last redirect target, got %q", got)
	}

	// The fallback is cached too.
	if cached, ok := r.cache.Get(server.URL + "/hop/0"); !ok || cached != got {
		t.Errorf("expected fallback cached as %q, got %q (present=%v)", got, cached, ok)
	}
}

func TestResolver_NetworkFailureFallsBack(t *testing.T) {
	transport := &erroringTransport{}
	r := newTestResolver(t, Options{
		Client:     &http.Client{Transport: transport},
		MaxRetries: 1,
	})

	const target = "https://unreachable.example/page"
	got, err := r.Resolve(context.Background(), target)
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Fatalf("expected ErrRetryFailed, got %v", err)
	}
	if got != target {
		t.Errorf("expected original URL as fallback, got %q", got)
	}
	if n := transport.attempts.Load(); n != 2 {
		t.Errorf("expected 2 attempts (1 retry), got %d", n)
	}
	if cached, ok := r.cache.Get(target); !ok || cached != target {
		t.Errorf("expected identity mapping cached, got %q (present=%v)", cached, ok)
	}
}

func TestResolver_RepairsRelativeLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := newTestResolver(t, Options{Base: server.URL})

	got, err := r.Resolve(context.Background(), "/landing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != server.URL+"/landing" {
		t.Errorf("expected repaired URL, got %q", got)
	}
}

func TestResolver_InvalidBaseReturnsOriginal(t *testing.T) {
	r := newTestResolver(t, Options{
		Client: &http.Client{Transport: &failingTransport{t}},
		Base:   "::bad",
	})

	got, err := r.Resolve(context.Background(), "/cannot/fix")
	if !errors.Is(err, utils.ErrInvalidBaseURL) {
		t.Fatalf("expected ErrInvalidBaseURL, got %v", err)
	}
	if got != "/cannot/fix" {
		t.Errorf("expected original URL back, got %q", got)
	}
	if cached, ok := r.cache.Get("/cannot/fix"); !ok || cached != "/cannot/fix" {
		t.Errorf("expected identity mapping cached, got %q (present=%v)", cached, ok)
	}
}

func TestResolver_StripsCookieAndSetsReferer(t *testing.T) {
	var gotCookie, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotReferer = r.Header.Get("Referer")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Cookie", "session=abc")
	headers.Set("User-Agent", "test-agent")
	r := newTestResolver(t, Options{Headers: headers})

	if _, err := r.Resolve(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCookie != "" {
		t.Errorf("expected Cookie to be stripped, got %q", gotCookie)
	}
	if gotReferer != server.URL {
		t.Errorf("expected Referer %q, got %q", server.URL, gotReferer)
	}
}
