package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
)

// proxyCtxKey carries an optional per-request proxy URL through the request
// context. The resolver picks a fresh proxy per attempt, so the proxy cannot
// live on the transport itself.
type proxyCtxKey struct{}

// WithProxy returns a context that instructs clients built by
// NewResolveClient to route the request through proxyURL.
func WithProxy(ctx context.Context, proxyURL *url.URL) context.Context {
	return context.WithValue(ctx, proxyCtxKey{}, proxyURL)
}

// ProxyFromContext extracts the per-request proxy set by WithProxy, if any.
func ProxyFromContext(ctx context.Context) *url.URL {
	p, _ := ctx.Value(proxyCtxKey{}).(*url.URL)
	return p
}

// NewClient creates a new HTTP client based on the provided configuration.
// Redirects are followed automatically (used for result pages and content
// enrichment, not for URL resolution).
func NewClient(cfg config.HTTPClientConfig, log *logrus.Logger) *http.Client {
	log.Info("Initializing HTTP client...")

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newTransport(cfg, http.ProxyFromEnvironment),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Default Go behavior is 10 redirects max
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.Info("HTTP client initialized.")
	return client
}

// NewResolveClient creates the HTTP client used by the redirect resolver.
// Automatic redirect following is disabled so each hop can be inspected,
// cached, bounded, and retried individually, and the proxy is taken from the
// request context so every attempt may rotate to a different one.
func NewResolveClient(cfg config.HTTPClientConfig, log *logrus.Logger) *http.Client {
	log.Info("Initializing resolve HTTP client (manual redirects)...")

	proxyFn := func(req *http.Request) (*url.URL, error) {
		if p := ProxyFromContext(req.Context()); p != nil {
			return p, nil
		}
		return nil, nil
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newTransport(cfg, proxyFn),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newTransport(cfg config.HTTPClientConfig, proxy func(*http.Request) (*url.URL, error)) *http.Transport {
	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  proxy,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true, // Default to true unless explicitly disabled
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20, // 1MB max header size
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}
	return transport
}
