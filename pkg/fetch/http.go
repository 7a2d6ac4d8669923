package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	netproxy "golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"fbposts/pkg/pool"
	"fbposts/pkg/proxysource"
)

const (
	defaultBaseURL      = "https://mbasic.facebook.com"
	defaultTimeout      = 20 * time.Second
	defaultMaxBodyBytes = 8 * 1024 * 1024
)

type HTTPConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

// HTTPFetcher fetches pages over net/http, routing each attempt through the
// identity's proxy and pacing requests with a shared token bucket.
type HTTPFetcher struct {
	baseURL      string
	timeout      time.Duration
	maxBodyBytes int64
	limiter      *rate.Limiter

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPFetcher{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		limiter:      limiter,
		clients:      make(map[string]*http.Client),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref Ref, id pool.Identity) (Payload, error) {
	pageURL, err := f.ResolveURL(ref)
	if err != nil {
		return Payload{}, &TransportError{Class: ClassMalformedRequest, Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Payload{}, &TransportError{Class: ClassTimeout, URL: pageURL, Err: err}
	}

	client, err := f.clientFor(id)
	if err != nil {
		return Payload{}, &TransportError{Class: ClassConnectionReset, URL: pageURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Payload{}, &TransportError{Class: ClassMalformedRequest, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return Payload{}, &TransportError{Class: ClassOf(err), URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if class, failed := ClassForStatus(resp.StatusCode); failed {
		return Payload{}, &TransportError{Class: class, StatusCode: resp.StatusCode, URL: pageURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return Payload{}, &TransportError{Class: ClassOf(err), URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return Payload{}, &TransportError{
			Class:      ClassMalformedRequest,
			StatusCode: resp.StatusCode,
			URL:        pageURL,
			Err:        fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBodyBytes),
		}
	}

	return Payload{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// ResolveURL turns a target and cursor into the page URL. Targets may be
// absolute URLs or page names relative to the base URL. A cursor that is a
// URL (absolute or rooted) replaces the page URL, any other cursor is sent
// as the cursor query parameter.
func (f *HTTPFetcher) ResolveURL(ref Ref) (string, error) {
	target := strings.TrimSpace(ref.Target)
	if target == "" {
		return "", fmt.Errorf("empty target")
	}

	var base *url.URL
	var err error
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		base, err = url.Parse(target)
	} else {
		base, err = url.Parse(f.baseURL + "/" + strings.TrimLeft(target, "/"))
	}
	if err != nil {
		return "", fmt.Errorf("parse target %q: %w", target, err)
	}

	cursor := string(ref.Cursor)
	if cursor == "" {
		return base.String(), nil
	}

	if strings.HasPrefix(cursor, "http://") || strings.HasPrefix(cursor, "https://") || strings.HasPrefix(cursor, "/") {
		next, err := base.Parse(cursor)
		if err != nil {
			return "", fmt.Errorf("parse cursor: %w", err)
		}
		return next.String(), nil
	}

	query := base.Query()
	query.Set("cursor", cursor)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (f *HTTPFetcher) clientFor(id pool.Identity) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := id.Key()
	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	transport, err := NewTransport(id.Proxy)
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			if isLoginWall(req.URL) {
				return errBlockedRedirect
			}
			return nil
		},
	}
	f.clients[key] = client
	return client, nil
}

func isLoginWall(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	return strings.HasPrefix(path, "/login") || strings.Contains(path, "checkpoint")
}

// NewTransport builds an http.Transport routed through proxy. A nil proxy
// dials directly. SOCKS4 proxies are dialed with the SOCKS5 client, which
// most SOCKS4 servers accept.
func NewTransport(proxy *proxysource.Proxy) (*http.Transport, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxy == nil {
		return transport, nil
	}

	switch proxy.Type {
	case "socks4", "socks5":
		dialer, err := netproxy.SOCKS5("tcp", proxy.Address(), nil, netproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS dialer: %w", err)
		}
		if ctxDialer, ok := dialer.(netproxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		transport.Proxy = http.ProxyURL(proxy.URL())
	}

	return transport, nil
}
