// Package checker tests proxies before they enter the identity pool.
package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fbposts/internal/logger"
	"fbposts/pkg/fetch"
	"fbposts/pkg/pool"
	"fbposts/pkg/proxysource"
)

type ProxyStatus int

const (
	StatusUnknown ProxyStatus = iota
	StatusHealthy
	StatusUnhealthy
	StatusTimeout
	StatusError
)

func (s ProxyStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of ProxyStatus.String.
func ParseStatus(s string) ProxyStatus {
	switch s {
	case "healthy":
		return StatusHealthy
	case "unhealthy":
		return StatusUnhealthy
	case "timeout":
		return StatusTimeout
	case "error":
		return StatusError
	default:
		return StatusUnknown
	}
}

type CheckResult struct {
	Proxy        proxysource.Proxy
	Status       ProxyStatus
	ResponseTime time.Duration
	Error        error
	CheckedAt    time.Time
}

type Checker struct {
	testURL    string
	timeout    time.Duration
	maxWorkers int
	userAgent  string
	logger     *logger.Logger
}

type Config struct {
	TestURL    string
	Timeout    time.Duration
	MaxWorkers int
	UserAgent  string
}

// New builds a checker; zero fields take the defaults.
func New(config Config) *Checker {
	c := &Checker{
		testURL:    "https://www.facebook.com/robots.txt",
		timeout:    20 * time.Second,
		maxWorkers: 20,
		userAgent:  pool.DefaultUserAgent,
		logger:     logger.New("checker"),
	}
	if config.TestURL != "" {
		c.testURL = config.TestURL
	}
	if config.Timeout > 0 {
		c.timeout = config.Timeout
	}
	if config.MaxWorkers > 0 {
		c.maxWorkers = config.MaxWorkers
	}
	if config.UserAgent != "" {
		c.userAgent = config.UserAgent
	}
	return c
}

func (c *Checker) CheckProxy(ctx context.Context, proxy proxysource.Proxy) CheckResult {
	start := time.Now()
	result := CheckResult{
		Proxy:     proxy,
		CheckedAt: start,
	}

	status, err := c.testProxy(ctx, proxy)
	result.Status = status
	result.Error = err
	result.ResponseTime = time.Since(start)

	return result
}

func (c *Checker) CheckProxies(ctx context.Context, proxies []proxysource.Proxy) []CheckResult {
	if len(proxies) == 0 {
		return nil
	}

	workers := c.maxWorkers
	if workers > len(proxies) {
		workers = len(proxies)
	}

	proxyQueue := make(chan proxysource.Proxy, len(proxies))
	resultQueue := make(chan CheckResult, len(proxies))

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for proxy := range proxyQueue {
				select {
				case <-ctx.Done():
					return
				default:
					resultQueue <- c.CheckProxy(ctx, proxy)
				}
			}
		}()
	}

	for _, proxy := range proxies {
		proxyQueue <- proxy
	}
	close(proxyQueue)

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	var results []CheckResult
	logged := make(map[ProxyStatus]int)

	for result := range resultQueue {
		results = append(results, result)
		if result.Status == StatusHealthy {
			continue
		}
		// First few failures per status only
		if logged[result.Status]++; logged[result.Status] <= 3 {
			c.logger.DebugBg("Proxy %s (%s) failed: %s (error: %v)",
				result.Proxy.Address(), result.Proxy.Type, result.Status, result.Error)
		}
	}

	counts := CountByStatus(results)
	c.logger.InfoBg("Checked %d proxies: %d healthy, %d unhealthy, %d timeout, %d error",
		len(results), counts[StatusHealthy], counts[StatusUnhealthy], counts[StatusTimeout], counts[StatusError])
	return results
}

// Healthy checks proxies and keeps the healthy ones.
func (c *Checker) Healthy(ctx context.Context, proxies []proxysource.Proxy) []proxysource.Proxy {
	return FilterHealthyProxies(c.CheckProxies(ctx, proxies))
}

func (c *Checker) testProxy(ctx context.Context, proxy proxysource.Proxy) (ProxyStatus, error) {
	transport, err := fetch.NewTransport(&proxy)
	if err != nil {
		return StatusError, err
	}
	transport.DisableKeepAlives = true
	transport.DisableCompression = true
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.ResponseHeaderTimeout = 10 * time.Second
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Don't follow redirects
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.testURL, nil)
	if err != nil {
		return StatusError, err
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain, text/html, application/json")
	req.Header.Set("Connection", "close")

	resp, err := client.Do(req)
	if err != nil {
		if fetch.IsTimeout(err) {
			return StatusTimeout, err
		}
		if fetch.IsConnectionError(err) {
			return StatusUnhealthy, err
		}
		return StatusError, err
	}
	defer resp.Body.Close()

	// Accept any 2xx status code
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return StatusHealthy, nil
	}

	return StatusUnhealthy, fmt.Errorf("HTTP %d", resp.StatusCode)
}

func FilterHealthyProxies(results []CheckResult) []proxysource.Proxy {
	var healthy []proxysource.Proxy
	for _, result := range results {
		if result.Status == StatusHealthy {
			healthy = append(healthy, result.Proxy)
		}
	}
	return healthy
}

// CountByStatus tallies results per status.
func CountByStatus(results []CheckResult) map[ProxyStatus]int {
	counts := make(map[ProxyStatus]int)
	for _, result := range results {
		counts[result.Status]++
	}
	return counts
}
