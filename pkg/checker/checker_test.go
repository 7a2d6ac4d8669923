package checker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/proxysource"
)

// forwardProxy answers every proxied request with status.
func forwardProxy(t *testing.T, status int) proxysource.Proxy {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return proxyFor(t, srv.URL)
}

func proxyFor(t *testing.T, rawURL string) proxysource.Proxy {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return proxysource.Proxy{Host: host, Port: port, Type: "http"}
}

func closedProxy(t *testing.T) proxysource.Proxy {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return proxyFor(t, "http://"+addr)
}

func newTestChecker() *Checker {
	return New(Config{TestURL: "http://check.invalid/robots.txt", Timeout: 2 * time.Second, MaxWorkers: 4})
}

func TestCheckProxyStatuses(t *testing.T) {
	c := newTestChecker()
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, c.CheckProxy(ctx, forwardProxy(t, http.StatusOK)).Status)

	bad := c.CheckProxy(ctx, forwardProxy(t, http.StatusBadGateway))
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.EqualError(t, bad.Error, "HTTP 502")

	refused := c.CheckProxy(ctx, closedProxy(t))
	assert.Equal(t, StatusUnhealthy, refused.Status)
	assert.Error(t, refused.Error)
}

func TestCheckProxiesFiltersHealthy(t *testing.T) {
	c := newTestChecker()
	good := forwardProxy(t, http.StatusOK)
	proxies := []proxysource.Proxy{good, forwardProxy(t, http.StatusForbidden), closedProxy(t)}

	results := c.CheckProxies(context.Background(), proxies)
	require.Len(t, results, 3)
	counts := CountByStatus(results)
	assert.Equal(t, 1, counts[StatusHealthy])
	assert.Equal(t, 2, counts[StatusUnhealthy])

	assert.Equal(t, []proxysource.Proxy{good}, c.Healthy(context.Background(), proxies))
	assert.Nil(t, c.CheckProxies(context.Background(), nil))
}

func TestParseStatusRoundTrip(t *testing.T) {
	for _, s := range []ProxyStatus{StatusUnknown, StatusHealthy, StatusUnhealthy, StatusTimeout, StatusError} {
		assert.Equal(t, s, ParseStatus(s.String()))
	}
}

type memoryCache struct {
	mu      sync.Mutex
	results map[string]CheckResult
	saved   int
}

func (m *memoryCache) CachedHealth(_ context.Context, addresses []string) (map[string]CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CheckResult)
	for _, addr := range addresses {
		if r, ok := m.results[addr]; ok {
			out[addr] = r
		}
	}
	return out, nil
}

func (m *memoryCache) SaveHealth(_ context.Context, results []CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		m.results[r.Proxy.Address()] = r
		m.saved++
	}
	return nil
}

func TestCachedCheckerSkipsRecentlyChecked(t *testing.T) {
	fresh := forwardProxy(t, http.StatusOK)
	stale := forwardProxy(t, http.StatusOK)
	unknown := forwardProxy(t, http.StatusOK)
	// Cached as unhealthy but recent: the stored verdict is kept.
	recent := proxysource.Proxy{Host: "10.1.1.1", Port: 8080, Type: "http"}

	cache := &memoryCache{results: map[string]CheckResult{
		recent.Address(): {Proxy: recent, Status: StatusUnhealthy, CheckedAt: time.Now()},
		fresh.Address():  {Proxy: fresh, Status: StatusHealthy, CheckedAt: time.Now()},
		stale.Address():  {Proxy: stale, Status: StatusUnhealthy, CheckedAt: time.Now().Add(-2 * time.Hour)},
	}}
	c := NewCachedChecker(newTestChecker(), cache, time.Hour)

	results := c.CheckProxies(context.Background(), []proxysource.Proxy{recent, fresh, stale, unknown})
	require.Len(t, results, 4)
	assert.Equal(t, recent.Address(), results[0].Proxy.Address())
	assert.Equal(t, StatusUnhealthy, results[0].Status)
	assert.Equal(t, StatusHealthy, results[2].Status, "stale entry is rechecked")
	assert.Equal(t, 2, cache.saved)

	healthy := c.Healthy(context.Background(), []proxysource.Proxy{recent, fresh, stale, unknown})
	assert.Len(t, healthy, 3)
}
