package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/proxysource"
)

func testProxies() []proxysource.Proxy {
	return []proxysource.Proxy{
		{Host: "10.0.0.1", Port: 8080, Type: "http"},
		{Host: "10.0.0.2", Port: 1080, Type: "socks5"},
	}
}

func TestNextRoundRobin(t *testing.T) {
	p := New(testProxies(), []string{"ua-a", "ua-b", "ua-c"}, 3)

	var keys, agents []string
	for range 4 {
		id, err := p.Next()
		require.NoError(t, err)
		keys = append(keys, id.Key())
		agents = append(agents, id.UserAgent)
	}

	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:1080", "10.0.0.1:8080", "10.0.0.2:1080"}, keys)
	assert.Equal(t, []string{"ua-a", "ua-b", "ua-c", "ua-a"}, agents)
}

func TestDirectPoolRotatesFingerprints(t *testing.T) {
	p := New(nil, []string{"ua-a", "ua-b"}, 3)

	first, err := p.Next()
	require.NoError(t, err)
	second, err := p.Next()
	require.NoError(t, err)

	assert.Nil(t, first.Proxy)
	assert.Equal(t, "direct", first.Key())
	assert.NotEqual(t, first.UserAgent, second.UserAgent)
	assert.True(t, p.GetStats().Direct)
}

func TestDefaultUserAgent(t *testing.T) {
	id, err := New(nil, nil, 0).Next()
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, id.UserAgent)
}

func TestReportFailureEvicts(t *testing.T) {
	p := New(testProxies(), nil, 2)
	id, err := p.Next()
	require.NoError(t, err)

	p.ReportFailure(id)
	assert.Equal(t, 2, p.Count())
	p.ReportFailure(id)
	assert.Equal(t, 1, p.Count())

	for range 3 {
		next, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2:1080", next.Key())
	}

	stats := p.GetStats()
	assert.Equal(t, 1, stats.Evicted)
	assert.Equal(t, 1, stats.TypeCount["socks5"])
}

func TestExhaustedPool(t *testing.T) {
	p := New(testProxies()[:1], nil, 1)
	id, err := p.Next()
	require.NoError(t, err)
	p.ReportFailure(id)

	_, err = p.Next()
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestReplaceKeepsEvictionHistory(t *testing.T) {
	p := New(testProxies(), nil, 1)
	id, _ := p.Next()
	p.ReportFailure(id)

	p.Replace(testProxies())
	assert.Equal(t, 1, p.Count())
}

func TestReleaseTracksLeases(t *testing.T) {
	p := New(testProxies(), nil, 3)
	a, _ := p.Next()
	b, _ := p.Next()
	assert.Equal(t, 2, p.GetStats().Leased)

	p.Release(a)
	p.Release(b)
	p.Release(b)
	assert.Equal(t, 0, p.GetStats().Leased)
}

func TestConcurrentNext(t *testing.T) {
	p := New(testProxies(), nil, 3)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.Next()
			if err == nil {
				p.Release(id)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.GetStats().Leased)
}
