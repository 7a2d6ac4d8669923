// Package pool hands out transport identities (proxy + browser fingerprint)
// to fetch attempts and retires proxies that keep failing.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"fbposts/internal/logger"
	"fbposts/pkg/proxysource"
)

// DefaultUserAgent is used when no fingerprints are configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

var ErrNoIdentity = errors.New("no healthy proxies available")

// Identity is the transport identity of one fetch attempt. A nil Proxy means
// a direct connection.
type Identity struct {
	Proxy     *proxysource.Proxy
	UserAgent string
}

// Key identifies the identity's network route.
func (i Identity) Key() string {
	if i.Proxy == nil {
		return "direct"
	}
	return i.Proxy.Address()
}

func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.Key(), i.UserAgent)
}

// Provider is the capability the retry controller needs from a pool.
type Provider interface {
	Next() (Identity, error)
	Release(Identity)
	ReportFailure(Identity)
}

type Pool struct {
	proxies      []proxysource.Proxy
	userAgents   []string
	failCount    map[string]int
	leased       map[string]int
	mu           sync.RWMutex
	currentIndex int
	uaIndex      int
	maxFails     int
	direct       bool
	logger       *logger.Logger
}

// New builds a pool over proxies. With no proxies the pool serves direct
// identities and only rotates fingerprints.
func New(proxies []proxysource.Proxy, userAgents []string, maxFails int) *Pool {
	if len(userAgents) == 0 {
		userAgents = []string{DefaultUserAgent}
	}
	if maxFails <= 0 {
		maxFails = 3
	}
	return &Pool{
		proxies:    append([]proxysource.Proxy(nil), proxies...),
		userAgents: append([]string(nil), userAgents...),
		failCount:  make(map[string]int),
		leased:     make(map[string]int),
		maxFails:   maxFails,
		direct:     len(proxies) == 0,
		logger:     logger.New("pool"),
	}
}

// Next returns the next identity in round-robin order.
func (p *Pool) Next() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ua := p.userAgents[p.uaIndex]
	p.uaIndex = (p.uaIndex + 1) % len(p.userAgents)

	if p.direct {
		p.leased["direct"]++
		return Identity{UserAgent: ua}, nil
	}

	if len(p.proxies) == 0 {
		return Identity{}, ErrNoIdentity
	}

	proxy := p.proxies[p.currentIndex]
	p.currentIndex = (p.currentIndex + 1) % len(p.proxies)
	p.leased[proxy.Address()]++

	return Identity{Proxy: &proxy, UserAgent: ua}, nil
}

// Release returns a leased identity.
func (p *Pool) Release(id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := id.Key()
	if p.leased[key] > 0 {
		p.leased[key]--
	}
}

// ReportFailure counts a failure against the identity's proxy and evicts it
// once it reaches maxFails.
func (p *Pool) ReportFailure(id Identity) {
	if id.Proxy == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := id.Proxy.Address()
	p.failCount[key]++

	if p.failCount[key] >= p.maxFails {
		p.removeProxy(key)
		p.logger.WarnBg("Removed failing proxy: %s (failed %d times)", key, p.failCount[key])
	}
}

// Replace swaps in a fresh proxy list, keeping failure history.
func (p *Pool) Replace(proxies []proxysource.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]proxysource.Proxy, 0, len(proxies))
	for _, proxy := range proxies {
		if p.failCount[proxy.Address()] < p.maxFails {
			kept = append(kept, proxy)
		}
	}
	p.proxies = kept
	p.currentIndex = 0
}

func (p *Pool) removeProxy(targetKey string) {
	newProxies := make([]proxysource.Proxy, 0, len(p.proxies))

	for _, proxy := range p.proxies {
		if proxy.Address() != targetKey {
			newProxies = append(newProxies, proxy)
		}
	}

	p.proxies = newProxies

	if p.currentIndex >= len(p.proxies) {
		p.currentIndex = 0
	}
}

func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

func (p *Pool) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		TotalProxies: len(p.proxies),
		Direct:       p.direct,
		UserAgents:   len(p.userAgents),
		TypeCount:    make(map[string]int),
	}

	for _, proxy := range p.proxies {
		stats.TypeCount[proxy.Type]++
	}
	for _, fails := range p.failCount {
		if fails >= p.maxFails {
			stats.Evicted++
		}
	}
	for _, n := range p.leased {
		stats.Leased += n
	}

	return stats
}

type Stats struct {
	TotalProxies int
	Evicted      int
	Leased       int
	UserAgents   int
	Direct       bool
	TypeCount    map[string]int
}
