package checker

import (
	"context"
	"time"

	"fbposts/pkg/proxysource"
)

// HealthCache stores the latest check result per proxy address.
type HealthCache interface {
	CachedHealth(ctx context.Context, addresses []string) (map[string]CheckResult, error)
	SaveHealth(ctx context.Context, results []CheckResult) error
}

// CachedChecker skips proxies that were checked within checkInterval and
// reuses their stored result.
type CachedChecker struct {
	*Checker
	cache         HealthCache
	checkInterval time.Duration
}

func NewCachedChecker(c *Checker, cache HealthCache, checkInterval time.Duration) *CachedChecker {
	return &CachedChecker{
		Checker:       c,
		cache:         cache,
		checkInterval: checkInterval,
	}
}

// CheckProxies returns one result per proxy in input order, mixing fresh
// checks with cached results.
func (c *CachedChecker) CheckProxies(ctx context.Context, proxies []proxysource.Proxy) []CheckResult {
	if len(proxies) == 0 {
		return nil
	}

	addresses := make([]string, len(proxies))
	for i, proxy := range proxies {
		addresses[i] = proxy.Address()
	}

	cached, err := c.cache.CachedHealth(ctx, addresses)
	if err != nil {
		c.logger.WarnBg("Failed to read proxy health cache, checking all: %v", err)
		cached = nil
	}

	cutoff := time.Now().Add(-c.checkInterval)
	var toCheck []proxysource.Proxy
	for _, proxy := range proxies {
		if r, ok := cached[proxy.Address()]; !ok || r.CheckedAt.Before(cutoff) {
			toCheck = append(toCheck, proxy)
		}
	}
	c.logger.InfoBg("%d of %d proxies need checking (cache window %s)", len(toCheck), len(proxies), c.checkInterval)

	fresh := make(map[string]CheckResult, len(toCheck))
	if len(toCheck) > 0 {
		results := c.Checker.CheckProxies(ctx, toCheck)
		for _, r := range results {
			fresh[r.Proxy.Address()] = r
		}

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := c.cache.SaveHealth(saveCtx, results); err != nil {
			c.logger.WarnBg("Failed to save proxy health: %v", err)
		}
		cancel()
	}

	all := make([]CheckResult, 0, len(proxies))
	for _, proxy := range proxies {
		addr := proxy.Address()
		if r, ok := fresh[addr]; ok {
			all = append(all, r)
			continue
		}
		if r, ok := cached[addr]; ok && !r.CheckedAt.Before(cutoff) {
			r.Proxy = proxy
			all = append(all, r)
		}
	}

	counts := CountByStatus(all)
	c.logger.InfoBg("Proxy health: %d healthy of %d (%d from cache)", counts[StatusHealthy], len(all), len(all)-len(fresh))
	return all
}

func (c *CachedChecker) Healthy(ctx context.Context, proxies []proxysource.Proxy) []proxysource.Proxy {
	return FilterHealthyProxies(c.CheckProxies(ctx, proxies))
}
