package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fbposts/internal/logger"
	"fbposts/pkg/pool"
	"fbposts/pkg/proxysource"
)

var ErrNoHealthyProxies = errors.New("no healthy proxies after check")

type ProxyLoader interface {
	LoadAll(ctx context.Context) ([]proxysource.Proxy, error)
}

// ProxyFilter keeps the proxies fit for use, typically after a health check.
type ProxyFilter func(ctx context.Context, proxies []proxysource.Proxy) []proxysource.Proxy

// LoadProxies loads proxies from loader and passes them through filter when
// one is given.
func LoadProxies(ctx context.Context, loader ProxyLoader, filter ProxyFilter) ([]proxysource.Proxy, error) {
	proxies, err := loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load proxies: %w", err)
	}
	if filter == nil || len(proxies) == 0 {
		return proxies, nil
	}

	healthy := filter(ctx, proxies)
	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w (%d checked)", ErrNoHealthyProxies, len(proxies))
	}
	return healthy, nil
}

// Refresher reloads and rechecks the proxy list on an interval and swaps it
// into the pool.
type Refresher struct {
	loader  ProxyLoader
	filter  ProxyFilter
	pool    *pool.Pool
	timeout time.Duration
	ticker  *time.Ticker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logger.Logger
}

func NewRefresher(loader ProxyLoader, filter ProxyFilter, p *pool.Pool) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Refresher{
		loader:  loader,
		filter:  filter,
		pool:    p,
		timeout: 2 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.New("refresh"),
	}
}

// Refresh reloads the proxy list once. On failure the pool keeps its
// current proxies.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	proxies, err := LoadProxies(ctx, r.loader, r.filter)
	if err != nil {
		return 0, err
	}
	if len(proxies) == 0 {
		return 0, ErrNoHealthyProxies
	}

	r.pool.Replace(proxies)
	r.logger.InfoBg("Pool refreshed: %d proxies loaded, %d in rotation", len(proxies), r.pool.Count())
	return r.pool.Count(), nil
}

func (r *Refresher) Start(interval time.Duration) {
	r.ticker = time.NewTicker(interval)

	r.wg.Add(1)
	go r.updateLoop()

	r.logger.InfoBg("Proxy refresh every %s", interval)
}

func (r *Refresher) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}

	r.cancel()
	r.wg.Wait()
}

func (r *Refresher) updateLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.ticker.C:
			if _, err := r.Refresh(r.ctx); err != nil {
				r.logger.WarnBg("Failed to refresh proxies: %v", err)
			}
		}
	}
}
