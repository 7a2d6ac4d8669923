package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"fbposts/pkg/checker"
	"fbposts/pkg/proxysource"
)

// SaveHealth upserts check results in a single transaction. Healthy results
// reset the failure count, others increment it.
func (s *Store) SaveHealth(ctx context.Context, results []checker.CheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	healthyQuery := `
		INSERT INTO proxies (host, port, proxy_type, country, status, response_time_ms, fail_count, first_seen_at, last_checked_at, last_healthy_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(host, port) DO UPDATE SET
			proxy_type = excluded.proxy_type,
			status = excluded.status,
			response_time_ms = excluded.response_time_ms,
			fail_count = 0,
			last_checked_at = excluded.last_checked_at,
			last_healthy_at = excluded.last_healthy_at
	`
	unhealthyQuery := `
		INSERT INTO proxies (host, port, proxy_type, country, status, response_time_ms, fail_count, first_seen_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(host, port) DO UPDATE SET
			proxy_type = excluded.proxy_type,
			status = excluded.status,
			response_time_ms = excluded.response_time_ms,
			fail_count = fail_count + 1,
			last_checked_at = excluded.last_checked_at
	`

	healthyStmt, err := tx.PreparexContext(ctx, healthyQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare healthy statement: %w", err)
	}
	defer healthyStmt.Close()

	unhealthyStmt, err := tx.PreparexContext(ctx, unhealthyQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare unhealthy statement: %w", err)
	}
	defer unhealthyStmt.Close()

	for _, result := range results {
		p := result.Proxy
		checkedAt := result.CheckedAt.Unix()
		if result.CheckedAt.IsZero() {
			checkedAt = now
		}
		ms := result.ResponseTime.Milliseconds()

		if result.Status == checker.StatusHealthy {
			_, err = healthyStmt.ExecContext(ctx, p.Host, p.Port, p.Type, p.Country, result.Status.String(), ms, now, checkedAt, checkedAt)
		} else {
			_, err = unhealthyStmt.ExecContext(ctx, p.Host, p.Port, p.Type, p.Country, result.Status.String(), ms, now, checkedAt)
		}
		if err != nil {
			return fmt.Errorf("failed to update proxy %s: %w", p.Address(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugBg("Batch updated %d proxy health records", len(results))
	return nil
}

// CachedHealth returns the stored result for each known address.
func (s *Store) CachedHealth(ctx context.Context, addresses []string) (map[string]checker.CheckResult, error) {
	result := make(map[string]checker.CheckResult)
	if len(addresses) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM proxies
		WHERE (host || ':' || port) IN (?) AND last_checked_at IS NOT NULL`, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy lookup: %w", err)
	}

	var rows []proxyRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get proxies by addresses: %w", err)
	}

	for _, row := range rows {
		r := checker.CheckResult{
			Proxy:        row.proxy(),
			Status:       checker.ParseStatus(row.Status),
			ResponseTime: time.Duration(row.ResponseTimeMs) * time.Millisecond,
			CheckedAt:    time.Unix(row.LastCheckedAt.Int64, 0),
		}
		result[r.Proxy.Address()] = r
	}
	return result, nil
}

// HealthyProxies returns cached healthy proxies, most recently healthy first.
func (s *Store) HealthyProxies(ctx context.Context) ([]proxysource.Proxy, error) {
	var rows []proxyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM proxies
		WHERE status = 'healthy'
		ORDER BY last_healthy_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get healthy proxies: %w", err)
	}

	proxies := make([]proxysource.Proxy, 0, len(rows))
	for _, row := range rows {
		proxies = append(proxies, row.proxy())
	}
	return proxies, nil
}

// CacheSource serves the healthy proxies remembered from earlier runs.
type CacheSource struct {
	store *Store
}

// ProxySource exposes the proxy cache as a proxy source.
func (s *Store) ProxySource() *CacheSource {
	return &CacheSource{store: s}
}

func (c *CacheSource) Name() string {
	return "cache"
}

func (c *CacheSource) Load(ctx context.Context) ([]proxysource.Proxy, error) {
	return c.store.HealthyProxies(ctx)
}

// CleanupOldProxies removes proxies that haven't been healthy for a long time
func (s *Store) CleanupOldProxies(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM proxies WHERE (last_healthy_at IS NULL AND first_seen_at < ?) OR last_healthy_at < ?`,
		cutoff, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old proxies: %w", err)
	}
	return res.RowsAffected()
}

// GetProxyStats returns statistics about the proxy cache
func (s *Store) GetProxyStats(ctx context.Context) (ProxyStats, error) {
	var stats ProxyStats

	if err := s.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM proxies"); err != nil {
		return stats, fmt.Errorf("failed to count total proxies: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.Healthy, "SELECT COUNT(*) FROM proxies WHERE status = 'healthy'"); err != nil {
		return stats, fmt.Errorf("failed to count healthy proxies: %w", err)
	}

	var byType []struct {
		ProxyType string `db:"proxy_type"`
		Count     int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &byType, "SELECT proxy_type, COUNT(*) AS n FROM proxies GROUP BY proxy_type"); err != nil {
		return stats, fmt.Errorf("failed to get proxy types: %w", err)
	}

	stats.ByType = make(map[string]int, len(byType))
	for _, t := range byType {
		stats.ByType[t.ProxyType] = t.Count
	}
	return stats, nil
}

func (row proxyRow) proxy() proxysource.Proxy {
	p := proxysource.Proxy{
		Host:    row.Host,
		Port:    row.Port,
		Type:    strings.ToLower(row.ProxyType),
		Country: row.Country,
	}
	if row.LastHealthyAt.Valid {
		p.LastSeen = time.Unix(row.LastHealthyAt.Int64, 0)
	}
	return p
}
