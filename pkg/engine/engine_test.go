package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/dedup"
	"fbposts/pkg/fetch"
	"fbposts/pkg/metrics"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
	"fbposts/pkg/post"
	"fbposts/pkg/retry"
	"fbposts/pkg/sink"
)

func page(next string, ids ...string) string {
	posts := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		posts = append(posts, map[string]any{
			"post_id": id,
			"url":     "https://www.facebook.com/acme/posts/" + id,
			"author":  map[string]any{"name": "Acme"},
		})
	}
	body := map[string]any{"data": posts}
	if next != "" {
		body["next_cursor"] = next
	}
	data, _ := json.Marshal(body)
	return string(data)
}

// siteFetcher serves scripted pages per target and records every request.
type siteFetcher struct {
	mu      sync.Mutex
	pages   map[string]map[post.Cursor]string
	fetched map[string][]post.Cursor
}

func (f *siteFetcher) Fetch(_ context.Context, ref fetch.Ref, _ pool.Identity) (fetch.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched == nil {
		f.fetched = make(map[string][]post.Cursor)
	}
	f.fetched[ref.Target] = append(f.fetched[ref.Target], ref.Cursor)

	body, ok := f.pages[ref.Target][ref.Cursor]
	if !ok {
		return fetch.Payload{}, fetch.NewError(fetch.ClassNotFound, fmt.Errorf("no page %s/%s", ref.Target, ref.Cursor))
	}
	return fetch.Payload{URL: "https://mbasic.example.com/" + ref.Target, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *siteFetcher) cursors(target string) []post.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[target]
}

type memoryCheckpoints struct {
	mu    sync.Mutex
	saved map[string]pagination.Summary
	start map[string]post.Cursor
}

func (m *memoryCheckpoints) SaveCheckpoint(_ context.Context, _ string, s pagination.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]pagination.Summary)
	}
	m.saved[s.Target] = s
	return nil
}

func (m *memoryCheckpoints) LastCheckpoint(_ context.Context, target string) (post.Cursor, bool, error) {
	c, ok := m.start[target]
	return c, ok, nil
}

func testConfig(scope string) Config {
	return Config{
		Retry:       retry.Config{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond, RotateEvery: 2},
		DedupScope:  scope,
		Concurrency: 2,
	}
}

func overlappingSite() *siteFetcher {
	return &siteFetcher{pages: map[string]map[post.Cursor]string{
		"alpha": {"": page("a1", "1", "shared"), "a1": page("", "2")},
		"beta":  {"": page("", "shared", "3")},
	}}
}

func emittedIDs(records []post.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.PostID]++
	}
	return counts
}

func TestRunSharedDedupScope(t *testing.T) {
	out := sink.NewCollector()
	e := New(testConfig(ScopeRun), overlappingSite(), pool.New(nil, nil, 3), out)

	report, err := e.Run(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1, "shared": 1}, emittedIDs(out.Records()))
	require.Len(t, report.Summaries, 2)
	assert.Equal(t, "alpha", report.Summaries[0].Target)
	assert.Equal(t, "beta", report.Summaries[1].Target)
	assert.NotEmpty(t, report.RunID)

	totals := report.Totals()
	assert.Equal(t, 4, totals.Emitted)
	assert.Equal(t, 1, totals.Dropped)
	assert.Equal(t, 3, totals.Pages)
	assert.Zero(t, totals.Failed)

	assert.Equal(t, dedup.Stats{Accepted: 4, Suppressed: 1}, report.Dedup)
	require.NotNil(t, report.Pool)
	assert.True(t, report.Pool.Direct)
	assert.Zero(t, report.Pool.Leased)
}

func TestRunPerTargetDedupScope(t *testing.T) {
	out := sink.NewCollector()
	e := New(testConfig(ScopePerTarget), overlappingSite(), pool.New(nil, nil, 3), out)

	report, err := e.Run(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, 2, emittedIDs(out.Records())["shared"])
	assert.Zero(t, report.Totals().Dropped)
	assert.Equal(t, dedup.Stats{Accepted: 5}, report.Dedup)
}

func TestRunFailingTargetDoesNotStopOthers(t *testing.T) {
	site := overlappingSite()
	out := sink.NewCollector()
	e := New(testConfig(ScopeRun), site, pool.New(nil, nil, 3), out)

	report, err := e.Run(context.Background(), []string{"gone", "beta"})
	require.NoError(t, err)

	assert.Equal(t, pagination.ReasonFatalFetch, report.Summaries[0].Reason)
	assert.ErrorIs(t, report.Summaries[0].Err, post.ErrFatalFetch)
	assert.Equal(t, pagination.ReasonExhausted, report.Summaries[1].Reason)
	assert.Len(t, out.Records(), 2)
	assert.Equal(t, 1, report.Totals().Failed)
}

func TestRunCancelledContext(t *testing.T) {
	site := overlappingSite()
	e := New(testConfig(ScopeRun), site, pool.New(nil, nil, 3), sink.NewCollector())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx, []string{"alpha", "beta"})
	require.ErrorIs(t, err, post.ErrCancelled)
	assert.True(t, report.Cancelled)
	for _, s := range report.Summaries {
		assert.Equal(t, pagination.ReasonCancelled, s.Reason)
	}
	assert.Empty(t, site.cursors("alpha"))
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	site := overlappingSite()
	store := &memoryCheckpoints{start: map[string]post.Cursor{"alpha": "a1"}}
	out := sink.NewCollector()

	e := New(testConfig(ScopeRun), site, pool.New(nil, nil, 3), out, WithCheckpoints(store, true))
	_, err := e.Run(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, []post.Cursor{"a1"}, site.cursors("alpha"))
	assert.Equal(t, []post.Cursor{""}, site.cursors("beta"))
	require.Len(t, store.saved, 2)
	assert.Equal(t, pagination.ReasonExhausted, store.saved["alpha"].Reason)
}

func TestRunIgnoresCheckpointsWithoutResume(t *testing.T) {
	site := overlappingSite()
	store := &memoryCheckpoints{start: map[string]post.Cursor{"alpha": "a1"}}

	e := New(testConfig(ScopeRun), site, pool.New(nil, nil, 3), sink.NewCollector(), WithCheckpoints(store, false))
	_, err := e.Run(context.Background(), []string{"alpha"})
	require.NoError(t, err)

	assert.Equal(t, []post.Cursor{"", "a1"}, site.cursors("alpha"))
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := New(testConfig(ScopeRun), overlappingSite(), pool.New(nil, nil, 3), sink.NewCollector(), WithMetrics(m))

	_, err := e.Run(context.Background(), []string{"alpha", "beta", "gone"})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TargetsFinished.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TargetsFinished.WithLabelValues("fatal_fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FatalFetches.WithLabelValues("not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveTargets))
}

func TestRunNoTargets(t *testing.T) {
	e := New(DefaultConfig(), overlappingSite(), pool.New(nil, nil, 3), sink.NewCollector())
	_, err := e.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTargets)
}
