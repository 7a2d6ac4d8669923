// Package engine runs many targets through the extraction pipeline
// concurrently, sharing one identity pool and, depending on the dedup
// scope, one duplicate index.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fbposts/internal/logger"
	"fbposts/pkg/dedup"
	"fbposts/pkg/fetch"
	"fbposts/pkg/metrics"
	"fbposts/pkg/pagination"
	"fbposts/pkg/pool"
	"fbposts/pkg/post"
	"fbposts/pkg/retry"
)

// Dedup scopes.
const (
	ScopeRun       = "run"
	ScopePerTarget = "per-target"
)

var ErrNoTargets = errors.New("no targets given")

type Config struct {
	Retry       retry.Config
	Limits      pagination.Limits
	DedupScope  string
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		Retry:       retry.DefaultConfig(),
		DedupScope:  ScopeRun,
		Concurrency: 4,
	}
}

// IndexFactory returns the duplicate index for a namespace. The namespace
// is the run ID, suffixed with the target for per-target scope.
type IndexFactory func(namespace string) dedup.Index

// CheckpointStore persists where each target stopped so a later run can
// resume it.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, runID string, s pagination.Summary) error
	LastCheckpoint(ctx context.Context, target string) (post.Cursor, bool, error)
}

type Engine struct {
	cfg         Config
	fetcher     fetch.Fetcher
	pool        pool.Provider
	sink        pagination.Emitter
	parser      pagination.PageParser
	newIndex    IndexFactory
	observers   retry.Multi
	metrics     *metrics.Metrics
	checkpoints CheckpointStore
	resume      bool
	logger      *logger.Logger
}

type Option func(*Engine)

func WithParser(p pagination.PageParser) Option {
	return func(e *Engine) {
		e.parser = p
	}
}

func WithIndexFactory(f IndexFactory) Option {
	return func(e *Engine) {
		e.newIndex = f
	}
}

// WithObserver adds o to the observers notified of retry decisions.
func WithObserver(o retry.Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithMetrics records target lifecycles and retry decisions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
		e.observers = append(e.observers, m)
	}
}

// WithCheckpoints saves every target summary to store. With resume set,
// targets start from their last resumable checkpoint.
func WithCheckpoints(store CheckpointStore, resume bool) Option {
	return func(e *Engine) {
		e.checkpoints = store
		e.resume = resume
	}
}

func New(cfg Config, fetcher fetch.Fetcher, provider pool.Provider, out pagination.Emitter, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DedupScope == "" {
		cfg.DedupScope = ScopeRun
	}

	e := &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		pool:      provider,
		sink:      out,
		newIndex:  func(string) dedup.Index { return dedup.NewMemoryIndex() },
		observers: retry.Multi{retry.NewLogObserver()},
		logger:    logger.New("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report aggregates one run. Summaries are in input order.
type Report struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Summaries []pagination.Summary
	Cancelled bool
	// Dedup sums every deduplicator of the run.
	Dedup dedup.Stats
	// Pool is the identity pool at the end of the run, when the provider
	// reports stats.
	Pool *pool.Stats
}

type statsProvider interface {
	GetStats() pool.Stats
}

type Totals struct {
	Targets  int
	Pages    int
	Emitted  int
	Dropped  int
	Warnings int
	Failed   int
}

func (r Report) Totals() Totals {
	t := Totals{Targets: len(r.Summaries)}
	for _, s := range r.Summaries {
		t.Pages += s.Pages
		t.Emitted += s.Emitted
		t.Dropped += s.DroppedTotal()
		t.Warnings += s.Warnings
		if s.Err != nil {
			t.Failed++
		}
	}
	return t
}

// Run paginates every target. A failing target never stops the others;
// only cancellation of ctx ends the run early, in which case the report is
// still complete and the error wraps post.ErrCancelled.
func (e *Engine) Run(ctx context.Context, targets []string) (Report, error) {
	if len(targets) == 0 {
		return Report{}, ErrNoTargets
	}

	report := Report{
		RunID:     uuid.NewString(),
		Started:   time.Now(),
		Summaries: make([]pagination.Summary, len(targets)),
	}
	opID := logger.GenerateID()
	e.logger.Info(opID, "Run %s: %d target(s), concurrency %d, dedup scope %s",
		report.RunID, len(targets), e.cfg.Concurrency, e.cfg.DedupScope)

	var shared *dedup.Deduplicator
	if e.cfg.DedupScope != ScopePerTarget {
		shared = dedup.New(e.newIndex(report.RunID))
	}

	perTarget := make([]dedup.Stats, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			report.Summaries[i], perTarget[i] = e.runTarget(ctx, report.RunID, target, shared)
			return nil
		})
	}
	_ = g.Wait()

	if shared != nil {
		report.Dedup = shared.Stats()
		if n, err := shared.Len(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn(opID, "Dedup index size unavailable: %v", err)
		} else {
			e.logger.Debug(opID, "Dedup index holds %d id(s)", n)
		}
	} else {
		for _, s := range perTarget {
			report.Dedup.Accepted += s.Accepted
			report.Dedup.Suppressed += s.Suppressed
		}
	}
	if sp, ok := e.pool.(statsProvider); ok {
		stats := sp.GetStats()
		report.Pool = &stats
	}

	report.Duration = time.Since(report.Started)
	totals := report.Totals()
	e.logger.Info(opID, "Run %s finished in %s: %d emitted, %d dropped, %d of %d target(s) failed",
		report.RunID, report.Duration.Round(time.Millisecond), totals.Emitted, totals.Dropped, totals.Failed, totals.Targets)

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		return report, fmt.Errorf("%w: %w", post.ErrCancelled, err)
	}
	return report, nil
}

// runTarget returns the target's summary and, when the target has its own
// deduplicator, that deduplicator's stats.
func (e *Engine) runTarget(ctx context.Context, runID, target string, shared *dedup.Deduplicator) (pagination.Summary, dedup.Stats) {
	start := e.startCursor(ctx, target)

	dd := shared
	if dd == nil {
		dd = dedup.New(e.newIndex(runID + ":" + target))
	}

	driver := pagination.NewDriver(pagination.Config{
		Fetch:    e.fetcher.Fetch,
		Executor: retry.New(e.cfg.Retry, e.pool, retry.WithObserver(e.observers)),
		Parser:   e.parser,
		Dedup:    dd,
		Sink:     e.sink,
		Limits:   e.cfg.Limits,
	})

	if e.metrics != nil {
		e.metrics.TargetStarted()
	}
	summary := driver.Run(ctx, pagination.Target{ID: target, StartCursor: start})
	if e.metrics != nil {
		e.metrics.TargetFinished(summary)
	}

	if e.checkpoints != nil {
		if err := e.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), runID, summary); err != nil {
			e.logger.WarnBg("Failed to save checkpoint for %s: %v", target, err)
		}
	}
	if shared != nil {
		return summary, dedup.Stats{}
	}
	return summary, dd.Stats()
}

func (e *Engine) startCursor(ctx context.Context, target string) post.Cursor {
	if !e.resume || e.checkpoints == nil {
		return ""
	}

	cursor, ok, err := e.checkpoints.LastCheckpoint(context.WithoutCancel(ctx), target)
	if err != nil {
		e.logger.WarnBg("Failed to load checkpoint for %s, starting over: %v", target, err)
		return ""
	}
	if ok {
		e.logger.InfoBg("Resuming %s from cursor %q", target, cursor)
	}
	return cursor
}
