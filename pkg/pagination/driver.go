// Package pagination drives one target through successive
// fetch, parse, normalize, dedup and emit cycles until a termination
// condition holds.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"fbposts/internal/logger"
	"fbposts/pkg/fetch"
	"fbposts/pkg/normalizer"
	"fbposts/pkg/parser"
	"fbposts/pkg/post"
)

type State int32

const (
	StateStart State = iota
	StateFetching
	StateParsing
	StateEmitting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateEmitting:
		return "emitting"
	case StateDone:
		return "done"
	default:
		return "start"
	}
}

// Reason says why a target stopped.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonExhausted
	ReasonRepeatedCursor
	ReasonMaxPosts
	ReasonMaxPages
	ReasonFatalFetch
	ReasonRetriesExhausted
	ReasonCancelled
	ReasonUnrecognizedPayload
	ReasonSinkError
	ReasonIndexError
)

func (r Reason) String() string {
	switch r {
	case ReasonExhausted:
		return "exhausted"
	case ReasonRepeatedCursor:
		return "repeated_cursor"
	case ReasonMaxPosts:
		return "max_posts"
	case ReasonMaxPages:
		return "max_pages"
	case ReasonFatalFetch:
		return "fatal_fetch"
	case ReasonRetriesExhausted:
		return "retries_exhausted"
	case ReasonCancelled:
		return "cancelled"
	case ReasonUnrecognizedPayload:
		return "unrecognized_payload"
	case ReasonSinkError:
		return "sink_error"
	case ReasonIndexError:
		return "index_error"
	default:
		return "none"
	}
}

// Resumable reports whether fetching again from the stop cursor could
// yield more posts.
func (r Reason) Resumable() bool {
	switch r {
	case ReasonNone, ReasonExhausted, ReasonRepeatedCursor, ReasonFatalFetch:
		return false
	default:
		return true
	}
}

// Drop reasons counted in Summary.Dropped.
const (
	DropInvalidRecord = "invalid_record"
	DropDuplicate     = "duplicate"
)

// Target is one page or profile. StartCursor resumes a previous run.
type Target struct {
	ID          string
	StartCursor post.Cursor
}

// Limits of zero are unlimited.
type Limits struct {
	MaxPages int
	MaxPosts int
}

// Summary reports how a target ended. Cursor is where a later run should
// resume: the page that failed or the next page not yet fetched.
type Summary struct {
	Target   string
	Pages    int
	Emitted  int
	Dropped  map[string]int
	Warnings int
	Reason   Reason
	Cursor   post.Cursor
	Err      error
	Duration time.Duration
}

func (s Summary) DroppedTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

type Executor interface {
	Execute(ctx context.Context, fn fetch.Func, ref fetch.Ref) (fetch.Payload, error)
}

type PageParser interface {
	Parse(payload fetch.Payload) (parser.Page, error)
}

type Deduper interface {
	Accept(ctx context.Context, rec post.Record) (bool, error)
}

type Emitter interface {
	Emit(ctx context.Context, rec post.Record) error
}

// NormalizeFunc promotes a candidate to a record.
type NormalizeFunc func(c post.Candidate) (post.Record, []normalizer.Warning, error)

type Config struct {
	Fetch     fetch.Func
	Executor  Executor
	Parser    PageParser
	Dedup     Deduper
	Sink      Emitter
	Normalize NormalizeFunc
	Limits    Limits
}

// Driver paginates one target at a time; cycles are strictly sequential.
type Driver struct {
	fetch     fetch.Func
	executor  Executor
	parser    PageParser
	dedup     Deduper
	sink      Emitter
	normalize NormalizeFunc
	limits    Limits
	state     atomic.Int32
	logger    *logger.Logger
}

func NewDriver(cfg Config) *Driver {
	if cfg.Normalize == nil {
		cfg.Normalize = normalizer.Normalize
	}
	if cfg.Parser == nil {
		cfg.Parser = parser.New()
	}
	return &Driver{
		fetch:     cfg.Fetch,
		executor:  cfg.Executor,
		parser:    cfg.Parser,
		dedup:     cfg.Dedup,
		sink:      cfg.Sink,
		normalize: cfg.Normalize,
		limits:    cfg.Limits,
		logger:    logger.New("pagination"),
	}
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}

// Run paginates target until it is exhausted, hits a limit, fails or ctx
// is cancelled. Cancellation is honoured between cycles only; a page that
// is being emitted is finished first.
func (d *Driver) Run(ctx context.Context, target Target) Summary {
	opID := logger.GenerateID()
	start := time.Now()
	d.setState(StateStart)

	summary := Summary{
		Target:  target.ID,
		Dropped: make(map[string]int),
		Cursor:  target.StartCursor,
	}
	finish := func(reason Reason, cursor post.Cursor, err error) Summary {
		summary.Reason = reason
		summary.Cursor = cursor
		summary.Err = err
		summary.Duration = time.Since(start)
		d.setState(StateDone)

		if err != nil {
			d.logger.Warn(opID, "Target %s stopped (%s) after %d page(s), %d emitted: %v",
				target.ID, reason, summary.Pages, summary.Emitted, err)
		} else {
			d.logger.Info(opID, "Target %s finished (%s) after %d page(s), %d emitted, %d dropped",
				target.ID, reason, summary.Pages, summary.Emitted, summary.DroppedTotal())
		}
		return summary
	}

	d.logger.Info(opID, "Starting target %s (cursor %q)", target.ID, target.StartCursor)

	cursor := target.StartCursor
	visited := map[post.Cursor]struct{}{cursor: {}}
	// Emission and dedup finish the current page even after cancellation.
	emitCtx := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return finish(ReasonCancelled, cursor, fmt.Errorf("%w: %w", post.ErrCancelled, err))
		}

		d.setState(StateFetching)
		payload, err := d.executor.Execute(ctx, d.fetch, fetch.Ref{Target: target.ID, Cursor: cursor})
		if err != nil {
			return finish(fetchReason(err), cursor, err)
		}
		summary.Pages++

		d.setState(StateParsing)
		page, err := d.parser.Parse(payload)
		if err != nil {
			if !errors.Is(err, post.ErrUnrecognizedPayload) {
				err = fmt.Errorf("%w: %w", post.ErrUnrecognizedPayload, err)
			}
			summary.Warnings++
			if page.Next.IsTerminal() {
				return finish(ReasonUnrecognizedPayload, cursor, err)
			}
			// Skip the page but keep paginating from the cursor it still carries.
			d.logger.Warn(opID, "Skipping unrecognized page %d of %s: %v", summary.Pages, target.ID, err)
			page.Candidates = nil
		}
		d.logger.Debug(opID, "Page %d of %s parsed as %s: %d candidate(s), next cursor %q",
			summary.Pages, target.ID, page.Shape, len(page.Candidates), page.Next)

		d.setState(StateEmitting)
		for i, c := range page.Candidates {
			rec, warnings, err := d.normalize(c)
			if err != nil {
				summary.Dropped[DropInvalidRecord]++
				d.logger.Warn(opID, "Dropping candidate %d on page %d of %s: %v", i, summary.Pages, target.ID, err)
				continue
			}
			summary.Warnings += len(warnings)
			for _, w := range warnings {
				d.logger.Debug(opID, "Post %s: %s", rec.PostID, w)
			}

			accepted, err := d.dedup.Accept(emitCtx, rec)
			if err != nil {
				return finish(ReasonIndexError, cursor, err)
			}
			if !accepted {
				summary.Dropped[DropDuplicate]++
				continue
			}

			if err := d.sink.Emit(emitCtx, rec); err != nil {
				return finish(ReasonSinkError, cursor, fmt.Errorf("emit %s: %w", rec.PostID, err))
			}
			summary.Emitted++

			if d.limits.MaxPosts > 0 && summary.Emitted >= d.limits.MaxPosts && i < len(page.Candidates)-1 {
				// Stopped mid-page: resume from this page.
				return finish(ReasonMaxPosts, cursor, nil)
			}
		}

		next := page.Next
		if next.IsTerminal() {
			return finish(ReasonExhausted, "", nil)
		}
		if _, seen := visited[next]; seen {
			return finish(ReasonRepeatedCursor, "", nil)
		}
		if d.limits.MaxPosts > 0 && summary.Emitted >= d.limits.MaxPosts {
			return finish(ReasonMaxPosts, next, nil)
		}
		if d.limits.MaxPages > 0 && summary.Pages >= d.limits.MaxPages {
			return finish(ReasonMaxPages, next, nil)
		}

		visited[next] = struct{}{}
		cursor = next
	}
}

func fetchReason(err error) Reason {
	switch post.KindOf(err) {
	case post.KindCancelled:
		return ReasonCancelled
	case post.KindRetriesExhausted:
		return ReasonRetriesExhausted
	default:
		return ReasonFatalFetch
	}
}
