package retry

import (
	"time"

	"fbposts/internal/logger"
	"fbposts/pkg/fetch"
	"fbposts/pkg/pool"
)

// Observer receives every retry decision. Implementations must be safe for
// concurrent use; one observer is shared by all targets.
type Observer interface {
	OnRetry(a Attempt, delay time.Duration)
	OnRotate(a Attempt, next pool.Identity)
	OnExhausted(a Attempt)
	OnFatal(a Attempt)
}

type NopObserver struct{}

func (NopObserver) OnRetry(Attempt, time.Duration)  {}
func (NopObserver) OnRotate(Attempt, pool.Identity) {}
func (NopObserver) OnExhausted(Attempt)             {}
func (NopObserver) OnFatal(Attempt)                 {}

// LogObserver writes retry decisions to the component logger.
type LogObserver struct {
	logger *logger.Logger
}

func NewLogObserver() *LogObserver {
	return &LogObserver{logger: logger.New("retry")}
}

func (o *LogObserver) OnRetry(a Attempt, delay time.Duration) {
	o.logger.WarnBg("Attempt %d for %s failed (%s), retrying in %s: %v",
		a.Number, describe(a.Ref), fetch.ClassOf(a.Err), delay, a.Err)
}

func (o *LogObserver) OnRotate(a Attempt, next pool.Identity) {
	o.logger.InfoBg("Rotating identity for %s after attempt %d: %s -> %s",
		describe(a.Ref), a.Number, a.Identity.Key(), next.Key())
}

func (o *LogObserver) OnExhausted(a Attempt) {
	o.logger.ErrorBg("Retries exhausted for %s after %d attempts: %v", describe(a.Ref), a.Number, a.Err)
}

func (o *LogObserver) OnFatal(a Attempt) {
	o.logger.ErrorBg("Fatal fetch error for %s on attempt %d: %v", describe(a.Ref), a.Number, a.Err)
}

func describe(ref fetch.Ref) string {
	if ref.Cursor.IsTerminal() {
		return ref.Target
	}
	return ref.Target + " @ " + string(ref.Cursor)
}

// Multi fans every event out to several observers.
type Multi []Observer

func (m Multi) OnRetry(a Attempt, delay time.Duration) {
	for _, o := range m {
		o.OnRetry(a, delay)
	}
}

func (m Multi) OnRotate(a Attempt, next pool.Identity) {
	for _, o := range m {
		o.OnRotate(a, next)
	}
}

func (m Multi) OnExhausted(a Attempt) {
	for _, o := range m {
		o.OnExhausted(a)
	}
}

func (m Multi) OnFatal(a Attempt) {
	for _, o := range m {
		o.OnFatal(a)
	}
}
