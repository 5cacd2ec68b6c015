// Package progress aggregates the byte-level progress of a set of downloadable
// resources into a single normalized, throttled progress stream per observer.
//
// The embedding code builds one Component per resource, drives the components
// as real download events arrive, and registers an Observer for a component set
// with Manager.AddObserver. The Manager owns one Reporter per observer and
// tears it down when the observer's context is cancelled.
package progress

import (
	"context"
	"sync"
	"time"
)

// Defaults for the reporting policy. The normalization ceiling and throttle
// window are external contracts with observers; both can be overridden through
// Options.
const (
	DefaultMax         = 0x10000
	DefaultMinInterval = 50 * time.Millisecond
)

// Observer receives aggregated progress updates. Progress is always in
// [0, max], non-decreasing for the lifetime of one registration, and max is the
// same fixed value on every call. Implementations must not block.
type Observer interface {
	OnDownloadProgressUpdate(progress, max int64)
}

// Options configures a Manager.
type Options struct {
	// Max is the normalization ceiling sent as the second argument of every
	// observer update. Default: DefaultMax.
	Max int64

	// MinInterval is the minimum time between two consecutive sub-100% updates
	// to the same observer. Default: DefaultMinInterval.
	MinInterval time.Duration

	// Now is the clock used for throttling. Default: time.Now.
	Now func() time.Time
}

// Manager owns the active Reporters and removes each one when its observer
// disconnects.
type Manager struct {
	opts Options

	mu        sync.Mutex
	reporters map[*Reporter]struct{}
}

// NewManager creates a Manager, filling in defaults for unset options.
func NewManager(opts Options) *Manager {
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:      opts,
		reporters: make(map[*Reporter]struct{}),
	}
}

// AddObserver creates a Reporter that aggregates the given components for the
// observer. The Reporter takes exclusive ownership of the components. When ctx
// is cancelled the observer is considered disconnected and the Reporter is
// destroyed; there is no other cancellation path.
func (m *Manager) AddObserver(ctx context.Context, observer Observer, components []*Component) {
	r := newReporter(m, observer, components)

	m.mu.Lock()
	m.reporters[r] = struct{}{}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.removeReporter(r)
		case <-r.removed:
		}
	}()
}

// removeReporter erases the reporter from the owned set. Removing a reporter
// that is not present indicates a double-removal bug and panics.
func (m *Manager) removeReporter(r *Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reporters[r]; !ok {
		panic("progress: removing unknown reporter")
	}
	delete(m.reporters, r)
	r.detach()
	close(r.removed)
}

// NumReporters returns the number of active reporters.
func (m *Manager) NumReporters() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.reporters)
}
