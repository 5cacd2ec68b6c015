package progress

import (
	"fmt"
	"sync"
	"time"
)

// Reporter aggregates the progress of a set of Components into one normalized
// stream for a single observer.
//
// A Reporter starts out accumulating: it stays silent until it has observed a
// determined byte count for every tracked component. At that point it emits an
// unconditional zero update, discounts everything downloaded before tracking
// began, and from then on reports incremental progress normalized to the
// manager's Max, throttled to at most one sub-100% update per MinInterval.
type Reporter struct {
	manager  *Manager
	observer Observer

	mu                      sync.Mutex
	components              map[*Component]struct{}
	observedDownloadedBytes map[*Component]int64
	componentsTotalBytes    int64
	alreadyDownloadedBytes  int64
	readyToReport           bool
	detached                bool
	lastReportedProgress    int64
	lastProgressTime        time.Time

	// removed is closed by the Manager when this reporter is torn down.
	removed chan struct{}
}

func newReporter(m *Manager, observer Observer, components []*Component) *Reporter {
	r := &Reporter{
		manager:                 m,
		observer:                observer,
		components:              make(map[*Component]struct{}),
		observedDownloadedBytes: make(map[*Component]int64),
		removed:                 make(chan struct{}),
	}

	// Components that finished downloading before tracking began contribute
	// nothing further; drop them entirely.
	tracked := make([]*Component, 0, len(components))
	for _, c := range components {
		if c.DeterminedBytes() && c.IsComplete() {
			continue
		}
		tracked = append(tracked, c)
		r.components[c] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range tracked {
		c.setEventCallback(r.onEvent)
		if c.DeterminedBytes() {
			r.processEventLocked(c)
		}
	}

	// With no live components the zero and 100% updates fire immediately.
	r.maybeBecomeReadyLocked()

	return r
}

func (r *Reporter) onEvent(c *Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.detached {
		return
	}
	r.processEventLocked(c)
}

// detach permanently silences the reporter. The embedder may keep driving the
// components after the observer disconnects; those events are ignored.
func (r *Reporter) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detached = true
}

func (r *Reporter) processEventLocked(c *Component) {
	if !r.readyToReport {
		if _, seen := r.observedDownloadedBytes[c]; seen {
			r.observedDownloadedBytes[c] = c.DownloadedBytes()
			return
		}
		r.observedDownloadedBytes[c] = c.DownloadedBytes()
		r.componentsTotalBytes += c.TotalBytes()
		r.maybeBecomeReadyLocked()
		return
	}

	r.observedDownloadedBytes[c] = c.DownloadedBytes()
	r.reportProgressLocked(r.bytesSoFarLocked())
}

// maybeBecomeReadyLocked transitions the reporter into its reporting state once
// every tracked component has been observed. The transition happens exactly
// once: bytes downloaded before this instant are subtracted from the total so
// later percentages measure new progress only, and the observer receives the
// initial zero update.
func (r *Reporter) maybeBecomeReadyLocked() {
	if r.readyToReport || len(r.observedDownloadedBytes) != len(r.components) {
		return
	}
	r.readyToReport = true

	for _, n := range r.observedDownloadedBytes {
		r.alreadyDownloadedBytes += n
	}
	r.componentsTotalBytes -= r.alreadyDownloadedBytes

	r.lastReportedProgress = 0
	r.lastProgressTime = r.manager.opts.Now()
	r.observer.OnDownloadProgressUpdate(0, r.manager.opts.Max)

	// If everything is already downloaded this immediately reports 100%.
	r.reportProgressLocked(r.bytesSoFarLocked())
}

func (r *Reporter) bytesSoFarLocked() int64 {
	var sum int64
	for _, n := range r.observedDownloadedBytes {
		sum += n
	}
	return sum - r.alreadyDownloadedBytes
}

func (r *Reporter) reportProgressLocked(bytesSoFar int64) {
	if bytesSoFar < 0 || bytesSoFar > r.componentsTotalBytes {
		panic(fmt.Sprintf("progress: bytes so far %d outside [0, %d]", bytesSoFar, r.componentsTotalBytes))
	}

	max := r.manager.opts.Max
	normalized := max
	if r.componentsTotalBytes != 0 {
		normalized = bytesSoFar * max / r.componentsTotalBytes
	}

	// A repeat of the last reported value is a duplicate, not an error.
	if normalized == r.lastReportedProgress {
		return
	}
	if normalized < r.lastReportedProgress {
		panic(fmt.Sprintf("progress: normalized progress went backwards from %d to %d", r.lastReportedProgress, normalized))
	}

	// The terminal 100% update is never throttled.
	now := r.manager.opts.Now()
	if normalized != max && now.Sub(r.lastProgressTime) < r.manager.opts.MinInterval {
		return
	}

	r.lastReportedProgress = normalized
	r.lastProgressTime = now
	r.observer.OnDownloadProgressUpdate(normalized, max)
}
