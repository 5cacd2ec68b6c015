package service

import (
	"sync"

	"github.com/veranemoloko/model-downloader/internal/progress"
)

// activeTask tracks the live download state of one task: one progress feed per
// asset. Its mutex guards the feeds, the components attached to them, and the
// task document itself while the download runs.
type activeTask struct {
	mu    sync.Mutex
	feeds []*assetFeed
}

func newActiveTask(assets int) *activeTask {
	at := &activeTask{}
	for i := 0; i < assets; i++ {
		at.feeds = append(at.feeds, &assetFeed{task: at})
	}
	return at
}

// assetFeed remembers the latest byte counts reported by the download worker
// for one asset and fans them out to every progress component attached for an
// observer. Components attached after the download started get the current
// state replayed so their pre-existing bytes are accounted for.
type assetFeed struct {
	task       *activeTask
	total      *int64
	downloaded *int64
	components []*progress.Component
}

// SetTotalBytes implements worker.ProgressSink.
func (f *assetFeed) SetTotalBytes(n int64) {
	f.task.mu.Lock()
	defer f.task.mu.Unlock()

	f.total = &n
	for _, c := range f.components {
		c.SetTotalBytes(n)
	}
}

// SetDownloadedBytes implements worker.ProgressSink.
func (f *assetFeed) SetDownloadedBytes(n int64) {
	f.task.mu.Lock()
	defer f.task.mu.Unlock()

	f.downloaded = &n
	for _, c := range f.components {
		c.SetDownloadedBytes(n)
	}
}

// detachComponents removes an observer's components from every feed so a
// disconnected observer stops costing fan-out work.
func (at *activeTask) detachComponents(components []*progress.Component) {
	at.mu.Lock()
	defer at.mu.Unlock()

	drop := make(map[*progress.Component]struct{}, len(components))
	for _, c := range components {
		drop[c] = struct{}{}
	}

	for _, f := range at.feeds {
		kept := f.components[:0]
		for _, c := range f.components {
			if _, ok := drop[c]; !ok {
				kept = append(kept, c)
			}
		}
		f.components = kept
	}
}

// attachComponentsLocked builds one component per asset feed with the current
// byte counts replayed, and registers them for future updates. Caller must
// hold at.mu.
func (at *activeTask) attachComponentsLocked() []*progress.Component {
	components := make([]*progress.Component, 0, len(at.feeds))
	for _, f := range at.feeds {
		c := progress.NewComponent()
		if f.total != nil {
			c.SetTotalBytes(*f.total)
		}
		if f.downloaded != nil {
			c.SetDownloadedBytes(*f.downloaded)
		}
		f.components = append(f.components, c)
		components = append(components, c)
	}
	return components
}
