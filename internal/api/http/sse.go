package http

import "context"

type progressUpdate struct {
	progress int64
	max      int64
}

// sseObserver bridges the progress core to one SSE client. Updates are handed
// to the request goroutine through a buffered channel so the aggregation path
// never blocks on a slow client; once the request context is cancelled further
// updates are discarded.
type sseObserver struct {
	ctx     context.Context
	updates chan progressUpdate
}

func newSSEObserver(ctx context.Context) *sseObserver {
	return &sseObserver{
		ctx:     ctx,
		updates: make(chan progressUpdate, 16),
	}
}

// OnDownloadProgressUpdate implements progress.Observer.
func (o *sseObserver) OnDownloadProgressUpdate(progress, max int64) {
	select {
	case <-o.ctx.Done():
	case o.updates <- progressUpdate{progress: progress, max: max}:
	default:
	}
}
