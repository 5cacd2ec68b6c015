package progress

import "fmt"

// Component tracks the download progress of a single resource: how many bytes
// have been downloaded so far and how many bytes are expected in total. Either
// count may be unknown at first; a Component fires its event callback only once
// both are known, and again on every later change.
//
// A Component is owned by exactly one Reporter. Its setters must be driven from
// a single goroutine (typically the download loop for that resource).
type Component struct {
	downloadedBytes *int64
	totalBytes      *int64
	eventCallback   func(*Component)
}

// NewComponent returns a Component with both byte counts undetermined.
func NewComponent() *Component {
	return &Component{}
}

// SetDownloadedBytes records the number of bytes downloaded so far. Setting the
// value already held is a no-op. Downloaded bytes only ever grow; a negative or
// decreasing value is a caller bug and panics.
func (c *Component) SetDownloadedBytes(n int64) {
	if c.downloadedBytes != nil && *c.downloadedBytes == n {
		return
	}
	if n < 0 {
		panic(fmt.Sprintf("progress: negative downloaded bytes %d", n))
	}
	if c.downloadedBytes != nil && n < *c.downloadedBytes {
		panic(fmt.Sprintf("progress: downloaded bytes decreased from %d to %d", *c.downloadedBytes, n))
	}
	v := n
	c.downloadedBytes = &v
	c.maybeRunEventCallback()
}

// SetTotalBytes records the total size of the resource. Setting the value
// already held is a no-op. The total is set at most once; changing it or
// passing a negative value is a caller bug and panics.
func (c *Component) SetTotalBytes(n int64) {
	if c.totalBytes != nil && *c.totalBytes == n {
		return
	}
	if c.totalBytes != nil {
		panic(fmt.Sprintf("progress: total bytes already set to %d, got %d", *c.totalBytes, n))
	}
	if n < 0 {
		panic(fmt.Sprintf("progress: negative total bytes %d", n))
	}
	v := n
	c.totalBytes = &v
	c.maybeRunEventCallback()
}

// setEventCallback is called exactly once, by the Reporter that takes ownership
// of this Component.
func (c *Component) setEventCallback(cb func(*Component)) {
	c.eventCallback = cb
}

func (c *Component) maybeRunEventCallback() {
	if c.eventCallback == nil || !c.DeterminedBytes() {
		return
	}
	c.eventCallback(c)
}

// DeterminedBytes reports whether both downloaded and total bytes are known.
func (c *Component) DeterminedBytes() bool {
	return c.downloadedBytes != nil && c.totalBytes != nil
}

// IsComplete reports whether the resource has finished downloading. Valid only
// once DeterminedBytes is true.
func (c *Component) IsComplete() bool {
	return c.DownloadedBytes() == c.TotalBytes()
}

// DownloadedBytes returns the downloaded byte count. It panics if the count has
// not been determined yet.
func (c *Component) DownloadedBytes() int64 {
	if c.downloadedBytes == nil {
		panic("progress: downloaded bytes not determined")
	}
	return *c.downloadedBytes
}

// TotalBytes returns the total byte count. It panics if the count has not been
// determined yet.
func (c *Component) TotalBytes() int64 {
	if c.totalBytes == nil {
		panic("progress: total bytes not determined")
	}
	return *c.totalBytes
}
