package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/veranemoloko/model-downloader/internal/storage"
)

// ProgressSink receives byte-level progress for one asset download. The worker
// reports the total size as soon as it is known and the downloaded byte count
// as the copy advances.
type ProgressSink interface {
	SetTotalBytes(n int64)
	SetDownloadedBytes(n int64)
}

// DownloadWorker downloads model assets into FileStorage, resuming partial
// files with HTTP range requests.
type DownloadWorker struct {
	fileStorage *storage.FileStorage
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewDownloadWorker creates a DownloadWorker with the provided FileStorage,
// request timeout, and logger.
func NewDownloadWorker(fileStorage *storage.FileStorage, timeout time.Duration, logger *slog.Logger) *DownloadWorker {
	return &DownloadWorker{
		fileStorage: fileStorage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// DownloadAsset downloads a single URL into filename, resuming a partial file
// when the server supports it. Returns the total number of bytes on disk.
func (w *DownloadWorker) DownloadAsset(ctx context.Context, url, filename string, sink ProgressSink) (int64, error) {
	var existingSize int64
	if w.fileStorage.FileExists(filename) {
		if size, err := w.fileStorage.FileSize(filename); err == nil {
			existingSize = size
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if existingSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Error("download request failed",
			"url", url,
			"error", err,
		)
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.logger.Error("download failed",
			"url", url,
			"status", resp.Status,
		)
		return 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	// The server ignored the range request and sent the whole file.
	if existingSize > 0 && resp.StatusCode != http.StatusPartialContent {
		existingSize = 0
	}

	totalKnown := resp.ContentLength >= 0
	if totalKnown {
		sink.SetTotalBytes(existingSize + resp.ContentLength)
	}
	sink.SetDownloadedBytes(existingSize)

	var file *os.File
	if existingSize > 0 {
		file, err = w.fileStorage.OpenAppend(filename)
	} else {
		file, err = w.fileStorage.CreateFile(filename)
	}
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	copied, err := w.copyWithProgress(ctx, file, resp.Body, existingSize, sink)
	totalBytes := existingSize + copied
	if err != nil {
		w.logger.Error("download failed",
			"url", url,
			"error", err,
		)
		return totalBytes, fmt.Errorf("copy data: %w", err)
	}

	if !totalKnown {
		sink.SetTotalBytes(totalBytes)
	}

	w.logger.Debug("asset downloaded",
		"url", url,
		"file", filename,
		"bytes", totalBytes,
	)
	return totalBytes, nil
}

func (w *DownloadWorker) copyWithProgress(ctx context.Context, dst *os.File, src io.Reader, offset int64, sink ProgressSink) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				total += int64(nw)
				sink.SetDownloadedBytes(offset + total)
			}
			if werr != nil {
				return total, werr
			}
			if nr != nw {
				return total, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}
