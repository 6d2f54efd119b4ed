package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchDownloader coordinates parallel downloads from object storage.
// It mirrors the remote layout under a local cache directory and skips
// objects that are already cached.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	cacheDir    string
}

// BatchResult contains the outcome of a batch download operation.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewBatchDownloader creates a new batch downloader.
// storage: the ObjectStorage implementation to download from
// concurrency: maximum number of parallel downloads
// cacheDir: directory to mirror downloaded objects into (empty = working directory)
func NewBatchDownloader(storage ObjectStorage, concurrency int, cacheDir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		cacheDir:    cacheDir,
	}
}

// Download fetches the given objects in parallel, bounded by the
// configured concurrency. Returns a map of objectPath to localPath for
// successful downloads and a separate map of objectPath to error for
// failed ones.
func (b *BatchDownloader) Download(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}

	// Separate cache hits from downloads
	type pendingDownload struct {
		objectPath string
		localPath  string
	}
	var downloadQueue []pendingDownload

	for _, objectPath := range objectPaths {
		localPath := b.localPath(objectPath)
		if _, err := os.Stat(localPath); err == nil {
			result.LocalPaths[objectPath] = localPath
			result.CacheHits++
			continue
		}
		downloadQueue = append(downloadQueue, pendingDownload{objectPath, localPath})
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range downloadQueue {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled or semaphore failed
			mu.Lock()
			result.Errors[p.objectPath] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(objectPath, localPath string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := DownloadFile(ctx, b.storage, objectPath, localPath); err != nil {
				mu.Lock()
				result.Errors[objectPath] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[objectPath] = localPath
			result.Downloads++
			mu.Unlock()
		}(p.objectPath, p.localPath)
	}

	wg.Wait()

	return result, nil
}

// localPath returns the local filesystem path for an object, keeping
// the remote key layout. The key is cleaned so it cannot escape the
// cache directory.
func (b *BatchDownloader) localPath(objectPath string) string {
	cleaned := path.Clean("/" + objectPath)[1:]
	rel := filepath.FromSlash(cleaned)
	if b.cacheDir == "" {
		return rel
	}
	return filepath.Join(b.cacheDir, rel)
}
