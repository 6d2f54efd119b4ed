package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newBatchFixture(t *testing.T, objectCount int) (*LocalStorage, []string) {
	t.Helper()

	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	objectPaths := make([]string, 0, objectCount)
	for i := 0; i < objectCount; i++ {
		objectPath := fmt.Sprintf("snapshots/%d/archive.tsnap", i)
		if err := PutBytes(ctx, storage, objectPath, []byte(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("PutBytes(%s) failed: %v", objectPath, err)
		}
		objectPaths = append(objectPaths, objectPath)
	}

	return storage, objectPaths
}

func TestBatchDownloader_Download(t *testing.T) {
	storage, objectPaths := newBatchFixture(t, 8)
	cacheDir := t.TempDir()

	downloader := NewBatchDownloader(storage, 4, cacheDir)
	result, err := downloader.Download(context.Background(), objectPaths)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Downloads != len(objectPaths) {
		t.Errorf("Downloads = %d, want %d", result.Downloads, len(objectPaths))
	}
	if result.CacheHits != 0 {
		t.Errorf("CacheHits = %d, want 0", result.CacheHits)
	}

	// The remote layout is mirrored under the cache directory
	for i, objectPath := range objectPaths {
		localPath, ok := result.LocalPaths[objectPath]
		if !ok {
			t.Fatalf("missing local path for %s", objectPath)
		}
		wantPath := filepath.Join(cacheDir, "snapshots", fmt.Sprintf("%d", i), "archive.tsnap")
		if localPath != wantPath {
			t.Errorf("local path = %q, want %q", localPath, wantPath)
		}
		content, err := os.ReadFile(localPath)
		if err != nil {
			t.Fatalf("failed to read %s: %v", localPath, err)
		}
		if string(content) != fmt.Sprintf("payload-%d", i) {
			t.Errorf("content mismatch for %s: %q", objectPath, content)
		}
	}
}

func TestBatchDownloader_CacheHits(t *testing.T) {
	storage, objectPaths := newBatchFixture(t, 4)
	cacheDir := t.TempDir()

	downloader := NewBatchDownloader(storage, 2, cacheDir)
	ctx := context.Background()

	if _, err := downloader.Download(ctx, objectPaths); err != nil {
		t.Fatalf("first Download failed: %v", err)
	}

	result, err := downloader.Download(ctx, objectPaths)
	if err != nil {
		t.Fatalf("second Download failed: %v", err)
	}
	if result.CacheHits != len(objectPaths) {
		t.Errorf("CacheHits = %d, want %d", result.CacheHits, len(objectPaths))
	}
	if result.Downloads != 0 {
		t.Errorf("Downloads = %d, want 0", result.Downloads)
	}
}

func TestBatchDownloader_PartialFailure(t *testing.T) {
	storage, objectPaths := newBatchFixture(t, 3)

	requested := append([]string{}, objectPaths...)
	requested = append(requested, "snapshots/99/missing.tsnap")

	downloader := NewBatchDownloader(storage, 2, t.TempDir())
	result, err := downloader.Download(context.Background(), requested)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if result.Downloads != len(objectPaths) {
		t.Errorf("Downloads = %d, want %d", result.Downloads, len(objectPaths))
	}
	downloadErr, ok := result.Errors["snapshots/99/missing.tsnap"]
	if !ok {
		t.Fatal("expected an error for the missing object")
	}
	if !errors.Is(downloadErr, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", downloadErr)
	}
}

func TestBatchDownloader_CancelledContext(t *testing.T) {
	storage, objectPaths := newBatchFixture(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	downloader := NewBatchDownloader(storage, 1, t.TempDir())
	result, err := downloader.Download(ctx, objectPaths)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(result.Errors) != len(objectPaths) {
		t.Errorf("expected every object to fail, got %d errors", len(result.Errors))
	}
	if result.Downloads != 0 {
		t.Errorf("Downloads = %d, want 0", result.Downloads)
	}
}

func TestBatchDownloader_EmptyRequest(t *testing.T) {
	storage, _ := newBatchFixture(t, 0)

	downloader := NewBatchDownloader(storage, 2, t.TempDir())
	result, err := downloader.Download(context.Background(), nil)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(result.LocalPaths) != 0 || len(result.Errors) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestBatchDownloader_EscapingKeyStaysInCache(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	cacheDir := t.TempDir()
	downloader := NewBatchDownloader(storage, 1, cacheDir)

	localPath := downloader.localPath("../../etc/passwd")
	if !strings.HasPrefix(localPath, cacheDir+string(filepath.Separator)) {
		t.Errorf("local path escapes cache dir: %s", localPath)
	}
}
