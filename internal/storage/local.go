package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

const (
	sessionsDir = "sessions"
	resultsDir  = "results"
)

// LocalStorage implements Storage on local disk. Uploads are not supported
// unless wrapped with S3Storage.
type LocalStorage struct {
	root       string
	sessionDir string
	resultDir  string
}

// NewLocalStorage creates the working area under root.
// If root is empty, a "mediaops" directory under os.TempDir() is used.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "mediaops")
	}

	s := &LocalStorage{
		root:       root,
		sessionDir: filepath.Join(root, sessionsDir),
		resultDir:  filepath.Join(root, resultsDir),
	}
	for _, dir := range []string{s.sessionDir, s.resultDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return s, nil
}

// Root returns the working area root.
func (s *LocalStorage) Root() string {
	return s.root
}

// SessionDir implements Storage.
func (s *LocalStorage) SessionDir() string {
	return s.sessionDir
}

// ResultDir returns the directory results are stored in.
func (s *LocalStorage) ResultDir() string {
	return s.resultDir
}

// SaveResult implements Storage. The data is staged in a temporary file and
// renamed into place, so a partially written result is never visible.
func (s *LocalStorage) SaveResult(ctx context.Context, jobID, ext string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}

	f, err := os.CreateTemp(s.resultDir, jobID+"_*")
	if err != nil {
		return "", fmt.Errorf("create result file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write result file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close result file: %w", err)
	}

	path := filepath.Join(s.resultDir, jobID+"."+ext)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move result file: %w", err)
	}
	return path, nil
}

// OpenResult implements Storage.
func (s *LocalStorage) OpenResult(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is produced by SaveResult
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}

	return f, nil
}

// Remove implements Storage. It returns the first error encountered.
func (s *LocalStorage) Remove(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Sweep implements Storage. It is meant for startup, to clear sessions left
// behind by a process that was killed mid-operation.
func (s *LocalStorage) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.sessionDir)
	if err != nil {
		return 0, fmt.Errorf("read session directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var stale []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, filepath.Join(s.sessionDir, e.Name()))
		}
	}

	if err := s.Remove(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Upload is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Upload(_ context.Context, _, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// DeleteUpload is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) DeleteUpload(_ context.Context, _ string) error {
	return ErrS3NotConfigured
}
