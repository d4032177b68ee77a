// Package session tracks ephemeral on-disk artifacts that bridge in-memory
// buffers and file-oriented tools such as ffmpeg.
//
// A Session owns exactly one path under a shared temp root. The path is derived
// from a random identifier and the file extension, so sessions created by
// concurrent operations never collide. A session is written by its producer
// (the caller or an external tool), read zero or more times and finally deleted.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Static errors for session operations.
var (
	// ErrIO is returned when the underlying write, read, stat or delete fails.
	ErrIO = errors.New("session: i/o failure")
	// ErrTimeout is returned when a polled file does not become stable within
	// the attempt budget.
	ErrTimeout = errors.New("session: file did not stabilize in time")
)

const (
	// DefaultPollInterval is the delay between two stability polls.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxAttempts bounds the number of stability polls.
	DefaultMaxAttempts = 30
)

// Factory creates sessions under a common root directory.
type Factory struct {
	root         string
	pollInterval time.Duration
	maxAttempts  int
}

// Option configures a Factory.
type Option func(*Factory)

// WithPollInterval sets the default interval used by WaitForRead.
func WithPollInterval(d time.Duration) Option {
	return func(f *Factory) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithMaxAttempts sets the default attempt budget used by WaitForRead.
func WithMaxAttempts(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// NewFactory returns a Factory rooted at root.
// If root is empty, os.TempDir() is used. The directory is not created here;
// callers that own the root create it once at startup.
func NewFactory(root string, opts ...Option) *Factory {
	if root == "" {
		root = os.TempDir()
	}
	f := &Factory{
		root:         root,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the directory sessions are created in.
func (f *Factory) Root() string {
	return f.root
}

// New creates a session with a random identifier. No file is created.
func (f *Factory) New(ext string) *Session {
	return f.NewWithID(ext, "")
}

// NewWithID creates a session with the given identifier, or a random one if
// id is empty. No file is created.
func (f *Factory) NewWithID(ext, id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:           id,
		ext:          ext,
		path:         filepath.Join(f.root, id+"."+ext),
		pollInterval: f.pollInterval,
		maxAttempts:  f.maxAttempts,
	}
}

// Session is a single temporary artifact with a deterministic path.
// A Session supports one producer; concurrent writers are not supported.
type Session struct {
	id           string
	ext          string
	path         string
	pollInterval time.Duration
	maxAttempts  int
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Extension returns the file extension without the leading dot.
func (s *Session) Extension() string { return s.ext }

// Path returns the absolute path of the artifact.
func (s *Session) Path() string { return s.path }

// Exists reports whether the artifact is currently on disk.
func (s *Session) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Write replaces the artifact with data.
// Content is staged in a sibling file and renamed into place, so a reader
// never observes a partially written file.
func (s *Session) Write(ctx context.Context, data []byte) error {
	return s.stage(ctx, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// WriteFrom drains r into the artifact, replacing any existing content.
func (s *Session) WriteFrom(ctx context.Context, r io.Reader) error {
	return s.stage(ctx, func(f *os.File) error {
		_, err := io.Copy(f, r)
		return err
	})
}

func (s *Session) stage(ctx context.Context, fill func(*os.File) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session: write cancelled: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), s.id+"-*.part")
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, s.path, err)
	}
	staged := f.Name()

	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(staged)
		return fmt.Errorf("%w: write %s: %w", ErrIO, s.path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("%w: close %s: %w", ErrIO, s.path, err)
	}
	if err := os.Rename(staged, s.path); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("%w: rename %s: %w", ErrIO, s.path, err)
	}
	return nil
}

// Read returns the full current content of the artifact.
// It fails if the file does not exist.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("session: read cancelled: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.path, err)
	}
	return data, nil
}

// WaitForRead is WaitForStableRead with the factory's poll settings.
func (s *Session) WaitForRead(ctx context.Context) ([]byte, error) {
	return s.WaitForStableRead(ctx, s.maxAttempts, s.pollInterval)
}

// WaitForStableRead polls the artifact every interval, at most maxAttempts
// times, and reads it once it exists and its size did not change since the
// previous poll. A missing file counts as not ready yet.
//
// The heuristic assumes the producer, once started, writes faster than the
// poll interval. A producer that stalls longer than interval mid-write can be
// read early.
func (s *Session) WaitForStableRead(ctx context.Context, maxAttempts int, interval time.Duration) ([]byte, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}
	if interval <= 0 {
		interval = s.pollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSize := int64(-1)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		info, err := os.Stat(s.path)
		switch {
		case err == nil:
			if info.Size() == lastSize {
				return s.Read(ctx)
			}
			lastSize = info.Size()
		case errors.Is(err, fs.ErrNotExist):
			lastSize = -1
		default:
			return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, s.path, err)
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session: wait cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimeout, s.path, maxAttempts)
}

// Delete removes the artifact. Deleting a missing file is not an error.
func (s *Session) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, s.path, err)
	}
	return nil
}
