package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
	"github.com/maauso/mediaops-api/internal/session"
)

const (
	videoExt = "mp4"
	imageExt = "png"
)

// Compile-time check that Orchestrator implements Processor.
var _ Processor = (*Orchestrator)(nil)

// Orchestrator implements Processor with the ffmpeg and ffprobe CLIs.
// It exclusively owns every intermediate session it creates.
type Orchestrator struct {
	tools    ffmpeg.Config
	runner   ffmpeg.Runner
	sessions *session.Factory
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the subprocess runner, mainly for tests.
func WithRunner(r ffmpeg.Runner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator that runs the binaries in tools
// and keeps its temporary files in sessions.
func NewOrchestrator(tools ffmpeg.Config, sessions *session.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tools:    tools.WithDefaults(),
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = ffmpeg.NewExecRunner(o.logger)
	}
	return o
}

// transform runs ffmpeg with args and waits for it.
func (o *Orchestrator) transform(ctx context.Context, op string, args []string) error {
	start := time.Now()
	if _, err := ffmpeg.Await(ctx, o.runner, ffmpeg.Invocation{Binary: o.tools.FFmpegPath, Args: args}); err != nil {
		return fmt.Errorf("media: %s: %w", op, err)
	}
	o.logger.Debug("media operation finished",
		slog.String("operation", op),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// stage writes data into a fresh session. The session is returned even on
// failure so the caller's deferred discard covers it.
func (o *Orchestrator) stage(ctx context.Context, data []byte, ext string) (*session.Session, error) {
	s := o.sessions.New(ext)
	if err := s.Write(ctx, data); err != nil {
		return s, err
	}
	return s, nil
}

// resolve returns a path for in, draining a stream into a new session when
// needed. The returned session is nil for path inputs.
func (o *Orchestrator) resolve(ctx context.Context, in Input) (string, *session.Session, error) {
	switch {
	case in.Path != "":
		return in.Path, nil, nil
	case in.Reader != nil:
		ext := in.Extension
		if ext == "" {
			ext = videoExt
		}
		s := o.sessions.New(ext)
		if err := s.WriteFrom(ctx, in.Reader); err != nil {
			return "", s, fmt.Errorf("media: drain input stream: %w", err)
		}
		return s.Path(), s, nil
	default:
		return "", nil, ErrNoInput
	}
}

// collect reads a finished output session, rejecting empty results.
func collect(ctx context.Context, out *session.Session) ([]byte, error) {
	data, err := out.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}

// discard deletes sessions best-effort. Failures are logged, never returned,
// so they cannot mask the operation's own outcome.
func (o *Orchestrator) discard(op string, sessions ...*session.Session) {
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if err := s.Delete(); err != nil {
			o.logger.Warn("failed to delete session",
				slog.String("operation", op),
				slog.String("path", s.Path()),
				slog.String("error", err.Error()),
			)
		}
	}
}
