// Package ffmpeg is the subprocess boundary to the ffmpeg and ffprobe binaries.
//
// It provides the tool configuration, a Runner abstraction over os/exec, the
// one-shot completion bridge used by every operation, and pure argument
// builders that turn operation parameters into command lines.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Config holds the paths to the external binaries.
// It is set once at startup and passed to constructors explicitly.
type Config struct {
	// FFmpegPath is the transform tool. Defaults to "ffmpeg" (found via PATH).
	FFmpegPath string
	// FFprobePath is the metadata probe tool. Defaults to "ffprobe".
	FFprobePath string
}

// DefaultConfig returns a Config that resolves both binaries via PATH.
func DefaultConfig() Config {
	return Config{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// WithDefaults fills empty paths with their PATH-resolved defaults.
func (c Config) WithDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	return c
}

// Invocation is a single command line for one of the tools.
type Invocation struct {
	Binary string
	Args   []string
}

// Output holds what a finished process wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an invocation to completion.
type Runner interface {
	// Run blocks until the process exits. A nonzero exit is reported as an
	// *Error; stdout and stderr are returned in either case.
	Run(ctx context.Context, inv Invocation) (Output, error)
}

// ExecRunner runs invocations with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	r.logger.Debug("running media tool",
		slog.String("binary", inv.Binary),
		slog.Any("args", inv.Args),
	)

	// #nosec G204 - binary comes from startup configuration, args from the builders in this package
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("ffmpeg: %s cancelled: %w", inv.Binary, ctx.Err())
		}
		return out, &Error{
			Binary: inv.Binary,
			Args:   inv.Args,
			Stderr: tail(stderr.String(), maxStderr),
			Err:    err,
		}
	}
	return out, nil
}

// Await runs inv on its own goroutine and returns the first of completion,
// failure or context cancellation. The process result is delivered over a
// channel of capacity one, so exactly one outcome is ever observed and the
// runner goroutine never blocks after the caller gave up.
func Await(ctx context.Context, r Runner, inv Invocation) (Output, error) {
	type result struct {
		out Output
		err error
	}

	done := make(chan result, 1)
	go func() {
		out, err := r.Run(ctx, inv)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return Output{}, fmt.Errorf("ffmpeg: %s abandoned: %w", inv.Binary, ctx.Err())
	}
}
