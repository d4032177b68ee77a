package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for the tool boundary.
var (
	// ErrSubprocess matches any failed ffmpeg or ffprobe run.
	ErrSubprocess = errors.New("ffmpeg: subprocess failed")
	// ErrParse is returned when tool output does not contain the expected
	// structured payload.
	ErrParse = errors.New("ffmpeg: unparseable tool output")
)

// maxStderr caps how much diagnostic text an Error carries.
const maxStderr = 4096

// Error represents a failed run, including the tail of its stderr output.
// It matches ErrSubprocess with errors.Is.
type Error struct {
	Binary string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %s\nstderr: %s", e.Binary, e.Err, strings.Join(e.Args, " "), e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSubprocess.
func (e *Error) Is(target error) bool {
	return target == ErrSubprocess
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
