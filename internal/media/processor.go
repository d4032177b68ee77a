// Package media maps logical media operations onto ffmpeg and ffprobe runs.
//
// Every operation follows the same shape: stage inputs into sessions, build
// the tool's argument list, run it through the one-shot completion bridge,
// collect the result and delete every session it created, on success and
// failure alike.
package media

import (
	"context"
	"errors"
	"io"
)

// Static errors for media operations.
var (
	// ErrNoInputs is returned when an operation needs at least one input path.
	ErrNoInputs = errors.New("media: no input paths provided")
	// ErrNoInput is returned when an Input has neither a path nor a reader.
	ErrNoInput = errors.New("media: input has neither path nor reader")
	// ErrInvalidRange is returned for negative or inverted time bounds.
	ErrInvalidRange = errors.New("media: invalid time range")
	// ErrNoSegments is returned when CutOutSegments gets an empty list.
	ErrNoSegments = errors.New("media: no segments to cut out")
	// ErrInvalidParams is returned for out-of-range operation parameters.
	ErrInvalidParams = errors.New("media: invalid parameters")
	// ErrEmptyOutput is returned when the tool succeeded but produced no bytes.
	ErrEmptyOutput = errors.New("media: tool produced empty output")
)

// Processor is the set of media operations offered to callers.
// Every method returns either a complete result or an error, never a partial
// buffer.
type Processor interface {
	// Merge concatenates the files at paths in order. The result carries the
	// duration of the merged media.
	Merge(ctx context.Context, paths []string) (*MergeResult, error)

	// ReplaceAudioIntoVideo replaces the audio of video with audio, scaled by
	// volume and delayed by delayMs. The video stream is copied verbatim.
	ReplaceAudioIntoVideo(ctx context.Context, video, audio Input, delayMs int64, volume float64) ([]byte, error)

	// MixinAudio mixes audio into the existing audio track of videoWithAudio.
	MixinAudio(ctx context.Context, videoWithAudio, audio Input, delayMs int64, volume float64) ([]byte, error)

	// Cut trims video to the bounds in opts. Either bound may be omitted.
	Cut(ctx context.Context, video []byte, opts CutOptions) ([]byte, error)

	// CutOutSegments removes every segment from video and joins the rest.
	CutOutSegments(ctx context.Context, video []byte, segments []Segment) ([]byte, error)

	// GetDurationFromBuffer probes data and returns its duration in
	// milliseconds. ext is the container extension, "mp4" if empty.
	GetDurationFromBuffer(ctx context.Context, data []byte, ext string) (int64, error)

	// ExtractFrame returns the frame at atMs as a PNG image.
	ExtractFrame(ctx context.Context, video []byte, atMs int64) ([]byte, error)

	// WatermarkFullSize overlays image across the full frame of video.
	WatermarkFullSize(ctx context.Context, video, image []byte) ([]byte, error)
}

// MergeResult is the output of Merge.
type MergeResult struct {
	Buffer     []byte
	DurationMs int64
}

// CutOptions bounds a Cut. A nil bound is left open.
type CutOptions struct {
	StartMs *int64
	EndMs   *int64
}

// Segment is a [StartMs, EndMs) span to remove.
type Segment struct {
	StartMs int64
	EndMs   int64
}

// Input is a media source given either as a filesystem path or as a live
// stream. Streams are drained to a temporary file before the tool runs.
type Input struct {
	Path   string
	Reader io.Reader
	// Extension names the container of Reader, "mp4" if empty.
	Extension string
}

// PathInput returns an Input backed by a file.
func PathInput(path string) Input {
	return Input{Path: path}
}

// StreamInput returns an Input backed by r, spooled to a file with ext.
func StreamInput(r io.Reader, ext string) Input {
	return Input{Reader: r, Extension: ext}
}
