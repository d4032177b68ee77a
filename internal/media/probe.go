package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// ProbeInfo is the container and stream metadata reported by ffprobe.
type ProbeInfo struct {
	FormatName string
	DurationMs int64
	Size       int64
	Streams    []StreamInfo
}

// StreamInfo describes one stream of a probed file.
type StreamInfo struct {
	Index     int
	CodecType string
	CodecName string
	Width     int
	Height    int
}

// HasAudio reports whether any stream is an audio stream.
func (p *ProbeInfo) HasAudio() bool {
	return p.hasStream("audio")
}

// HasVideo reports whether any stream is a video stream.
func (p *ProbeInfo) HasVideo() bool {
	return p.hasStream("video")
}

func (p *ProbeInfo) hasStream(codecType string) bool {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// ffprobeOutput is the raw JSON printed by ffprobe.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads container metadata of the file at path. Nothing is transformed.
func (o *Orchestrator) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	out, err := ffmpeg.Await(ctx, o.runner, ffmpeg.Invocation{
		Binary: o.tools.FFprobePath,
		Args:   ffmpeg.ProbeArgs(path),
	})
	if err != nil {
		return nil, fmt.Errorf("media: probe: %w", err)
	}
	return parseProbeOutput(out.Stdout)
}

// GetDurationFromBuffer implements Processor.
// The staged session is deleted whether or not the probe succeeds.
func (o *Orchestrator) GetDurationFromBuffer(ctx context.Context, data []byte, ext string) (int64, error) {
	if ext == "" {
		ext = videoExt
	}

	src, err := o.stage(ctx, data, ext)
	defer o.discard("duration", src)
	if err != nil {
		return 0, err
	}

	info, err := o.Probe(ctx, src.Path())
	if err != nil {
		return 0, err
	}
	return info.DurationMs, nil
}

func parseProbeOutput(data []byte) (*ProbeInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: ffprobe json: %w", ffmpeg.ErrParse, err)
	}

	info := &ProbeInfo{FormatName: raw.Format.FormatName}

	if raw.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(raw.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: duration %q: %w", ffmpeg.ErrParse, raw.Format.Duration, err)
		}
		info.DurationMs = int64(seconds * 1000)
	}
	if raw.Format.Size != "" {
		// Size is informational; a malformed value is left at zero.
		info.Size, _ = strconv.ParseInt(raw.Format.Size, 10, 64)
	}

	for _, s := range raw.Streams {
		info.Streams = append(info.Streams, StreamInfo{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
			Width:     s.Width,
			Height:    s.Height,
		})
	}
	return info, nil
}
