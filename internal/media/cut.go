package media

import (
	"context"
	"fmt"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// Cut implements Processor.
// Omitting both bounds returns the whole input re-encoded. The result is
// collected by polling the output file until its size is stable.
func (o *Orchestrator) Cut(ctx context.Context, video []byte, opts CutOptions) ([]byte, error) {
	const op = "cut"
	if err := opts.validate(); err != nil {
		return nil, err
	}

	src, err := o.stage(ctx, video, videoExt)
	defer o.discard(op, src)
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(videoExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, ffmpeg.CutArgs(src.Path(), opts.StartMs, opts.EndMs, out.Path())); err != nil {
		return nil, err
	}

	data, err := out.WaitForRead(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}

func (c CutOptions) validate() error {
	if c.StartMs != nil && *c.StartMs < 0 {
		return fmt.Errorf("%w: start %dms is negative", ErrInvalidRange, *c.StartMs)
	}
	if c.EndMs != nil && *c.EndMs <= 0 {
		return fmt.Errorf("%w: end %dms is not positive", ErrInvalidRange, *c.EndMs)
	}
	if c.StartMs != nil && c.EndMs != nil && *c.EndMs <= *c.StartMs {
		return fmt.Errorf("%w: end %dms is not after start %dms", ErrInvalidRange, *c.EndMs, *c.StartMs)
	}
	return nil
}

// CutOutSegments implements Processor.
// The input is probed first so that audio is only filtered when present.
func (o *Orchestrator) CutOutSegments(ctx context.Context, video []byte, segments []Segment) ([]byte, error) {
	const op = "cut out segments"
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	ranges := make([]ffmpeg.Range, 0, len(segments))
	for _, s := range segments {
		if s.StartMs < 0 || s.EndMs <= s.StartMs {
			return nil, fmt.Errorf("%w: segment [%d, %d)", ErrInvalidRange, s.StartMs, s.EndMs)
		}
		ranges = append(ranges, ffmpeg.Range{StartMs: s.StartMs, EndMs: s.EndMs})
	}

	src, err := o.stage(ctx, video, videoExt)
	defer o.discard(op, src)
	if err != nil {
		return nil, err
	}

	info, err := o.Probe(ctx, src.Path())
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(videoExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, ffmpeg.CutOutArgs(src.Path(), ranges, info.HasAudio(), out.Path())); err != nil {
		return nil, err
	}
	return collect(ctx, out)
}
