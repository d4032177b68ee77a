package media

import (
	"context"
	"fmt"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// ExtractFrame implements Processor.
func (o *Orchestrator) ExtractFrame(ctx context.Context, video []byte, atMs int64) ([]byte, error) {
	const op = "extract frame"
	if atMs < 0 {
		return nil, fmt.Errorf("%w: frame position %dms is negative", ErrInvalidRange, atMs)
	}

	src, err := o.stage(ctx, video, videoExt)
	defer o.discard(op, src)
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(imageExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, ffmpeg.ExtractFrameArgs(src.Path(), atMs, out.Path())); err != nil {
		return nil, err
	}
	return collect(ctx, out)
}

// WatermarkFullSize implements Processor.
func (o *Orchestrator) WatermarkFullSize(ctx context.Context, video, image []byte) ([]byte, error) {
	const op = "watermark"

	src, err := o.stage(ctx, video, videoExt)
	defer o.discard(op, src)
	if err != nil {
		return nil, err
	}

	mark, err := o.stage(ctx, image, imageExt)
	defer o.discard(op, mark)
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(videoExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, ffmpeg.WatermarkArgs(src.Path(), mark.Path(), out.Path())); err != nil {
		return nil, err
	}
	return collect(ctx, out)
}
