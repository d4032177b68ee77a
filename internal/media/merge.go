package media

import (
	"context"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// Merge implements Processor.
// The first path is the primary input and decides whether audio is
// concatenated; the duration of the result is probed afterwards.
func (o *Orchestrator) Merge(ctx context.Context, paths []string) (*MergeResult, error) {
	const op = "merge"
	if len(paths) == 0 {
		return nil, ErrNoInputs
	}

	primary, err := o.Probe(ctx, paths[0])
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(videoExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, ffmpeg.MergeArgs(paths, primary.HasAudio(), out.Path())); err != nil {
		return nil, err
	}

	buf, err := collect(ctx, out)
	if err != nil {
		return nil, err
	}

	durationMs, err := o.GetDurationFromBuffer(ctx, buf, videoExt)
	if err != nil {
		return nil, err
	}

	return &MergeResult{Buffer: buf, DurationMs: durationMs}, nil
}
