package media

import (
	"context"
	"fmt"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// audioArgsFunc builds the command line for a two-input audio operation.
type audioArgsFunc func(video, audio string, delayMs int64, volume float64, output string) []string

// ReplaceAudioIntoVideo implements Processor.
func (o *Orchestrator) ReplaceAudioIntoVideo(ctx context.Context, video, audio Input, delayMs int64, volume float64) ([]byte, error) {
	return o.withAudio(ctx, "replace audio", ffmpeg.ReplaceAudioArgs, video, audio, delayMs, volume)
}

// MixinAudio implements Processor.
func (o *Orchestrator) MixinAudio(ctx context.Context, videoWithAudio, audio Input, delayMs int64, volume float64) ([]byte, error) {
	return o.withAudio(ctx, "mixin audio", ffmpeg.MixinAudioArgs, videoWithAudio, audio, delayMs, volume)
}

func (o *Orchestrator) withAudio(ctx context.Context, op string, build audioArgsFunc, video, audio Input, delayMs int64, volume float64) ([]byte, error) {
	if delayMs < 0 || volume < 0 {
		return nil, fmt.Errorf("%w: delay=%dms volume=%.2f", ErrInvalidParams, delayMs, volume)
	}

	videoPath, videoTmp, err := o.resolve(ctx, video)
	defer o.discard(op, videoTmp)
	if err != nil {
		return nil, err
	}

	audioPath, audioTmp, err := o.resolve(ctx, audio)
	defer o.discard(op, audioTmp)
	if err != nil {
		return nil, err
	}

	out := o.sessions.New(videoExt)
	defer o.discard(op, out)

	if err := o.transform(ctx, op, build(videoPath, audioPath, delayMs, volume, out.Path())); err != nil {
		return nil, err
	}
	return collect(ctx, out)
}
