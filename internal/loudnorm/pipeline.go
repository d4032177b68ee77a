// Package loudnorm implements two-pass EBU R128 loudness normalization.
//
// The first pass measures the input with the loudnorm filter in analysis
// mode. The second pass feeds those readings back into the filter and applies
// a linear gain. The transform stage takes a Measurement value and can only
// be reached after a successful measurement.
package loudnorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
	"github.com/maauso/mediaops-api/internal/session"
)

const audioExt = "mp3"

// Static errors for the pipeline.
var (
	ErrEmptyInput     = errors.New("loudnorm: empty audio input")
	ErrInvalidTargets = errors.New("loudnorm: invalid targets")
	ErrEmptyOutput    = errors.New("loudnorm: transform produced empty output")
)

// Targets are the loudness goals of a normalization.
type Targets struct {
	IntegratedLoudness float64 // LUFS
	LoudnessRange      float64 // LU
	TruePeak           float64 // dBTP
}

// DefaultTargets returns -16 LUFS, 11 LU and -1.5 dBTP.
func DefaultTargets() Targets {
	return Targets{IntegratedLoudness: -16, LoudnessRange: 11, TruePeak: -1.5}
}

// Validate checks the targets against the ranges the filter accepts.
func (t Targets) Validate() error {
	switch {
	case t.IntegratedLoudness < -70 || t.IntegratedLoudness > -5:
		return fmt.Errorf("%w: integrated loudness %v outside [-70, -5]", ErrInvalidTargets, t.IntegratedLoudness)
	case t.LoudnessRange < 1 || t.LoudnessRange > 50:
		return fmt.Errorf("%w: loudness range %v outside [1, 50]", ErrInvalidTargets, t.LoudnessRange)
	case t.TruePeak < -9 || t.TruePeak > 0:
		return fmt.Errorf("%w: true peak %v outside [-9, 0]", ErrInvalidTargets, t.TruePeak)
	}
	return nil
}

func (t Targets) filter() ffmpeg.LoudnessTarget {
	return ffmpeg.LoudnessTarget{
		IntegratedLoudness: t.IntegratedLoudness,
		LoudnessRange:      t.LoudnessRange,
		TruePeak:           t.TruePeak,
	}
}

// Pipeline runs the measure and transform stages in sequence.
type Pipeline struct {
	measure   measureStage
	transform transformStage
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	runner ffmpeg.Runner
	logger *slog.Logger
}

// WithRunner replaces the subprocess runner.
func WithRunner(r ffmpeg.Runner) Option {
	return func(o *pipelineOptions) {
		o.runner = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *pipelineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewPipeline creates a Pipeline that stores its intermediate files in sessions.
func NewPipeline(tools ffmpeg.Config, sessions *session.Factory, opts ...Option) *Pipeline {
	o := pipelineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = ffmpeg.NewExecRunner(o.logger)
	}

	env := stageEnv{
		binary:   tools.WithDefaults().FFmpegPath,
		runner:   o.runner,
		sessions: sessions,
		logger:   o.logger,
	}
	return &Pipeline{
		measure:   measureStage{env},
		transform: transformStage{env},
		logger:    o.logger,
	}
}

// Normalize returns audio normalized to targets. Errors from either stage
// are returned as *StageError.
func (p *Pipeline) Normalize(ctx context.Context, audio []byte, targets Targets) ([]byte, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyInput
	}
	if err := targets.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	m, err := p.measure.run(ctx, audio, targets.filter())
	if err != nil {
		return nil, &StageError{Stage: StageMeasure, Err: err}
	}

	out, err := p.transform.run(ctx, audio, targets.filter(), m)
	if err != nil {
		return nil, &StageError{Stage: StageTransform, Err: err}
	}

	p.logger.Info("loudness normalized",
		slog.Float64("measured_i", m.InputI),
		slog.Float64("target_i", targets.IntegratedLoudness),
		slog.Int("bytes", len(out)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
