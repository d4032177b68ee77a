package loudnorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
	"github.com/maauso/mediaops-api/internal/session"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageMeasure   Stage = "measure"
	StageTransform Stage = "transform"
)

// StageError reports which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("loudnorm: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// stageEnv is what both stages need to run the tool.
type stageEnv struct {
	binary   string
	runner   ffmpeg.Runner
	sessions *session.Factory
	logger   *slog.Logger
}

func (e stageEnv) discard(stage Stage, sessions ...*session.Session) {
	for _, s := range sessions {
		if err := s.Delete(); err != nil {
			e.logger.Warn("failed to delete session",
				slog.String("stage", string(stage)),
				slog.String("path", s.Path()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// measureStage runs loudnorm in analysis mode and parses its statistics.
type measureStage struct {
	stageEnv
}

func (s measureStage) run(ctx context.Context, audio []byte, target ffmpeg.LoudnessTarget) (Measurement, error) {
	in := s.sessions.New(audioExt)
	defer s.discard(StageMeasure, in)

	if err := in.Write(ctx, audio); err != nil {
		return Measurement{}, err
	}

	out, err := ffmpeg.Await(ctx, s.runner, ffmpeg.Invocation{
		Binary: s.binary,
		Args:   ffmpeg.LoudnormMeasureArgs(in.Path(), target),
	})
	if err != nil {
		return Measurement{}, err
	}

	m, err := parseMeasurement(string(out.Stderr))
	if err != nil {
		return Measurement{}, err
	}

	s.logger.Debug("loudness measured",
		slog.Float64("input_i", m.InputI),
		slog.Float64("input_tp", m.InputTP),
		slog.Float64("input_lra", m.InputLRA),
		slog.Float64("target_offset", m.TargetOffset),
	)
	return m, nil
}

// transformStage applies linear normalization from a finished measurement.
type transformStage struct {
	stageEnv
}

func (s transformStage) run(ctx context.Context, audio []byte, target ffmpeg.LoudnessTarget, m Measurement) ([]byte, error) {
	in := s.sessions.New(audioExt)
	out := s.sessions.New(audioExt)
	defer s.discard(StageTransform, in, out)

	if err := in.Write(ctx, audio); err != nil {
		return nil, err
	}

	if _, err := ffmpeg.Await(ctx, s.runner, ffmpeg.Invocation{
		Binary: s.binary,
		Args:   ffmpeg.LoudnormTransformArgs(in.Path(), target, m.measured(), out.Path()),
	}); err != nil {
		return nil, err
	}

	data, err := out.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}
