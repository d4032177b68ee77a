package job

import (
	"errors"
	"fmt"

	"github.com/maauso/mediaops-api/internal/loudnorm"
	"github.com/maauso/mediaops-api/internal/media"
)

// ErrInvalidInput is returned when a request does not fit its operation.
var ErrInvalidInput = errors.New("invalid job input")

// Input is one media file of a request.
type Input struct {
	// Data is the raw file content.
	Data []byte
	// Extension is the container or image extension, e.g. "mp4".
	Extension string
}

// Params holds the operation parameters. Fields not used by an operation
// are ignored.
type Params struct {
	// DelayMs delays the added audio (replace_audio, mixin_audio).
	DelayMs int64
	// Volume scales the added audio; nil means 1.
	Volume *float64
	// StartMs and EndMs bound a cut; either may be nil.
	StartMs *int64
	EndMs   *int64
	// Segments are removed by cut_out_segments.
	Segments []media.Segment
	// AtMs is the frame position for extract_frame.
	AtMs int64
	// IntegratedLoudness, LoudnessRange and TruePeak override the
	// normalize_loudness defaults when set.
	IntegratedLoudness *float64
	LoudnessRange      *float64
	TruePeak           *float64
}

// volume returns the audio volume, defaulting to 1.
func (p Params) volume() float64 {
	if p.Volume == nil {
		return 1
	}
	return *p.Volume
}

// targets returns the loudness targets with defaults filled in.
func (p Params) targets() loudnorm.Targets {
	t := loudnorm.DefaultTargets()
	if p.IntegratedLoudness != nil {
		t.IntegratedLoudness = *p.IntegratedLoudness
	}
	if p.LoudnessRange != nil {
		t.LoudnessRange = *p.LoudnessRange
	}
	if p.TruePeak != nil {
		t.TruePeak = *p.TruePeak
	}
	return t
}

// ProcessInput contains everything needed to run one job.
type ProcessInput struct {
	Operation Operation
	Inputs    []Input
	Params    Params
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
}

// inputCount is the number of inputs each operation takes.
// Merge takes one or more and is checked separately.
var inputCount = map[Operation]int{
	OperationReplaceAudio:      2,
	OperationMixinAudio:        2,
	OperationCut:               1,
	OperationCutOutSegments:    1,
	OperationDuration:          1,
	OperationExtractFrame:      1,
	OperationWatermark:         2,
	OperationNormalizeLoudness: 1,
}

// Validate checks the shape of the request. Media content is not inspected.
func (in ProcessInput) Validate() error {
	if !in.Operation.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, in.Operation)
	}

	if in.Operation == OperationMerge {
		if len(in.Inputs) == 0 {
			return fmt.Errorf("%w: merge needs at least one input", ErrInvalidInput)
		}
	} else if want := inputCount[in.Operation]; len(in.Inputs) != want {
		return fmt.Errorf("%w: %s needs %d inputs, got %d", ErrInvalidInput, in.Operation, want, len(in.Inputs))
	}

	for i, input := range in.Inputs {
		if len(input.Data) == 0 {
			return fmt.Errorf("%w: input %d is empty", ErrInvalidInput, i)
		}
	}

	if in.Operation == OperationReplaceAudio || in.Operation == OperationMixinAudio {
		if in.Params.DelayMs < 0 {
			return fmt.Errorf("%w: negative delay %dms", ErrInvalidInput, in.Params.DelayMs)
		}
		if v := in.Params.volume(); v < 0 {
			return fmt.Errorf("%w: negative volume %v", ErrInvalidInput, v)
		}
	}
	if in.Operation == OperationCutOutSegments && len(in.Params.Segments) == 0 {
		return fmt.Errorf("%w: no segments to cut out", ErrInvalidInput)
	}
	if in.Operation == OperationNormalizeLoudness {
		if err := in.Params.targets().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}
