package loudnorm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
)

// markerPattern matches the log prefix ffmpeg prints before the loudnorm
// statistics block, e.g. "[Parsed_loudnorm_0 @ 0x55d0c4a3b2c0]".
var markerPattern = regexp.MustCompile(`\[Parsed_loudnorm_\d+ @ \w+\]`)

// Measurement holds the readings of the analysis pass. Values are in LUFS,
// LU or dBTP as reported by the filter.
type Measurement struct {
	InputI            float64
	InputTP           float64
	InputLRA          float64
	InputThresh       float64
	OutputI           float64
	OutputTP          float64
	OutputLRA         float64
	OutputThresh      float64
	NormalizationType string
	TargetOffset      float64
}

// measured converts the readings into the values fed back into the
// linear transform pass.
func (m Measurement) measured() ffmpeg.LoudnessMeasured {
	return ffmpeg.LoudnessMeasured{
		IntegratedLoudness: m.InputI,
		LoudnessRange:      m.InputLRA,
		TruePeak:           m.InputTP,
		Threshold:          m.InputThresh,
		Offset:             m.TargetOffset,
	}
}

// rawMeasurement mirrors the JSON block; the filter prints every number as
// a string.
type rawMeasurement struct {
	InputI            string `json:"input_i"`
	InputTP           string `json:"input_tp"`
	InputLRA          string `json:"input_lra"`
	InputThresh       string `json:"input_thresh"`
	OutputI           string `json:"output_i"`
	OutputTP          string `json:"output_tp"`
	OutputLRA         string `json:"output_lra"`
	OutputThresh      string `json:"output_thresh"`
	NormalizationType string `json:"normalization_type"`
	TargetOffset      string `json:"target_offset"`
}

// parseMeasurement extracts the statistics from the diagnostic text of an
// analysis run. The text after the last marker must hold one JSON object.
func parseMeasurement(diagnostics string) (Measurement, error) {
	parts := markerPattern.Split(diagnostics, -1)
	if len(parts) < 2 {
		return Measurement{}, fmt.Errorf("%w: loudnorm marker not found", ffmpeg.ErrParse)
	}
	block := parts[len(parts)-1]

	start := strings.Index(block, "{")
	end := strings.LastIndex(block, "}")
	if start < 0 || end < start {
		return Measurement{}, fmt.Errorf("%w: no json object after loudnorm marker", ffmpeg.ErrParse)
	}

	var raw rawMeasurement
	if err := json.Unmarshal([]byte(block[start:end+1]), &raw); err != nil {
		return Measurement{}, fmt.Errorf("%w: loudnorm json: %w", ffmpeg.ErrParse, err)
	}

	p := fieldParser{}
	m := Measurement{
		InputI:            p.float("input_i", raw.InputI),
		InputTP:           p.float("input_tp", raw.InputTP),
		InputLRA:          p.float("input_lra", raw.InputLRA),
		InputThresh:       p.float("input_thresh", raw.InputThresh),
		OutputI:           p.float("output_i", raw.OutputI),
		OutputTP:          p.float("output_tp", raw.OutputTP),
		OutputLRA:         p.float("output_lra", raw.OutputLRA),
		OutputThresh:      p.float("output_thresh", raw.OutputThresh),
		NormalizationType: raw.NormalizationType,
		TargetOffset:      p.float("target_offset", raw.TargetOffset),
	}
	if p.err != nil {
		return Measurement{}, p.err
	}
	return m, nil
}

// fieldParser keeps the first conversion error.
type fieldParser struct {
	err error
}

func (p *fieldParser) float(name, value string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		p.err = fmt.Errorf("%w: %s=%q: %w", ffmpeg.ErrParse, name, value, err)
		return 0
	}
	// Silent input measures as -inf, which the transform pass cannot use.
	if math.IsInf(v, 0) || math.IsNaN(v) {
		p.err = fmt.Errorf("%w: %s=%q is not finite", ffmpeg.ErrParse, name, value)
		return 0
	}
	return v
}
