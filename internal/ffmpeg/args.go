package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a [StartMs, EndMs) span on a media timeline.
type Range struct {
	StartMs int64
	EndMs   int64
}

// LoudnessTarget holds the EBU R128 targets passed to the loudnorm filter.
type LoudnessTarget struct {
	IntegratedLoudness float64 // I, LUFS
	LoudnessRange      float64 // LRA, LU
	TruePeak           float64 // TP, dBTP
}

// LoudnessMeasured holds the first-pass readings fed back into loudnorm.
type LoudnessMeasured struct {
	IntegratedLoudness float64
	LoudnessRange      float64
	TruePeak           float64
	Threshold          float64
	Offset             float64
}

// base returns the flags shared by every ffmpeg invocation.
func base() []string {
	return []string{
		"-hide_banner",
		"-nostdin", // Never wait for keyboard input
		"-y",       // Overwrite output file
	}
}

// MergeArgs concatenates inputs in order with the concat filter.
// The first input is the primary; the others follow as extra inputs.
// withAudio selects whether an audio stream is concatenated as well.
func MergeArgs(inputs []string, withAudio bool, output string) []string {
	args := base()
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var graph strings.Builder
	for i := range inputs {
		fmt.Fprintf(&graph, "[%d:v]", i)
		if withAudio {
			fmt.Fprintf(&graph, "[%d:a]", i)
		}
	}
	if withAudio {
		fmt.Fprintf(&graph, "concat=n=%d:v=1:a=1[v][a]", len(inputs))
	} else {
		fmt.Fprintf(&graph, "concat=n=%d:v=1:a=0[v]", len(inputs))
	}

	args = append(args, "-filter_complex", graph.String(), "-map", "[v]")
	if withAudio {
		args = append(args, "-map", "[a]", "-c:a", "aac", "-b:a", "128k")
	}
	return append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		output,
	)
}

// ReplaceAudioArgs puts audio onto video's container, replacing its audio.
// The video stream is copied; the audio is volume-scaled and delayed.
func ReplaceAudioArgs(video, audio string, delayMs int64, volume float64, output string) []string {
	filter := fmt.Sprintf("[1:a]%s[aout]", volumeDelay(delayMs, volume))
	return append(base(),
		"-i", video,
		"-i", audio,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		output,
	)
}

// MixinAudioArgs mixes audio into the existing audio track of video.
// The mix lasts as long as the longer track and the output is cut to the
// shortest stream.
func MixinAudioArgs(video, audio string, delayMs int64, volume float64, output string) []string {
	filter := fmt.Sprintf("[1:a]%s[voice];[0:a][voice]amix=inputs=2:duration=longest[aout]", volumeDelay(delayMs, volume))
	return append(base(),
		"-i", video,
		"-i", audio,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:a", "aac",
		"-shortest",
		output,
	)
}

func volumeDelay(delayMs int64, volume float64) string {
	return fmt.Sprintf("volume=%.2f,adelay=%d|%d", volume, delayMs, delayMs)
}

// CutArgs trims input. A nil bound is left open. With a start bound the
// seek happens before decoding (accurate mode) and the end is expressed as a
// duration relative to it.
func CutArgs(input string, startMs, endMs *int64, output string) []string {
	args := base()
	if startMs != nil {
		args = append(args, "-ss", millis(*startMs))
	}
	args = append(args, "-accurate_seek", "-i", input)
	switch {
	case endMs != nil && startMs != nil:
		args = append(args, "-t", millis(*endMs-*startMs))
	case endMs != nil:
		args = append(args, "-to", millis(*endMs))
	}
	return append(args,
		"-map", "0",
		"-shortest",
		"-crf", "23",
		output,
	)
}

// CutOutArgs drops every range in remove and closes the gaps by
// re-timestamping the remaining frames and samples.
func CutOutArgs(input string, remove []Range, withAudio bool, output string) []string {
	terms := make([]string, 0, len(remove))
	for _, r := range remove {
		terms = append(terms, fmt.Sprintf("between(t,%s,%s)", seconds(r.StartMs), seconds(r.EndMs)))
	}
	keep := "not(" + strings.Join(terms, "+") + ")"

	args := append(base(),
		"-i", input,
		"-vf", fmt.Sprintf("select='%s',setpts=N/FRAME_RATE/TB", keep),
	)
	if withAudio {
		args = append(args, "-af", fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", keep))
	} else {
		args = append(args, "-an")
	}
	return append(args, "-crf", "23", output)
}

// ExtractFrameArgs emits the single frame at atMs as a still image.
func ExtractFrameArgs(input string, atMs int64, output string) []string {
	return append(base(),
		"-ss", millis(atMs),
		"-i", input,
		"-frames:v", "1",
		"-update", "1",
		output,
	)
}

// WatermarkArgs overlays image across the full frame of video for its
// whole duration. Audio is copied when present.
func WatermarkArgs(video, image, output string) []string {
	return append(base(),
		"-i", video,
		"-i", image,
		"-filter_complex", "[1:v][0:v]scale2ref[wm][base];[base][wm]overlay=0:0[v]",
		"-map", "[v]",
		"-map", "0:a?",
		"-c:a", "copy",
		output,
	)
}

// ProbeArgs asks ffprobe for container and stream metadata as JSON on stdout.
func ProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
}

// LoudnormMeasureArgs runs loudnorm in analysis mode. Nothing is written;
// the JSON statistics are printed on stderr.
func LoudnormMeasureArgs(input string, target LoudnessTarget) []string {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s:print_format=json",
		num(target.IntegratedLoudness),
		num(target.TruePeak),
		num(target.LoudnessRange),
	)
	return append(base(),
		"-nostats",
		"-i", input,
		"-af", filter,
		"-f", "null",
		"-",
	)
}

// LoudnormTransformArgs applies linear loudness normalization using the
// readings of a previous measurement pass.
func LoudnormTransformArgs(input string, target LoudnessTarget, measured LoudnessMeasured, output string) []string {
	filter := fmt.Sprintf(
		"loudnorm=I=%s:LRA=%s:TP=%s:measured_I=%s:measured_LRA=%s:measured_TP=%s:measured_thresh=%s:offset=%s:linear=true:print_format=summary",
		num(target.IntegratedLoudness),
		num(target.LoudnessRange),
		num(target.TruePeak),
		num(measured.IntegratedLoudness),
		num(measured.LoudnessRange),
		num(measured.TruePeak),
		num(measured.Threshold),
		num(measured.Offset),
	)
	return append(base(),
		"-nostats",
		"-i", input,
		"-af", filter,
		output,
	)
}

func millis(ms int64) string {
	return strconv.FormatInt(ms, 10) + "ms"
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
