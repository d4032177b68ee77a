package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

// argAfter returns the argument following flag, or "" if flag is absent.
func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestMergeArgs(t *testing.T) {
	t.Run("with audio", func(t *testing.T) {
		args := MergeArgs([]string{"/tmp/a.mp4", "/tmp/b.mp4", "/tmp/c.mp4"}, true, "/tmp/out.mp4")

		assert.Equal(t, "/tmp/a.mp4", argAfter(args, "-i"), "first input is the primary")
		assert.Equal(t, "[0:v][0:a][1:v][1:a][2:v][2:a]concat=n=3:v=1:a=1[v][a]", argAfter(args, "-filter_complex"))
		assert.Contains(t, args, "[a]")
		assert.Equal(t, "/tmp/out.mp4", args[len(args)-1])
	})

	t.Run("video only", func(t *testing.T) {
		args := MergeArgs([]string{"/tmp/a.mp4", "/tmp/b.mp4"}, false, "/tmp/out.mp4")

		assert.Equal(t, "[0:v][1:v]concat=n=2:v=1:a=0[v]", argAfter(args, "-filter_complex"))
		assert.NotContains(t, args, "[a]")
	})
}

func TestReplaceAudioArgs(t *testing.T) {
	args := ReplaceAudioArgs("/tmp/v.mp4", "/tmp/a.mp3", 250, 0.5, "/tmp/out.mp4")

	assert.Equal(t, "[1:a]volume=0.50,adelay=250|250[aout]", argAfter(args, "-filter_complex"))
	assert.Equal(t, "copy", argAfter(args, "-c:v"), "video is never re-encoded")
	assert.Equal(t, "0:v", argAfter(args, "-map"))
	assert.Contains(t, args, "[aout]")
}

func TestMixinAudioArgs(t *testing.T) {
	args := MixinAudioArgs("/tmp/v.mp4", "/tmp/a.mp3", 0, 1, "/tmp/out.mp4")

	assert.Equal(t,
		"[1:a]volume=1.00,adelay=0|0[voice];[0:a][voice]amix=inputs=2:duration=longest[aout]",
		argAfter(args, "-filter_complex"),
	)
	assert.Contains(t, args, "-shortest")
}

func TestCutArgs(t *testing.T) {
	tests := []struct {
		name      string
		start     *int64
		end       *int64
		wantSS    string
		wantT     string
		wantTo    string
		ssBeforeI bool
	}{
		{name: "both bounds", start: ptr(1000), end: ptr(2500), wantSS: "1000ms", wantT: "1500ms", ssBeforeI: true},
		{name: "start only", start: ptr(1000), wantSS: "1000ms", ssBeforeI: true},
		{name: "end only", end: ptr(2000), wantTo: "2000ms"},
		{name: "no bounds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := CutArgs("/tmp/in.mp4", tt.start, tt.end, "/tmp/out.mp4")

			assert.Equal(t, tt.wantSS, argAfter(args, "-ss"))
			assert.Equal(t, tt.wantT, argAfter(args, "-t"))
			assert.Equal(t, tt.wantTo, argAfter(args, "-to"))
			assert.Contains(t, args, "-accurate_seek")
			assert.Equal(t, "0", argAfter(args, "-map"))
			assert.Contains(t, args, "-shortest")

			if tt.ssBeforeI {
				joined := strings.Join(args, " ")
				assert.Less(t, strings.Index(joined, "-ss"), strings.Index(joined, "-i "))
			}
		})
	}
}

func TestCutOutArgs(t *testing.T) {
	remove := []Range{{StartMs: 1000, EndMs: 2000}, {StartMs: 5000, EndMs: 6500}}

	t.Run("with audio", func(t *testing.T) {
		args := CutOutArgs("/tmp/in.mp4", remove, true, "/tmp/out.mp4")

		keep := "not(between(t,1.000,2.000)+between(t,5.000,6.500))"
		assert.Equal(t, "select='"+keep+"',setpts=N/FRAME_RATE/TB", argAfter(args, "-vf"))
		assert.Equal(t, "aselect='"+keep+"',asetpts=N/SR/TB", argAfter(args, "-af"))
		assert.NotContains(t, args, "-an")
	})

	t.Run("video only", func(t *testing.T) {
		args := CutOutArgs("/tmp/in.mp4", remove, false, "/tmp/out.mp4")

		assert.Empty(t, argAfter(args, "-af"))
		assert.Contains(t, args, "-an")
	})
}

func TestExtractFrameArgs(t *testing.T) {
	args := ExtractFrameArgs("/tmp/in.mp4", 500, "/tmp/frame.png")

	assert.Equal(t, "500ms", argAfter(args, "-ss"))
	assert.Equal(t, "1", argAfter(args, "-frames:v"))
	assert.Equal(t, "/tmp/frame.png", args[len(args)-1])
}

func TestWatermarkArgs(t *testing.T) {
	args := WatermarkArgs("/tmp/in.mp4", "/tmp/wm.png", "/tmp/out.mp4")

	assert.Contains(t, argAfter(args, "-filter_complex"), "scale2ref")
	assert.Contains(t, argAfter(args, "-filter_complex"), "overlay=0:0")
	assert.Contains(t, args, "0:a?")
}

func TestProbeArgs(t *testing.T) {
	args := ProbeArgs("/tmp/in.mp4")

	assert.Equal(t, "json", argAfter(args, "-print_format"))
	assert.Contains(t, args, "-show_format")
	assert.Equal(t, "/tmp/in.mp4", args[len(args)-1])
}

func TestLoudnormArgs(t *testing.T) {
	target := LoudnessTarget{IntegratedLoudness: -16, LoudnessRange: 11, TruePeak: -1.5}

	t.Run("measure", func(t *testing.T) {
		args := LoudnormMeasureArgs("/tmp/in.mp3", target)

		assert.Equal(t, "loudnorm=I=-16:TP=-1.5:LRA=11:print_format=json", argAfter(args, "-af"))
		assert.Equal(t, "null", argAfter(args, "-f"))
		assert.Equal(t, "-", args[len(args)-1], "measurement writes no file")
	})

	t.Run("transform", func(t *testing.T) {
		measured := LoudnessMeasured{
			IntegratedLoudness: -27.61,
			LoudnessRange:      0.4,
			TruePeak:           -22.03,
			Threshold:          -37.61,
			Offset:             0.13,
		}
		args := LoudnormTransformArgs("/tmp/in.mp3", target, measured, "/tmp/out.mp3")

		assert.Equal(t,
			"loudnorm=I=-16:LRA=11:TP=-1.5:measured_I=-27.61:measured_LRA=0.4:measured_TP=-22.03:measured_thresh=-37.61:offset=0.13:linear=true:print_format=summary",
			argAfter(args, "-af"),
		)
		assert.Equal(t, "/tmp/out.mp3", args[len(args)-1])
	})
}
