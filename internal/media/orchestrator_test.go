package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaops-api/internal/ffmpeg"
	"github.com/maauso/mediaops-api/internal/session"
)

const probeWithAudio = `{
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "10.016000", "size": "41234"},
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 64, "height": 64},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ]
}`

const probeVideoOnly = `{
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "2.500000"},
  "streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 64, "height": 64}]
}`

// fakeRunner records invocations. ffprobe calls answer with probeJSON;
// ffmpeg calls write output to their last argument unless failWith is set.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []ffmpeg.Invocation
	probeJSON string
	output    []byte
	failWith  error
	probeErr  error
	inputs    map[string][]byte
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		probeJSON: probeWithAudio,
		output:    []byte("encoded"),
		inputs:    make(map[string][]byte),
	}
}

func (f *fakeRunner) Run(_ context.Context, inv ffmpeg.Invocation) (ffmpeg.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)

	// Snapshot every -i input while it still exists.
	for i, a := range inv.Args {
		if a == "-i" && i+1 < len(inv.Args) {
			if data, err := os.ReadFile(inv.Args[i+1]); err == nil {
				f.inputs[inv.Args[i+1]] = data
			}
		}
	}

	if inv.Binary == "ffprobe" {
		if f.probeErr != nil {
			return ffmpeg.Output{}, f.probeErr
		}
		return ffmpeg.Output{Stdout: []byte(f.probeJSON)}, nil
	}
	if f.failWith != nil {
		return ffmpeg.Output{Stderr: []byte("boom")}, f.failWith
	}
	out := inv.Args[len(inv.Args)-1]
	if err := os.WriteFile(out, f.output, 0o600); err != nil {
		return ffmpeg.Output{}, err
	}
	return ffmpeg.Output{}, nil
}

func (f *fakeRunner) binaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bins := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		bins = append(bins, c.Binary)
	}
	return bins
}

func (f *fakeRunner) lastFFmpeg(t *testing.T) ffmpeg.Invocation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Binary == "ffmpeg" {
			return f.calls[i]
		}
	}
	t.Fatal("no ffmpeg invocation recorded")
	return ffmpeg.Invocation{}
}

func newTestOrchestrator(t *testing.T, runner ffmpeg.Runner) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	sessions := session.NewFactory(root,
		session.WithPollInterval(5*time.Millisecond),
		session.WithMaxAttempts(10),
	)
	return NewOrchestrator(ffmpeg.DefaultConfig(), sessions, WithRunner(runner)), root
}

func assertRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "sessions left behind")
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestGetDurationFromBuffer(t *testing.T) {
	t.Run("returns truncated milliseconds", func(t *testing.T) {
		runner := newFakeRunner()
		o, root := newTestOrchestrator(t, runner)

		ms, err := o.GetDurationFromBuffer(context.Background(), []byte("video"), "")
		require.NoError(t, err)
		assert.Equal(t, int64(10016), ms)
		assert.Equal(t, []string{"ffprobe"}, runner.binaries())
		assertRootEmpty(t, root)
	})

	t.Run("uses the given extension", func(t *testing.T) {
		runner := newFakeRunner()
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.GetDurationFromBuffer(context.Background(), []byte("audio"), "mp3")
		require.NoError(t, err)
		probed := runner.calls[0].Args[len(runner.calls[0].Args)-1]
		assert.True(t, strings.HasSuffix(probed, ".mp3"), probed)
	})

	t.Run("deletes session when probe fails", func(t *testing.T) {
		runner := newFakeRunner()
		runner.probeErr = &ffmpeg.Error{Binary: "ffprobe", Err: errors.New("exit status 1")}
		o, root := newTestOrchestrator(t, runner)

		_, err := o.GetDurationFromBuffer(context.Background(), []byte("invalid"), "mp4")
		require.Error(t, err)
		assert.ErrorIs(t, err, ffmpeg.ErrSubprocess)
		assertRootEmpty(t, root)
	})

	t.Run("malformed probe output is a parse error", func(t *testing.T) {
		runner := newFakeRunner()
		runner.probeJSON = "not json"
		o, root := newTestOrchestrator(t, runner)

		_, err := o.GetDurationFromBuffer(context.Background(), []byte("video"), "mp4")
		assert.ErrorIs(t, err, ffmpeg.ErrParse)
		assertRootEmpty(t, root)
	})
}

func TestParseProbeOutput(t *testing.T) {
	info, err := parseProbeOutput([]byte(probeWithAudio))
	require.NoError(t, err)
	assert.Equal(t, int64(10016), info.DurationMs)
	assert.Equal(t, int64(41234), info.Size)
	assert.True(t, info.HasAudio())
	assert.True(t, info.HasVideo())
	assert.Equal(t, 64, info.Streams[0].Width)

	info, err = parseProbeOutput([]byte(`{"format": {}, "streams": []}`))
	require.NoError(t, err)
	assert.Zero(t, info.DurationMs)
	assert.False(t, info.HasAudio())

	_, err = parseProbeOutput([]byte(`{"format": {"duration": "N/A"}}`))
	assert.ErrorIs(t, err, ffmpeg.ErrParse)
}

func TestMerge(t *testing.T) {
	t.Run("concatenates and probes result", func(t *testing.T) {
		runner := newFakeRunner()
		o, root := newTestOrchestrator(t, runner)

		res, err := o.Merge(context.Background(), []string{"/in/a.mp4", "/in/b.mp4"})
		require.NoError(t, err)
		assert.Equal(t, []byte("encoded"), res.Buffer)
		assert.Equal(t, int64(10016), res.DurationMs)
		assert.Equal(t, []string{"ffprobe", "ffmpeg", "ffprobe"}, runner.binaries())

		filter := argValue(runner.lastFFmpeg(t).Args, "-filter_complex")
		assert.Contains(t, filter, "concat=n=2:v=1:a=1")
		assertRootEmpty(t, root)
	})

	t.Run("video without audio", func(t *testing.T) {
		runner := newFakeRunner()
		runner.probeJSON = probeVideoOnly
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.Merge(context.Background(), []string{"/in/a.mp4", "/in/b.mp4"})
		require.NoError(t, err)
		filter := argValue(runner.lastFFmpeg(t).Args, "-filter_complex")
		assert.Contains(t, filter, "concat=n=2:v=1:a=0")
	})

	t.Run("no inputs", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, newFakeRunner())
		_, err := o.Merge(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoInputs)
	})

	t.Run("tool failure cleans up", func(t *testing.T) {
		runner := newFakeRunner()
		runner.failWith = &ffmpeg.Error{Binary: "ffmpeg", Stderr: "boom", Err: errors.New("exit status 1")}
		o, root := newTestOrchestrator(t, runner)

		_, err := o.Merge(context.Background(), []string{"/in/a.mp4"})
		assert.ErrorIs(t, err, ffmpeg.ErrSubprocess)
		assertRootEmpty(t, root)
	})
}

func TestReplaceAudioIntoVideo(t *testing.T) {
	t.Run("streams are spooled and removed", func(t *testing.T) {
		runner := newFakeRunner()
		o, root := newTestOrchestrator(t, runner)

		out, err := o.ReplaceAudioIntoVideo(context.Background(),
			StreamInput(bytes.NewReader([]byte("video-bytes")), "mp4"),
			StreamInput(bytes.NewReader([]byte("audio-bytes")), "mp3"),
			1500, 0.8)
		require.NoError(t, err)
		assert.Equal(t, []byte("encoded"), out)

		inv := runner.lastFFmpeg(t)
		assert.Contains(t, argValue(inv.Args, "-filter_complex"), "volume=0.80,adelay=1500|1500")

		var spooled [][]byte
		for _, a := range inv.Args {
			if data, ok := runner.inputs[a]; ok {
				spooled = append(spooled, data)
			}
		}
		assert.Equal(t, [][]byte{[]byte("video-bytes"), []byte("audio-bytes")}, spooled)
		assertRootEmpty(t, root)
	})

	t.Run("path inputs are used in place", func(t *testing.T) {
		runner := newFakeRunner()
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.ReplaceAudioIntoVideo(context.Background(), PathInput("/in/v.mp4"), PathInput("/in/a.mp3"), 0, 1)
		require.NoError(t, err)
		inv := runner.lastFFmpeg(t)
		assert.Contains(t, inv.Args, "/in/v.mp4")
		assert.Contains(t, inv.Args, "/in/a.mp3")
	})

	t.Run("rejects negative parameters", func(t *testing.T) {
		runner := newFakeRunner()
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.ReplaceAudioIntoVideo(context.Background(), PathInput("/v"), PathInput("/a"), -1, 1)
		assert.ErrorIs(t, err, ErrInvalidParams)
		_, err = o.ReplaceAudioIntoVideo(context.Background(), PathInput("/v"), PathInput("/a"), 0, -0.5)
		assert.ErrorIs(t, err, ErrInvalidParams)
		assert.Empty(t, runner.binaries())
	})

	t.Run("empty input", func(t *testing.T) {
		o, root := newTestOrchestrator(t, newFakeRunner())
		_, err := o.ReplaceAudioIntoVideo(context.Background(), StreamInput(strings.NewReader("v"), "mp4"), Input{}, 0, 1)
		assert.ErrorIs(t, err, ErrNoInput)
		assertRootEmpty(t, root)
	})
}

func TestMixinAudio(t *testing.T) {
	runner := newFakeRunner()
	o, root := newTestOrchestrator(t, runner)

	out, err := o.MixinAudio(context.Background(), PathInput("/in/v.mp4"), StreamInput(strings.NewReader("voice"), "wav"), 250, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded"), out)
	assert.Contains(t, argValue(runner.lastFFmpeg(t).Args, "-filter_complex"), "amix=inputs=2:duration=longest")
	assertRootEmpty(t, root)
}

func TestCut(t *testing.T) {
	ptr := func(v int64) *int64 { return &v }

	t.Run("both bounds", func(t *testing.T) {
		runner := newFakeRunner()
		o, root := newTestOrchestrator(t, runner)

		out, err := o.Cut(context.Background(), []byte("video"), CutOptions{StartMs: ptr(1000), EndMs: ptr(2000)})
		require.NoError(t, err)
		assert.Equal(t, []byte("encoded"), out)

		args := runner.lastFFmpeg(t).Args
		assert.Equal(t, "1000ms", argValue(args, "-ss"))
		assert.Equal(t, "1000ms", argValue(args, "-t"))
		assertRootEmpty(t, root)
	})

	t.Run("no bounds", func(t *testing.T) {
		runner := newFakeRunner()
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.Cut(context.Background(), []byte("video"), CutOptions{})
		require.NoError(t, err)
		args := runner.lastFFmpeg(t).Args
		assert.NotContains(t, args, "-ss")
		assert.NotContains(t, args, "-t")
	})

	t.Run("invalid ranges", func(t *testing.T) {
		runner := newFakeRunner()
		o, _ := newTestOrchestrator(t, runner)

		for _, opts := range []CutOptions{
			{StartMs: ptr(-1)},
			{EndMs: ptr(0)},
			{StartMs: ptr(2000), EndMs: ptr(1000)},
			{StartMs: ptr(1000), EndMs: ptr(1000)},
		} {
			_, err := o.Cut(context.Background(), []byte("video"), opts)
			assert.ErrorIs(t, err, ErrInvalidRange)
		}
		assert.Empty(t, runner.binaries())
	})

	t.Run("output never appears", func(t *testing.T) {
		runner := &noOutputRunner{}
		o, root := newTestOrchestrator(t, runner)

		_, err := o.Cut(context.Background(), []byte("video"), CutOptions{StartMs: ptr(0)})
		assert.ErrorIs(t, err, session.ErrTimeout)
		assertRootEmpty(t, root)
	})
}

// noOutputRunner succeeds without writing anything.
type noOutputRunner struct{}

func (noOutputRunner) Run(context.Context, ffmpeg.Invocation) (ffmpeg.Output, error) {
	return ffmpeg.Output{}, nil
}

func TestCutOutSegments(t *testing.T) {
	t.Run("filters video and audio", func(t *testing.T) {
		runner := newFakeRunner()
		o, root := newTestOrchestrator(t, runner)

		_, err := o.CutOutSegments(context.Background(), []byte("video"), []Segment{{StartMs: 1000, EndMs: 2000}, {StartMs: 5000, EndMs: 5500}})
		require.NoError(t, err)

		args := runner.lastFFmpeg(t).Args
		assert.Contains(t, argValue(args, "-vf"), "between(t,1.000,2.000)+between(t,5.000,5.500)")
		assert.NotEmpty(t, argValue(args, "-af"))
		assertRootEmpty(t, root)
	})

	t.Run("video only input drops audio", func(t *testing.T) {
		runner := newFakeRunner()
		runner.probeJSON = probeVideoOnly
		o, _ := newTestOrchestrator(t, runner)

		_, err := o.CutOutSegments(context.Background(), []byte("video"), []Segment{{StartMs: 0, EndMs: 100}})
		require.NoError(t, err)
		assert.Contains(t, runner.lastFFmpeg(t).Args, "-an")
	})

	t.Run("validation", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, newFakeRunner())

		_, err := o.CutOutSegments(context.Background(), []byte("video"), nil)
		assert.ErrorIs(t, err, ErrNoSegments)
		_, err = o.CutOutSegments(context.Background(), []byte("video"), []Segment{{StartMs: 300, EndMs: 200}})
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestExtractFrame(t *testing.T) {
	runner := newFakeRunner()
	runner.output = []byte("\x89PNG")
	o, root := newTestOrchestrator(t, runner)

	img, err := o.ExtractFrame(context.Background(), []byte("video"), 1500)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), img)

	args := runner.lastFFmpeg(t).Args
	assert.True(t, strings.HasSuffix(args[len(args)-1], ".png"))
	assertRootEmpty(t, root)

	_, err = o.ExtractFrame(context.Background(), []byte("video"), -1)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestExtractFrameEmptyOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.output = nil
	o, root := newTestOrchestrator(t, runner)

	_, err := o.ExtractFrame(context.Background(), []byte("video"), 0)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assertRootEmpty(t, root)
}

func TestWatermarkFullSize(t *testing.T) {
	runner := newFakeRunner()
	o, root := newTestOrchestrator(t, runner)

	out, err := o.WatermarkFullSize(context.Background(), []byte("video"), []byte("image"))
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded"), out)

	inv := runner.lastFFmpeg(t)
	assert.Contains(t, argValue(inv.Args, "-filter_complex"), "scale2ref")
	var staged []string
	for _, a := range inv.Args {
		if data, ok := runner.inputs[a]; ok {
			staged = append(staged, string(data))
		}
	}
	assert.Equal(t, []string{"video", "image"}, staged)
	assertRootEmpty(t, root)
}

func TestOperationCancelled(t *testing.T) {
	o, root := newTestOrchestrator(t, blockingRunner{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.WatermarkFullSize(ctx, []byte("video"), []byte("image"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ffmpeg.ErrSubprocess)
	assertRootEmpty(t, root)
}

// blockingRunner waits for its context, like a long-running encode.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ ffmpeg.Invocation) (ffmpeg.Output, error) {
	<-ctx.Done()
	return ffmpeg.Output{}, ctx.Err()
}
