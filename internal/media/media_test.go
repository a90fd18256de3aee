package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/tts"
)

type call struct {
	dir  string
	name string
	args []string
}

// fakeRunner records commands and lets each test script the outcome.
type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	run   func(c call) (commandResult, error)
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (commandResult, error) {
	c := call{dir: dir, name: name, args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(c)
}

// writeOutput emulates ffmpeg writing its last argument.
func writeOutput(t *testing.T, c call, content string) {
	t.Helper()
	out := c.args[len(c.args)-1]
	if !filepath.IsAbs(out) {
		out = filepath.Join(c.dir, out)
	}
	require.NoError(t, os.WriteFile(out, []byte(content), 0o600))
}

func newTestTool(t *testing.T, r commandRunner) *Tool {
	t.Helper()
	tool, err := newTool(config.MediaConfig{
		FFmpeg:             "ffmpeg",
		FFprobe:            "ffprobe",
		WorkDir:            t.TempDir(),
		SilenceThresholdDB: -60,
		MinSilence:         500 * time.Millisecond,
		Bitrate:            "192k",
	}, r)
	require.NoError(t, err)
	return tool
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func assertWorkDirEmpty(t *testing.T, tool *Tool) {
	t.Helper()
	entries, err := os.ReadDir(tool.WorkDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApply_NoopReturnsInput(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	tool := newTestTool(t, r)

	clip := &tts.Clip{Audio: []byte("original bytes"), Format: tts.FormatMP3}
	out, err := tool.Apply(context.Background(), clip, 0, 0)
	require.NoError(t, err)
	assert.Same(t, clip, out)
	assert.Equal(t, []byte("original bytes"), out.Audio)
	assert.Empty(t, r.calls)
}

func TestApply_VolumeAndSpeed(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	r.run = func(c call) (commandResult, error) {
		writeOutput(t, c, "adjusted")
		return commandResult{}, nil
	}
	tool := newTestTool(t, r)

	out, err := tool.Apply(context.Background(), &tts.Clip{Audio: []byte("raw"), Format: tts.FormatWAV}, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, "adjusted", string(out.Audio))
	assert.Equal(t, tts.FormatWAV, out.Format)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "volume=3dB,atempo=1.1", argAfter(r.calls[0].args, "-filter:a"))
	assertWorkDirEmpty(t, tool)
}

func TestApply_FailureCleansUp(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{run: func(c call) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found"}, errors.New("exit status 1")
	}}
	tool := newTestTool(t, r)

	_, err := tool.Apply(context.Background(), &tts.Clip{Audio: []byte("raw"), Format: tts.FormatMP3}, -2, 0)
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "Invalid data found")
	assertWorkDirEmpty(t, tool)
}

func TestAtempoChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		m    float64
		want []string
	}{
		{1.1, []string{"atempo=1.1"}},
		{0.9, []string{"atempo=0.9"}},
		{3, []string{"atempo=2", "atempo=1.5"}},
		{0.4, []string{"atempo=0.5", "atempo=0.8"}},
	}
	for _, tt := range tests {
		got, err := atempoChain(tt.m)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "multiplier %v", tt.m)
	}

	_, err := atempoChain(0)
	assert.Error(t, err)
}

func TestParseSilence(t *testing.T) {
	t.Parallel()

	stderr := `
[silencedetect @ 0x55] silence_start: 0
[silencedetect @ 0x55] silence_end: 0.512 | silence_duration: 0.512
size=N/A time=00:00:03.00
[silencedetect @ 0x55] silence_start: 2.4301
[silencedetect @ 0x55] silence_end: 3.0 | silence_duration: 0.5699
`
	starts, ends := parseSilence(stderr)
	assert.Equal(t, []float64{0, 2.4301}, starts)
	assert.Equal(t, []float64{0.512, 3.0}, ends)
}

func TestTrimBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		starts, ends []float64
		total        float64
		wantStart    float64
		wantEnd      float64
		wantOK       bool
	}{
		{"no silence", nil, nil, 3, 0, 3, false},
		{"leading and trailing", []float64{0, 2.5}, []float64{0.4, 3}, 3, 0.4, 2.5, true},
		{"leading only", []float64{0}, []float64{0.6}, 3, 0.6, 3, true},
		{"mid clip pause kept", []float64{1.0}, []float64{1.8}, 3, 0, 3, false},
		{"trailing near end", []float64{2.0}, []float64{2.6}, 3, 0, 2.0, true},
		{"all silence", []float64{0}, []float64{3}, 3, 0, 3, false},
	}
	for _, tt := range tests {
		start, end, ok := trimBounds(tt.starts, tt.ends, tt.total, 0.5)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.InDelta(t, tt.wantStart, start, 1e-9, tt.name)
		assert.InDelta(t, tt.wantEnd, end, 1e-9, tt.name)
	}
}

func TestTrimSilence(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	r.run = func(c call) (commandResult, error) {
		switch {
		case c.name == "ffprobe":
			return commandResult{Stdout: "3.000000\n"}, nil
		case argAfter(c.args, "-af") != "":
			return commandResult{Stderr: "silence_start: 0\nsilence_end: 0.5\nsilence_start: 2.5\nsilence_end: 3\n"}, nil
		default:
			writeOutput(t, c, "trimmed")
			return commandResult{}, nil
		}
	}
	tool := newTestTool(t, r)

	out, err := tool.TrimSilence(context.Background(), &tts.Clip{Audio: []byte("raw"), Format: tts.FormatWAV})
	require.NoError(t, err)
	assert.Equal(t, "trimmed", string(out.Audio))
	assert.Equal(t, tts.FormatMP3, out.Format)

	require.Len(t, r.calls, 3)
	assert.Equal(t, "silencedetect=n=-60dB:d=0.5", argAfter(r.calls[0].args, "-af"))
	assert.Equal(t, "0.5", argAfter(r.calls[2].args, "-ss"))
	assert.Equal(t, "2", argAfter(r.calls[2].args, "-t"))
	assertWorkDirEmpty(t, tool)
}

func TestTrimSilence_KeepsClipWithoutEdgeSilence(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{run: func(c call) (commandResult, error) {
		if c.name == "ffprobe" {
			return commandResult{Stdout: "2.0"}, nil
		}
		return commandResult{}, nil
	}}
	tool := newTestTool(t, r)

	clip := &tts.Clip{Audio: []byte("raw"), Format: tts.FormatMP3}
	out, err := tool.TrimSilence(context.Background(), clip)
	require.NoError(t, err)
	assert.Same(t, clip, out)
}

func TestMerge(t *testing.T) {
	t.Parallel()
	var list string
	r := &fakeRunner{}
	r.run = func(c call) (commandResult, error) {
		if argAfter(c.args, "-f") == "concat" {
			b, err := os.ReadFile(filepath.Join(c.dir, "list.txt"))
			require.NoError(t, err)
			list = string(b)
		}
		writeOutput(t, c, "out")
		return commandResult{}, nil
	}
	tool := newTestTool(t, r)
	tool.now = func() time.Time { return time.Unix(1700000000, 0) }

	clips := []*tts.Clip{
		{Audio: []byte("a"), Format: tts.FormatMP3},
		{Audio: []byte("b"), Format: tts.FormatWAV},
		{Audio: []byte("c"), Format: tts.FormatMP3},
	}
	art, err := tool.Merge(context.Background(), clips)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}1700000000\.mp3$`), art.Name)
	assert.Equal(t, "file 'clip_0000.wav'\nfile 'clip_0001.wav'\nfile 'clip_0002.wav'\n", list)
	assert.FileExists(t, art.Path)

	// One normalize pass per clip, then concat, then encode.
	require.Len(t, r.calls, 5)
	for i, c := range clips {
		args := r.calls[i].args
		assert.Equal(t, fmt.Sprintf("src_%04d.%s", i, c.Format), argAfter(args, "-i"))
		assert.Equal(t, "pcm_s16le", argAfter(args, "-acodec"))
		assert.Equal(t, "44100", argAfter(args, "-ar"))
		assert.Equal(t, "2", argAfter(args, "-ac"))
		assert.Equal(t, fmt.Sprintf("clip_%04d.wav", i), args[len(args)-1])
	}
	assert.Equal(t, "copy", argAfter(r.calls[3].args, "-c"))
	assert.Equal(t, "192k", argAfter(r.calls[4].args, "-b:a"))
	assert.Equal(t, "libmp3lame", argAfter(r.calls[4].args, "-acodec"))

	require.NoError(t, art.Close())
	assertWorkDirEmpty(t, tool)
}

func TestMerge_FailureCleansUp(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{run: func(c call) (commandResult, error) {
		return commandResult{Stderr: "concat failed"}, errors.New("exit status 1")
	}}
	tool := newTestTool(t, r)

	_, err := tool.Merge(context.Background(), []*tts.Clip{{Audio: []byte("a"), Format: tts.FormatMP3}})
	require.ErrorIs(t, err, ErrCommandFailed)
	assertWorkDirEmpty(t, tool)

	_, err = tool.Merge(context.Background(), nil)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{run: func(c call) (commandResult, error) {
		return commandResult{Stdout: "12.5\n"}, nil
	}}
	tool := newTestTool(t, r)

	d, err := tool.Duration(context.Background(), "/x.mp3")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, d)

	r.run = func(c call) (commandResult, error) { return commandResult{Stdout: "N/A"}, nil }
	_, err = tool.Duration(context.Background(), "/x.mp3")
	assert.Error(t, err)
}

func requireFFmpeg(t *testing.T) *Tool {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}
	encoders, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil || !strings.Contains(string(encoders), "libmp3lame") {
		t.Skip("ffmpeg built without libmp3lame")
	}

	tool, err := New(config.MediaConfig{FFmpeg: "ffmpeg", FFprobe: "ffprobe", WorkDir: t.TempDir(), SilenceThresholdDB: -60, MinSilence: 500 * time.Millisecond})
	require.NoError(t, err)
	return tool
}

// TestFFmpegRoundTrip exercises the real binaries when they are installed.
func TestFFmpegRoundTrip(t *testing.T) {
	tool := requireFFmpeg(t)

	// 0.1 s of 16-bit mono silence at 24 kHz.
	pcm := make([]byte, 2400*2)
	silent := wavClip(pcm)

	art, err := tool.Merge(context.Background(), []*tts.Clip{silent, silent})
	require.NoError(t, err)
	defer art.Close()

	d, err := tool.Duration(context.Background(), art.Path)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, d.Seconds(), 0.1)
}

func TestFFmpegMergeTrimmedAndUntrimmed(t *testing.T) {
	tool := requireFFmpeg(t)
	ctx := context.Background()

	padded := wavClip(concatPCM(silencePCM(0.8), tonePCM(0.5), silencePCM(0.8)))
	trimmed, err := tool.TrimSilence(ctx, padded)
	require.NoError(t, err)
	require.Equal(t, tts.FormatMP3, trimmed.Format)

	plain := wavClip(tonePCM(0.5))
	untouched, err := tool.TrimSilence(ctx, plain)
	require.NoError(t, err)
	require.Equal(t, tts.FormatWAV, untouched.Format)

	trimmedPath := filepath.Join(t.TempDir(), "trimmed.mp3")
	require.NoError(t, os.WriteFile(trimmedPath, trimmed.Audio, 0o600))
	trimmedLen, err := tool.Duration(ctx, trimmedPath)
	require.NoError(t, err)

	for _, order := range [][]*tts.Clip{{trimmed, untouched}, {untouched, trimmed}} {
		art, err := tool.Merge(ctx, order)
		require.NoError(t, err)

		d, err := tool.Duration(ctx, art.Path)
		require.NoError(t, err)
		assert.InDelta(t, trimmedLen.Seconds()+0.5, d.Seconds(), 0.15)
		require.NoError(t, art.Close())
	}
}

const sampleRate = 24000

func silencePCM(seconds float64) []byte {
	return make([]byte, int(seconds*sampleRate)*2)
}

func tonePCM(seconds float64) []byte {
	n := int(seconds * sampleRate)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/sampleRate))
		putU16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func concatPCM(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func wavClip(pcm []byte) *tts.Clip {
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	putU32(h[4:], uint32(36+len(pcm)))
	copy(h[8:], "WAVEfmt ")
	putU32(h[16:], 16)
	putU16(h[20:], 1)
	putU16(h[22:], 1)
	putU32(h[24:], 24000)
	putU32(h[28:], 48000)
	putU16(h[32:], 2)
	putU16(h[34:], 16)
	copy(h[36:], "data")
	putU32(h[40:], uint32(len(pcm)))
	return &tts.Clip{Audio: append(h, pcm...), Format: tts.FormatWAV}
}

func putU32(b []byte, v uint32) { b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24) }
func putU16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
