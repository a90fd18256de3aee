// Package media wraps ffmpeg and ffprobe for clip post-processing and for
// merging a podcast's clips into one MP3 artifact.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/tts"
)

var (
	// ErrFFmpegNotFound is returned when ffmpeg or ffprobe is not installed.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

	// ErrCommandFailed is returned when an ffmpeg or ffprobe invocation fails.
	ErrCommandFailed = errors.New("media command failed")
)

// commandResult is the captured output of one process.
type commandResult struct {
	Stdout string
	Stderr string
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return commandResult{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

// Tool runs media commands inside a working directory.
type Tool struct {
	ffmpeg      string
	ffprobe     string
	workDir     string
	bitrate     string
	thresholdDB float64
	minSilence  time.Duration

	runner commandRunner
	now    func() time.Time
}

// New resolves the ffmpeg and ffprobe binaries and prepares the working directory.
func New(cfg config.MediaConfig) (*Tool, error) {
	ffmpeg, err := exec.LookPath(cfg.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, cfg.FFmpeg)
	}
	ffprobe, err := exec.LookPath(cfg.FFprobe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, cfg.FFprobe)
	}
	cfg.FFmpeg, cfg.FFprobe = ffmpeg, ffprobe
	return newTool(cfg, execRunner{})
}

func newTool(cfg config.MediaConfig, r commandRunner) (*Tool, error) {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	bitrate := cfg.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	minSilence := cfg.MinSilence
	if minSilence <= 0 {
		minSilence = 500 * time.Millisecond
	}
	return &Tool{
		ffmpeg:      cfg.FFmpeg,
		ffprobe:     cfg.FFprobe,
		workDir:     cfg.WorkDir,
		bitrate:     bitrate,
		thresholdDB: cfg.SilenceThresholdDB,
		minSilence:  minSilence,
		runner:      r,
		now:         time.Now,
	}, nil
}

// WorkDir returns the directory scratch files are created in.
func (t *Tool) WorkDir() string { return t.workDir }

func (t *Tool) run(ctx context.Context, dir, name string, args ...string) (commandResult, error) {
	res, err := t.runner.Run(ctx, dir, name, args...)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, filepath.Base(name), err, tail(res.Stderr, 512))
	}
	return res, nil
}

// scratch creates a private directory for one operation.
func (t *Tool) scratch(pattern string) (string, func(), error) {
	dir, err := os.MkdirTemp(t.workDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("removing scratch dir", "dir", dir, "error", err)
		}
	}, nil
}

// Apply shifts volume by volumeDB and tempo by speedPct percent. Both zero
// returns clip itself.
func (t *Tool) Apply(ctx context.Context, clip *tts.Clip, volumeDB, speedPct float64) (*tts.Clip, error) {
	if volumeDB == 0 && speedPct == 0 {
		return clip, nil
	}

	var filters []string
	if volumeDB != 0 {
		filters = append(filters, "volume="+formatFloat(volumeDB)+"dB")
	}
	if speedPct != 0 {
		chain, err := atempoChain(1 + speedPct/100)
		if err != nil {
			return nil, err
		}
		filters = append(filters, chain...)
	}

	dir, cleanup, err := t.scratch("fx-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	in := "in." + clip.Format
	out := "out." + clip.Format
	if err := os.WriteFile(filepath.Join(dir, in), clip.Audio, 0o600); err != nil {
		return nil, fmt.Errorf("writing clip: %w", err)
	}
	if _, err := t.run(ctx, dir, t.ffmpeg, "-y", "-loglevel", "error", "-i", in, "-filter:a", strings.Join(filters, ","), out); err != nil {
		return nil, err
	}
	audio, err := os.ReadFile(filepath.Join(dir, out))
	if err != nil {
		return nil, fmt.Errorf("reading adjusted clip: %w", err)
	}
	return &tts.Clip{Audio: audio, Format: clip.Format}, nil
}

// atempoChain splits a tempo multiplier into atempo stages, each within
// ffmpeg's accepted 0.5..2.0 range, so pitch is preserved.
func atempoChain(m float64) ([]string, error) {
	if m <= 0 {
		return nil, fmt.Errorf("speed multiplier %.2f out of range", m)
	}
	var chain []string
	for m > 2 {
		chain = append(chain, "atempo=2")
		m /= 2
	}
	for m < 0.5 {
		chain = append(chain, "atempo=0.5")
		m /= 0.5
	}
	return append(chain, "atempo="+formatFloat(m)), nil
}

// Duration probes the length of the audio file at path.
func (t *Tool) Duration(ctx context.Context, path string) (time.Duration, error) {
	res, err := t.run(ctx, "", t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", strings.TrimSpace(res.Stdout), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// artifactName is a dash-less UUID followed by the unix time.
func (t *Tool) artifactName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strconv.FormatInt(t.now().Unix(), 10) + ".mp3"
}
