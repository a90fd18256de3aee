package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/nadzzz/podcastd/internal/tts"
)

// minTrimmed is the shortest clip a trim may leave; anything shorter keeps the original.
const minTrimmed = 0.01

var (
	silenceStartRe = regexp.MustCompile(`silence_start: (-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end: (-?\d+(?:\.\d+)?)`)
)

// TrimSilence removes leading and trailing silence from clip. Silence is only
// cut where it touches the very start or end of the clip; pauses inside the
// clip are kept. The trimmed clip is MP3.
func (t *Tool) TrimSilence(ctx context.Context, clip *tts.Clip) (*tts.Clip, error) {
	dir, cleanup, err := t.scratch("trim-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	in := "in." + clip.Format
	inPath := filepath.Join(dir, in)
	if err := os.WriteFile(inPath, clip.Audio, 0o600); err != nil {
		return nil, fmt.Errorf("writing clip: %w", err)
	}

	detect := fmt.Sprintf("silencedetect=n=%sdB:d=%s", formatFloat(t.thresholdDB), formatFloat(t.minSilence.Seconds()))
	res, err := t.run(ctx, dir, t.ffmpeg, "-i", in, "-af", detect, "-f", "null", "-")
	if err != nil {
		return nil, err
	}
	starts, ends := parseSilence(res.Stderr)

	total, err := t.Duration(ctx, inPath)
	if err != nil {
		slog.Warn("clip duration unknown, skipping silence trim", "error", err)
		return clip, nil
	}

	start, end, ok := trimBounds(starts, ends, total.Seconds(), t.minSilence.Seconds())
	if !ok {
		return clip, nil
	}

	out := "out.mp3"
	if _, err := t.run(ctx, dir, t.ffmpeg, "-y", "-loglevel", "error",
		"-ss", formatFloat(start),
		"-i", in,
		"-t", formatFloat(end-start),
		"-avoid_negative_ts", "auto",
		"-c:a", "libmp3lame",
		"-q:a", "2",
		out); err != nil {
		return nil, err
	}
	audio, err := os.ReadFile(filepath.Join(dir, out))
	if err != nil {
		return nil, fmt.Errorf("reading trimmed clip: %w", err)
	}
	return &tts.Clip{Audio: audio, Format: tts.FormatMP3}, nil
}

// parseSilence extracts silencedetect markers from ffmpeg's stderr.
func parseSilence(stderr string) (starts, ends []float64) {
	for _, m := range silenceStartRe.FindAllStringSubmatch(stderr, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			starts = append(starts, v)
		}
	}
	for _, m := range silenceEndRe.FindAllStringSubmatch(stderr, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ends = append(ends, v)
		}
	}
	return starts, ends
}

// trimBounds decides the kept [start, end) window. ok is false when nothing
// should be cut or the cut would leave (almost) nothing.
func trimBounds(starts, ends []float64, total, minSilence float64) (start, end float64, ok bool) {
	end = total
	if len(starts) == 0 || len(ends) == 0 {
		return 0, total, false
	}
	if starts[0] <= 0 {
		start = ends[0]
	}
	if ends[len(ends)-1] >= total-minSilence {
		end = starts[len(starts)-1]
	}
	if end-start <= minTrimmed {
		return 0, total, false
	}
	if start == 0 && end == total {
		return 0, total, false
	}
	return start, end, true
}
