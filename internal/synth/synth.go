// Package synth fans dialogue lines out to a TTS adapter with bounded
// parallelism and reassembles the clips in script order.
//
// Each line moves through queued → synthesizing → trimming → done, or ends
// in failed. A line that fails terminally (non-retryable error, or retries
// exhausted) cancels every line that has not started yet; lines already in
// flight finish but their clips are discarded.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/tts"
)

var (
	// ErrCountMismatch is returned when fewer clips than lines were produced.
	ErrCountMismatch = errors.New("clip count does not match line count")

	// ErrMissingVoice is returned when a line refers to a speaker with no voice binding.
	ErrMissingVoice = errors.New("no voice bound to speaker")

	errNoAudio = errors.New("adapter returned no audio")
)

// Trimmer removes leading and trailing silence from a clip.
type Trimmer interface {
	TrimSilence(ctx context.Context, clip *tts.Clip) (*tts.Clip, error)
}

// Options tunes the fan-out.
type Options struct {
	// Threads bounds the number of lines synthesized at once.
	Threads int

	// MaxAttempts is the total number of tries per line, first call included.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles each retry.
	BaseDelay time.Duration
}

// LineError reports the line that voided the run.
type LineError struct {
	Index    int
	Speaker  int
	Attempts int
	Err      error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (speaker %d) failed after %d attempt(s): %v", e.Index, e.Speaker, e.Attempts, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Synthesizer runs one job's lines through an adapter.
type Synthesizer struct {
	adapter tts.Adapter
	trimmer Trimmer
	opts    Options
	logger  *slog.Logger
}

// New creates a Synthesizer. trimmer may be nil to keep clips untrimmed.
func New(adapter tts.Adapter, trimmer Trimmer, opts Options, logger *slog.Logger) *Synthesizer {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{adapter: adapter, trimmer: trimmer, opts: opts, logger: logger}
}

// Run synthesizes every line and returns the clips indexed like lines.
// voices is indexed by speaker id.
func (s *Synthesizer) Run(ctx context.Context, lines []podcast.DialogueLine, voices []podcast.VoiceBinding) ([]*tts.Clip, error) {
	for i, line := range lines {
		if line.SpeakerID < 0 || line.SpeakerID >= len(voices) || voices[line.SpeakerID].Code == "" {
			return nil, fmt.Errorf("%w: line %d speaker_id=%d", ErrMissingVoice, i, line.SpeakerID)
		}
	}

	start := time.Now()
	clips := make([]*tts.Clip, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Threads)

	for i, line := range lines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Sibling failure between scheduling and start.
			if err := gctx.Err(); err != nil {
				return err
			}
			clip, err := s.line(gctx, i, line, voices[line.SpeakerID])
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Prefer the line failure over the cancellations it caused.
		if ctx.Err() == nil || errors.As(err, new(*LineError)) {
			return nil, err
		}
		return nil, ctx.Err()
	}

	produced := 0
	for _, c := range clips {
		if c != nil {
			produced++
		}
	}
	if produced != len(lines) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrCountMismatch, len(lines), produced)
	}

	s.logger.Info("lines synthesized", "lines", len(lines), "threads", s.opts.Threads, "duration", time.Since(start))
	return clips, nil
}

func (s *Synthesizer) line(ctx context.Context, idx int, line podcast.DialogueLine, voice podcast.VoiceBinding) (*tts.Clip, error) {
	logger := s.logger.With("line", idx, "speaker", line.SpeakerID, "voice", voice.Code)
	opts := tts.Options{
		Voice:            voice.Code,
		VolumeAdjustment: voice.VolumeAdjustment,
		SpeedAdjustment:  voice.SpeedAdjustment,
	}

	var clip *tts.Clip
	var err error
	attempt := 0
	for attempt < s.opts.MaxAttempts {
		attempt++
		logger.Debug("synthesizing", "attempt", attempt)
		clip, err = s.adapter.Synthesize(ctx, line.Dialog, opts)
		if err == nil && clip == nil {
			err = errNoAudio
		}
		if err == nil {
			break
		}
		if !tts.IsRetryable(err) || attempt == s.opts.MaxAttempts {
			logger.Error("line failed", "attempt", attempt, "error", err)
			return nil, &LineError{Index: idx, Speaker: line.SpeakerID, Attempts: attempt, Err: err}
		}

		delay := s.opts.BaseDelay << (attempt - 1)
		logger.Warn("synthesis attempt failed, retrying", "attempt", attempt, "max_attempts", s.opts.MaxAttempts, "retry_in", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	if s.trimmer != nil {
		logger.Debug("trimming")
		trimmed, err := s.trimmer.TrimSilence(ctx, clip)
		if err != nil {
			logger.Error("trim failed", "error", err)
			return nil, &LineError{Index: idx, Speaker: line.SpeakerID, Attempts: attempt, Err: fmt.Errorf("trimming silence: %w", err)}
		}
		clip = trimmed
	}
	logger.Debug("line done", "bytes", len(clipAudio(clip)))
	return clip, nil
}

func clipAudio(c *tts.Clip) []byte {
	if c == nil {
		return nil
	}
	return c.Audio
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
