// Package tts defines the text-to-speech adapter contract and its vendor
// implementations.
//
// Every vendor differs in transport (GET with templated URL, JSON POST,
// msgpack POST, line-delimited JSON stream, raw Wyoming TCP) and in how
// audio comes back (raw bytes, hex, base64, PCM needing a WAV header). The
// Adapter interface hides all of that: text and a voice go in, a playable
// clip comes out.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Audio formats produced by adapters.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Options controls a single synthesis call.
type Options struct {
	// Voice is the vendor voice code.
	Voice string

	// VolumeAdjustment is a gain change in dB applied after synthesis.
	VolumeAdjustment float64

	// SpeedAdjustment is a tempo change in percent applied after synthesis.
	SpeedAdjustment float64
}

// Clip is one synthesized audio blob.
type Clip struct {
	Audio []byte

	// Format is the container of Audio ("wav" or "mp3"); it drives the
	// file extension used by the media tools.
	Format string
}

// Adapter converts text to audio for one vendor.
type Adapter interface {
	// Name returns the provider identifier (e.g. "doubao-tts").
	Name() string

	// Synthesize returns the clip for text spoken with opts.Voice.
	Synthesize(ctx context.Context, text string, opts Options) (*Clip, error)
}

// Effects post-processes a clip with volume and speed adjustments.
// Implementations must return the input unchanged when both are zero.
type Effects interface {
	Apply(ctx context.Context, clip *Clip, volumeDB, speedPct float64) (*Clip, error)
}

// Error classifies an adapter failure.
type Error struct {
	Provider string

	// Retryable is false for failures a retry cannot fix, such as an in-band
	// vendor error code or a rejected request.
	Retryable bool

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err may succeed on another attempt.
// Unclassified errors are treated as transient; cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func transient(provider string, err error) error {
	return &Error{Provider: provider, Retryable: true, Err: err}
}

func terminal(provider string, err error) error {
	return &Error{Provider: provider, Retryable: false, Err: err}
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// withEffects runs the vendor adapter and then the post-processor.
type withEffects struct {
	Adapter
	effects Effects
}

// WithEffects wraps an adapter so every successful clip passes through fx.
func WithEffects(a Adapter, fx Effects) Adapter {
	if fx == nil {
		return a
	}
	return &withEffects{Adapter: a, effects: fx}
}

func (w *withEffects) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	clip, err := w.Adapter.Synthesize(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, transient(w.Name(), errors.New("adapter returned no audio"))
	}
	out, err := w.effects.Apply(ctx, clip, opts.VolumeAdjustment, opts.SpeedAdjustment)
	if err != nil {
		return nil, transient(w.Name(), fmt.Errorf("applying effects: %w", err))
	}
	return out, nil
}
