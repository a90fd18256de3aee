// Package pipeline runs one podcast job end to end.
//
// The runner takes a prepared request through four steps: generate the
// script, synthesize every line, merge the clips into one MP3, then measure
// and store the artifact. Any step failing ends the run; nothing is stored
// for a failed run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nadzzz/podcastd/internal/llm"
	"github.com/nadzzz/podcastd/internal/media"
	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/script"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/synth"
	"github.com/nadzzz/podcastd/internal/tts"
)

// Merger joins clips into an artifact and measures it.
type Merger interface {
	Merge(ctx context.Context, clips []*tts.Clip) (*media.Artifact, error)
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Request is one job's fully resolved input.
type Request struct {
	JobID string

	LLM   llm.Credentials
	Input string

	Speakers []podcast.Speaker

	// Voices is the provider roster the speakers are resolved against.
	Voices []tts.Voice

	// Bindings is indexed by speaker id.
	Bindings []podcast.VoiceBinding

	// Adapter already includes post-processing effects.
	Adapter tts.Adapter

	Threads     int
	MaxAttempts int

	OutputLanguage string
	Duration       string
}

// Runner executes requests.
type Runner struct {
	llm       llm.Factory
	merger    Merger
	trimmer   synth.Trimmer
	store     storage.Store
	baseDelay time.Duration
}

// New creates a Runner. trimmer may be nil.
func New(llmFactory llm.Factory, merger Merger, trimmer synth.Trimmer, store storage.Store, retryBaseDelay time.Duration) *Runner {
	return &Runner{
		llm:       llmFactory,
		merger:    merger,
		trimmer:   trimmer,
		store:     store,
		baseDelay: retryBaseDelay,
	}
}

// Run executes every step for req and returns the stored result.
func (r *Runner) Run(ctx context.Context, req *Request) (*podcast.Result, error) {
	start := time.Now()
	logger := slog.With("job_id", req.JobID, "provider", req.Adapter.Name())
	logger.Info("pipeline started", "speakers", len(req.Speakers), "threads", req.Threads)

	// Step 1: Script.
	completer, err := r.llm(ctx, req.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	out, err := script.New(completer).Generate(ctx, script.Request{
		Input:          req.Input,
		Speakers:       req.Speakers,
		Voices:         req.Voices,
		OutputLanguage: req.OutputLanguage,
		Duration:       req.Duration,
	})
	if err != nil {
		logger.Error("script generation failed", "error", err)
		return nil, fmt.Errorf("script generation: %w", err)
	}
	logger.Info("script ready", "title", out.Title, "lines", len(out.Script.Lines))

	// Step 2: Synthesize.
	syn := synth.New(req.Adapter, r.trimmer, synth.Options{
		Threads:     req.Threads,
		MaxAttempts: req.MaxAttempts,
		BaseDelay:   r.baseDelay,
	}, logger)
	clips, err := syn.Run(ctx, out.Script.Lines, req.Bindings)
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	// Step 3: Merge.
	artifact, err := r.merger.Merge(ctx, clips)
	if err != nil {
		logger.Error("merge failed", "error", err)
		return nil, fmt.Errorf("merge: %w", err)
	}
	defer func() {
		if err := artifact.Close(); err != nil {
			logger.Warn("removing merge scratch failed", "error", err)
		}
	}()
	logger.Info("clips merged", "artifact", artifact.Name, "clips", len(clips))

	// Step 4: Measure and store.
	duration, err := r.merger.Duration(ctx, artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("measuring artifact: %w", err)
	}
	if err := r.put(ctx, artifact); err != nil {
		return nil, err
	}

	logger.Info("pipeline complete", "artifact", artifact.Name, "audio_duration", duration, "duration", time.Since(start))
	return &podcast.Result{
		ArtifactName: artifact.Name,
		Overview:     out.Overview,
		Title:        out.Title,
		Tags:         out.Tags,
		Script:       out.Script,
		Duration:     duration,
	}, nil
}

func (r *Runner) put(ctx context.Context, a *media.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()
	if err := r.store.Put(ctx, a.Name, f); err != nil {
		return fmt.Errorf("storing artifact: %w", err)
	}
	return nil
}
