// Package jobs owns the lifecycle of podcast generation jobs.
//
// A client (identified by its auth id) may have at most one pending or
// running job. Submit validates the request, registers the job and returns
// at once; the pipeline runs on its own goroutine, which is the only writer
// of the job's status after creation. Jobs and their artifacts are purged
// once the retention window since creation has passed.
package jobs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/podcastd/internal/avatar"
	"github.com/nadzzz/podcastd/internal/llm"
	"github.com/nadzzz/podcastd/internal/pipeline"
	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/tts"
)

var (
	// ErrJobConflict is returned when the client already has an active job.
	ErrJobConflict = errors.New("client already has a job in progress")

	// ErrInvalidRequest is returned when a submission cannot be turned into a job.
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrJobNotFound is returned when no job matches a lookup.
	ErrJobNotFound = errors.New("job not found")
)

// Runner executes one prepared job.
type Runner interface {
	Run(ctx context.Context, req *pipeline.Request) (*podcast.Result, error)
}

// Params is what a client submits.
type Params struct {
	LLM   llm.Credentials
	Input string

	// Provider selects the TTS vendor.
	Provider string

	// Credentials is the JSON credentials blob; empty falls back to the
	// service-wide providers file.
	Credentials string

	Speakers []podcast.Speaker
	Threads  int

	CallbackURL    string
	OutputLanguage string
	Duration       string
}

// Options configures an Orchestrator.
type Options struct {
	ProviderDir string

	// DefaultCredentials is used when a submission carries no credentials blob.
	DefaultCredentials []byte

	Settings tts.Settings

	// MaxAttempts is the per-line attempt budget unless the provider sets its own.
	MaxAttempts int

	DefaultThreads int
	MaxThreads     int

	Retention time.Duration
}

type job struct {
	id          string
	clientID    string
	created     time.Time
	callbackURL string
	speakers    []podcast.Speaker

	mu     sync.Mutex
	status podcast.Status
	result *podcast.Result
	avatar string
	err    string
	purged bool
}

func (j *job) snapshot() podcast.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := podcast.Snapshot{
		TaskID:    j.id,
		Status:    j.status,
		PodUsers:  append([]podcast.Speaker(nil), j.speakers...),
		Error:     j.err,
		Timestamp: j.created.Unix(),
	}
	if r := j.result; r != nil {
		script := r.Script
		s.ArtifactName = r.ArtifactName
		s.Overview = r.Overview
		s.Script = &script
		s.AvatarBase64 = j.avatar
		s.Duration = podcast.FormatDuration(r.Duration)
		s.Title = r.Title
		s.Tags = r.Tags
	}
	return s
}

// Orchestrator admits, runs, tracks and expires jobs.
type Orchestrator struct {
	runner   Runner
	registry *tts.Registry
	effects  tts.Effects
	store    storage.Store
	notifier *Notifier
	events   *EventBus
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu        sync.RWMutex
	byClient  map[string]map[string]*job
	artifacts map[string]*job // artifact name without extension
}

// New creates an Orchestrator. effects may be nil; notifier may be nil to
// disable callbacks.
func New(runner Runner, registry *tts.Registry, effects tts.Effects, store storage.Store, notifier *Notifier, opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.DefaultThreads < 1 {
		opts.DefaultThreads = 1
	}
	if opts.MaxThreads < opts.DefaultThreads {
		opts.MaxThreads = opts.DefaultThreads
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		runner:    runner,
		registry:  registry,
		effects:   effects,
		store:     store,
		notifier:  notifier,
		events:    NewEventBus(),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		byClient:  make(map[string]map[string]*job),
		artifacts: make(map[string]*job),
	}
}

// Submit validates p, registers a pending job for clientID and starts it in
// the background. It returns the job id without waiting for the pipeline.
func (o *Orchestrator) Submit(ctx context.Context, clientID string, p Params) (string, error) {
	if strings.TrimSpace(clientID) == "" {
		return "", fmt.Errorf("%w: missing client id", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req, err := o.prepare(p)
	if err != nil {
		return "", err
	}

	j := &job{
		id:          uuid.NewString(),
		clientID:    clientID,
		created:     o.now(),
		callbackURL: p.CallbackURL,
		speakers:    append([]podcast.Speaker(nil), p.Speakers...),
		status:      podcast.StatusPending,
	}
	req.JobID = j.id

	if err := o.admit(j); err != nil {
		return "", err
	}
	o.publish(j)
	slog.Info("job accepted", "job_id", j.id, "client_id", clientID, "provider", p.Provider, "threads", req.Threads)

	o.wg.Add(1)
	go o.run(j, req)
	return j.id, nil
}

// admit checks for an active job and inserts j under one lock.
func (o *Orchestrator) admit(j *job) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, other := range o.byClient[j.clientID] {
		other.mu.Lock()
		active := other.status.Active()
		other.mu.Unlock()
		if active {
			return fmt.Errorf("%w: %s", ErrJobConflict, other.id)
		}
	}
	if o.byClient[j.clientID] == nil {
		o.byClient[j.clientID] = make(map[string]*job)
	}
	o.byClient[j.clientID][j.id] = j
	return nil
}

func (o *Orchestrator) prepare(p Params) (*pipeline.Request, error) {
	if !o.registry.Has(p.Provider) {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, tts.ErrUnknownProvider, p.Provider)
	}
	if strings.TrimSpace(p.Input) == "" {
		return nil, fmt.Errorf("%w: empty input text", ErrInvalidRequest)
	}
	if len(p.Speakers) == 0 {
		return nil, fmt.Errorf("%w: no speakers", ErrInvalidRequest)
	}

	cfg, err := tts.LoadProviderConfig(o.opts.ProviderDir, p.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	blob := []byte(p.Credentials)
	if strings.TrimSpace(p.Credentials) == "" {
		blob = o.opts.DefaultCredentials
	}
	creds, err := tts.ParseCredentials(blob, p.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	adapter, err := o.registry.New(p.Provider, cfg, creds, o.opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	bindings := make([]podcast.VoiceBinding, len(p.Speakers))
	for i, sp := range p.Speakers {
		v, ok := cfg.Voice(sp.Code)
		if !ok {
			return nil, fmt.Errorf("%w: speaker %d voice %q is not offered by %s", ErrInvalidRequest, i, sp.Code, p.Provider)
		}
		bindings[i] = podcast.VoiceBinding{
			Code:             v.Code,
			VolumeAdjustment: v.VolumeAdjustment,
			SpeedAdjustment:  v.SpeedAdjustment,
		}
	}

	attempts := o.opts.MaxAttempts
	if cfg.MaxRetries > 0 {
		attempts = cfg.MaxRetries
	}

	return &pipeline.Request{
		LLM:            p.LLM,
		Input:          p.Input,
		Speakers:       p.Speakers,
		Voices:         cfg.Voices,
		Bindings:       bindings,
		Adapter:        tts.WithEffects(adapter, o.effects),
		Threads:        o.threads(p.Threads),
		MaxAttempts:    attempts,
		OutputLanguage: p.OutputLanguage,
		Duration:       p.Duration,
	}, nil
}

func (o *Orchestrator) threads(n int) int {
	switch {
	case n < 1:
		return o.opts.DefaultThreads
	case n > o.opts.MaxThreads:
		return o.opts.MaxThreads
	default:
		return n
	}
}

func (o *Orchestrator) run(j *job, req *pipeline.Request) {
	defer o.wg.Done()
	logger := slog.With("job_id", j.id, "client_id", j.clientID)

	o.transition(j, podcast.StatusRunning, nil, "")

	res, err := o.runner.Run(o.ctx, req)
	if err != nil {
		logger.Error("job failed", "error", err)
		o.transition(j, podcast.StatusFailed, nil, err.Error())
	} else {
		img, aerr := avatar.PNG(j.id)
		if aerr != nil {
			logger.Warn("avatar generation failed", "error", aerr)
		}
		if o.complete(j, res, base64.StdEncoding.EncodeToString(img)) {
			// Expired while running.
			o.deleteArtifact(res.ArtifactName)
		}
		o.publish(j)
		logger.Info("job completed", "artifact", res.ArtifactName, "title", res.Title)
	}

	if j.callbackURL != "" && o.notifier != nil {
		snap := j.snapshot()
		err := o.notifier.Notify(o.ctx, j.callbackURL, CallbackPayload{
			TaskID:    j.id,
			AuthID:    j.clientID,
			Results:   snap,
			Timestamp: o.now().Unix(),
			Status:    snap.Status,
		})
		if err != nil {
			logger.Error("callback abandoned", "error", err)
		}
	}
}

// complete records res and indexes its artifact in the same critical section
// as the purged check, so a concurrent purge either sees the result or leaves
// the artifact to the caller. It reports whether the caller must delete it.
func (o *Orchestrator) complete(j *job, res *podcast.Result, avatar string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = podcast.StatusCompleted
	j.result = res
	j.avatar = avatar
	j.err = ""
	if j.purged {
		return true
	}
	o.artifacts[artifactKey(res.ArtifactName)] = j
	return false
}

func (o *Orchestrator) transition(j *job, status podcast.Status, res *podcast.Result, errMsg string) {
	j.mu.Lock()
	j.status = status
	if res != nil {
		j.result = res
	}
	j.err = errMsg
	j.mu.Unlock()
	o.publish(j)
}

func (o *Orchestrator) publish(j *job) {
	j.mu.Lock()
	ev := Event{JobID: j.id, ClientID: j.clientID, Status: j.status, Error: j.err}
	j.mu.Unlock()
	o.events.Publish(ev)
}

// Status returns every unexpired job of clientID, oldest first.
func (o *Orchestrator) Status(clientID string) []podcast.Snapshot {
	o.purge(o.now(), clientID)

	o.mu.RLock()
	jobs := make([]*job, 0, len(o.byClient[clientID]))
	for _, j := range o.byClient[clientID] {
		jobs = append(jobs, j)
	}
	o.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].created.Equal(jobs[b].created) {
			return jobs[a].id < jobs[b].id
		}
		return jobs[a].created.Before(jobs[b].created)
	})
	out := make([]podcast.Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.snapshot()
	}
	return out
}

// ByArtifact returns the snapshot of the job that produced name. The file
// extension is optional.
func (o *Orchestrator) ByArtifact(name string) (podcast.Snapshot, error) {
	o.mu.RLock()
	j, ok := o.artifacts[artifactKey(name)]
	o.mu.RUnlock()
	if !ok || o.expired(j, o.now()) {
		return podcast.Snapshot{}, fmt.Errorf("%w: artifact %s", ErrJobNotFound, name)
	}
	return j.snapshot(), nil
}

// Subscribe delivers clientID's job transitions until the returned function is called.
func (o *Orchestrator) Subscribe(clientID string) (<-chan Event, func()) {
	return o.events.Subscribe(clientID)
}

// Sweep purges expired jobs with their artifacts, then deletes stored
// artifacts no live job refers to once they are older than the retention window.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	now := o.now()
	removed := o.purge(now, "")

	infos, err := o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing artifacts: %w", err)
	}
	orphans := 0
	for _, info := range infos {
		if now.Sub(info.ModTime) <= o.opts.Retention {
			continue
		}
		o.mu.RLock()
		_, live := o.artifacts[artifactKey(info.Name)]
		o.mu.RUnlock()
		if live {
			continue
		}
		if err := o.store.Delete(ctx, info.Name); err != nil {
			slog.Warn("deleting orphan artifact failed", "artifact", info.Name, "error", err)
			continue
		}
		orphans++
	}
	if removed > 0 || orphans > 0 {
		slog.Info("retention sweep", "jobs_removed", removed, "orphans_removed", orphans)
	}
	return nil
}

// SweepScratch removes leftover scratch entries older than the retention
// window from dir (the media work directory).
func (o *Orchestrator) SweepScratch(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("reading work dir failed", "dir", dir, "error", err)
		return
	}
	now := o.now()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) <= o.opts.Retention {
			continue
		}
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			// Regular files may be stored artifacts when the local store shares the directory.
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			slog.Warn("removing stale scratch failed", "path", e.Name(), "error", err)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration, workDir string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Sweep(ctx); err != nil {
				slog.Error("retention sweep failed", "error", err)
			}
			if workDir != "" {
				o.SweepScratch(workDir)
			}
		}
	}
}

// Shutdown cancels running jobs and waits for their goroutines, or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// purge removes expired jobs, for one client or for all when clientID is empty.
func (o *Orchestrator) purge(now time.Time, clientID string) int {
	var expired []*job
	var names []string

	o.mu.Lock()
	for cid, jobs := range o.byClient {
		if clientID != "" && cid != clientID {
			continue
		}
		for id, j := range jobs {
			if !o.expired(j, now) {
				continue
			}
			delete(jobs, id)
			expired = append(expired, j)

			j.mu.Lock()
			j.purged = true
			if j.result != nil {
				names = append(names, j.result.ArtifactName)
				delete(o.artifacts, artifactKey(j.result.ArtifactName))
			}
			j.mu.Unlock()
		}
		if len(jobs) == 0 {
			delete(o.byClient, cid)
		}
	}
	o.mu.Unlock()

	for _, name := range names {
		o.deleteArtifact(name)
	}
	for _, j := range expired {
		slog.Info("job expired", "job_id", j.id, "client_id", j.clientID)
	}
	return len(expired)
}

func (o *Orchestrator) expired(j *job, now time.Time) bool {
	return now.Sub(j.created) > o.opts.Retention
}

func (o *Orchestrator) deleteArtifact(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.store.Delete(ctx, name); err != nil {
		slog.Warn("deleting expired artifact failed", "artifact", name, "error", err)
	}
}

func artifactKey(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
