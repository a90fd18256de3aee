package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/podcastd/internal/llm"
	"github.com/nadzzz/podcastd/internal/media"
	"github.com/nadzzz/podcastd/internal/podcast"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/tts"
)

const scriptReply = `Here it is:
{"dialogue_lines":[
 {"speaker_id":0,"dialog":"one"},{"speaker_id":1,"dialog":"two"},
 {"speaker_id":0,"dialog":"three"},{"speaker_id":1,"dialog":"four"},
 {"speaker_id":0,"dialog":"five"},{"speaker_id":1,"dialog":"six"}]}`

type cannedLLM struct{ replies []string }

func (c *cannedLLM) Complete(context.Context, string, string) (string, error) {
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func llmFactory(replies ...string) llm.Factory {
	return func(context.Context, llm.Credentials) (llm.Completer, error) {
		return &cannedLLM{replies: replies}, nil
	}
}

// jitterAdapter echoes the line as audio after a random delay.
type jitterAdapter struct {
	failOn string
	calls  atomic.Int32
}

func (a *jitterAdapter) Name() string { return "jitter" }

func (a *jitterAdapter) Synthesize(ctx context.Context, text string, _ tts.Options) (*tts.Clip, error) {
	a.calls.Add(1)
	if text == a.failOn {
		return nil, &tts.Error{Provider: "jitter", Err: errors.New("voice rejected")}
	}
	select {
	case <-time.After(time.Duration(rand.IntN(10)) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &tts.Clip{Audio: []byte(text + "|"), Format: tts.FormatMP3}, nil
}

// catMerger concatenates clip bytes and reports 100ms per clip.
type catMerger struct {
	dir    string
	merged atomic.Int32
	clips  int
}

func (m *catMerger) Merge(_ context.Context, clips []*tts.Clip) (*media.Artifact, error) {
	m.merged.Add(1)
	m.clips = len(clips)
	var buf bytes.Buffer
	for _, c := range clips {
		buf.Write(c.Audio)
	}
	path := filepath.Join(m.dir, "cat.mp3")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return &media.Artifact{Name: "cat.mp3", Path: path}, nil
}

func (m *catMerger) Duration(context.Context, string) (time.Duration, error) {
	return time.Duration(m.clips) * 100 * time.Millisecond, nil
}

func newRequest(adapter tts.Adapter) *Request {
	return &Request{
		JobID:       "job-1",
		Input:       "topic X",
		Speakers:    []podcast.Speaker{{Code: "v1"}, {Code: "v2"}},
		Voices:      []tts.Voice{{Code: "v1", Name: "Ann"}, {Code: "v2", Name: "Bob"}},
		Bindings:    []podcast.VoiceBinding{{Code: "v1"}, {Code: "v2"}},
		Adapter:     adapter,
		Threads:     4,
		MaxAttempts: 2,
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	merger := &catMerger{dir: t.TempDir()}
	r := New(llmFactory("Title\nTagA,TagB\nOverview body", scriptReply), merger, nil, store, time.Millisecond)

	res, err := r.Run(context.Background(), newRequest(&jitterAdapter{}))
	require.NoError(t, err)

	assert.Equal(t, "cat.mp3", res.ArtifactName)
	assert.Equal(t, "Title", res.Title)
	assert.Equal(t, "TagA,TagB", res.Tags)
	assert.Equal(t, "Overview body", res.Overview)
	assert.Len(t, res.Script.Lines, 6)
	assert.Equal(t, 600*time.Millisecond, res.Duration)

	rc, _, err := store.Open(context.Background(), "cat.mp3")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "one|two|three|four|five|six|", string(data))
}

func TestRun_LineFailureSkipsMerge(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	merger := &catMerger{dir: t.TempDir()}
	r := New(llmFactory("T\nx\nbody", scriptReply), merger, nil, store, time.Millisecond)

	_, err = r.Run(context.Background(), newRequest(&jitterAdapter{failOn: "four"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice rejected")
	assert.Zero(t, merger.merged.Load())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_ScriptFailure(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	adapter := &jitterAdapter{}
	r := New(llmFactory("T\nx\nbody", "no json here"), &catMerger{dir: t.TempDir()}, nil, store, time.Millisecond)

	_, err = r.Run(context.Background(), newRequest(adapter))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script generation")
	assert.Zero(t, adapter.calls.Load())
}

func TestRun_LLMFactoryError(t *testing.T) {
	t.Parallel()

	bad := func(context.Context, llm.Credentials) (llm.Completer, error) {
		return nil, errors.New("llm api key is required")
	}
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	r := New(bad, &catMerger{dir: t.TempDir()}, nil, store, 0)

	_, err = r.Run(context.Background(), newRequest(&jitterAdapter{}))
	assert.ErrorContains(t, err, "api key")
}
