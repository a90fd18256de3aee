package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nadzzz/podcastd/internal/tts"
)

// Artifact is a merged podcast waiting to be handed to storage.
type Artifact struct {
	// Name is the collision-resistant file name, e.g. "3f2a...1718000000.mp3".
	Name string

	// Path is the absolute location of the MP3 inside the scratch directory.
	Path string

	dir string
}

// Close removes the artifact and its scratch directory.
func (a *Artifact) Close() error {
	return os.RemoveAll(a.dir)
}

// Merge concatenates clips in order into a single MP3. The concat demuxer
// takes codec parameters from its first input only, so every clip is first
// decoded to 44.1 kHz stereo PCM and the uniform WAVs are joined losslessly.
func (t *Tool) Merge(ctx context.Context, clips []*tts.Clip) (*Artifact, error) {
	if len(clips) == 0 {
		return nil, errors.New("nothing to merge")
	}

	dir, err := os.MkdirTemp(t.workDir, "merge-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.RemoveAll(dir)
		}
	}()

	var list strings.Builder
	for i, c := range clips {
		src := fmt.Sprintf("src_%04d.%s", i, c.Format)
		if err := os.WriteFile(filepath.Join(dir, src), c.Audio, 0o600); err != nil {
			return nil, fmt.Errorf("writing clip %d: %w", i, err)
		}
		name := fmt.Sprintf("clip_%04d.wav", i)
		if _, err := t.run(ctx, dir, t.ffmpeg, "-y", "-loglevel", "error",
			"-i", src,
			"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
			name); err != nil {
			return nil, fmt.Errorf("normalizing clip %d: %w", i, err)
		}
		_ = os.Remove(filepath.Join(dir, src))
		fmt.Fprintf(&list, "file '%s'\n", name)
	}
	if err := os.WriteFile(filepath.Join(dir, "list.txt"), []byte(list.String()), 0o600); err != nil {
		return nil, fmt.Errorf("writing concat list: %w", err)
	}

	if _, err := t.run(ctx, dir, t.ffmpeg, "-y", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", "list.txt",
		"-c", "copy",
		"merged.wav"); err != nil {
		return nil, err
	}

	name := t.artifactName()
	if _, err := t.run(ctx, dir, t.ffmpeg, "-y", "-loglevel", "error",
		"-i", "merged.wav",
		"-vn", "-b:a", t.bitrate, "-acodec", "libmp3lame",
		name); err != nil {
		return nil, err
	}

	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	keep = true
	return &Artifact{Name: name, Path: path, dir: dir}, nil
}
