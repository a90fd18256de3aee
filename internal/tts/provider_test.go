package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadProviderConfig_JSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "fish-audio.json", `{
		"apiUrl": "https://api.fish.audio/v1/tts",
		"headers": {"Authorization": "Bearer {{api_key}}"},
		"request_payload": {"format": "mp3", "chunk_length": 200, "temperature": 0.7},
		"tts_max_retries": 5,
		"voices": [
			{"code": "ref-1", "name": "Ann", "alias": "Annie", "volume_adjustment": 2.5, "locale": "en-US"},
			{"code": "ref-2", "name": "Bob", "usedname": "Robert"}
		]
	}`)

	cfg, err := LoadProviderConfig(dir, "fish-audio")
	require.NoError(t, err)
	assert.Equal(t, "https://api.fish.audio/v1/tts", cfg.APIURL)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, int64(200), cfg.RequestPayload["chunk_length"])
	assert.Equal(t, 0.7, cfg.RequestPayload["temperature"])
	require.Len(t, cfg.Voices, 2)

	v, ok := cfg.Voice("ref-1")
	require.True(t, ok)
	assert.Equal(t, 2.5, v.VolumeAdjustment)
	assert.Equal(t, "Annie", v.DisplayName())

	v, ok = cfg.Voice("ref-2")
	require.True(t, ok)
	assert.Equal(t, "Robert", v.DisplayName())

	_, ok = cfg.Voice("ref-9")
	assert.False(t, ok)

	assert.Equal(t, "en-US", cfg.RawVoices[0]["locale"])
}

func TestLoadProviderConfig_TOMLFallback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "minimax.toml", `
apiUrl = "https://api.minimax.chat/v1/t2a_v2?GroupId={{group_id}}"

[request_payload]
model = "speech-01"
output_format = "hex"

[request_payload.voice_setting]
speed = 1.0

[[voices]]
code = "male-qn-qingse"
name = "Qing"
`)

	cfg, err := LoadProviderConfig(dir, "minimax")
	require.NoError(t, err)
	assert.Equal(t, "hex", cfg.RequestPayload["output_format"])
	require.Len(t, cfg.Voices, 1)
	assert.Equal(t, "male-qn-qingse", cfg.Voices[0].Code)
}

func TestLoadProviderConfig_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"apiUrl":`)

	_, err := LoadProviderConfig(dir, "missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = LoadProviderConfig(dir, "broken")
	assert.ErrorIs(t, err, ErrMalformedConfig)

	_, err = LoadProviderConfig(dir, "../etc/passwd")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadVoices(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "edge-tts.json", `{"apiUrl":"x","voices":[{"code":"a","gender":"f"}]}`)
	writeFile(t, dir, "empty.json", `{"apiUrl":"x"}`)

	voices, err := LoadVoices(dir, "edge-tts")
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "f", voices[0]["gender"])

	_, err = LoadVoices(dir, "empty")
	assert.ErrorIs(t, err, ErrNoVoices)
}

func TestParseCredentials(t *testing.T) {
	t.Parallel()

	blob := []byte(`{"doubao":{"X-Api-App-Id":"123","X-Api-Access-Key":"abc"},"minimax":{"group_id":42,"api_key":"k"}}`)

	creds, err := ParseCredentials(blob, ProviderDoubaoTTS)
	require.NoError(t, err)
	assert.Equal(t, Credentials{"X-Api-App-Id": "123", "X-Api-Access-Key": "abc"}, creds)

	creds, err = ParseCredentials(blob, ProviderMinimax)
	require.NoError(t, err)
	assert.Equal(t, "42", creds["group_id"])

	creds, err = ParseCredentials(nil, ProviderMinimax)
	require.NoError(t, err)
	assert.Empty(t, creds)

	_, err = ParseCredentials([]byte("not json"), ProviderMinimax)
	assert.Error(t, err)
}

func TestCredentials_Expand(t *testing.T) {
	t.Parallel()

	c := Credentials{"api_key": "k", "group_id": "g"}
	assert.Equal(t, "Bearer k", c.expand("Bearer {{api_key}}"))
	assert.Equal(t, "/x?g=g&k=k", c.expand("/x?g={{group_id}}&k={{api_key}}"))
	assert.Equal(t, "plain", c.expand("plain"))
}

func TestSetPath(t *testing.T) {
	t.Parallel()

	root := map[string]any{"list": []any{map[string]any{}}}
	require.NoError(t, setPath(root, "v", "a", "b"))
	require.NoError(t, setPath(root, 1, "list", 0, "n"))
	assert.Equal(t, "v", getString(root, "a", "b"))
	assert.Equal(t, 1, root["list"].([]any)[0].(map[string]any)["n"])

	assert.Error(t, setPath(root, "x", "list", 3))
	assert.Error(t, setPath(root, "x", "missing", 0))
	assert.Error(t, setPath(root, "x"))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	assert.Equal(t, []string{"doubao-tts", "edge-tts", "fish-audio", "gemini-tts", "index-tts", "minimax", "piper"}, r.List())
	assert.True(t, r.Has(ProviderMinimax))

	err := r.Register(ProviderMinimax, newMinimax)
	assert.ErrorIs(t, err, ErrProviderExists)

	_, err = r.New("nope", &ProviderConfig{}, nil, Settings{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

type stubAdapter struct {
	clip *Clip
	err  error
}

func (s stubAdapter) Name() string { return "stub" }
func (s stubAdapter) Synthesize(context.Context, string, Options) (*Clip, error) {
	return s.clip, s.err
}

type stubEffects struct {
	gotVolume, gotSpeed float64
	err                 error
}

func (s *stubEffects) Apply(_ context.Context, c *Clip, vol, speed float64) (*Clip, error) {
	s.gotVolume, s.gotSpeed = vol, speed
	if s.err != nil {
		return nil, s.err
	}
	return &Clip{Audio: append([]byte("fx:"), c.Audio...), Format: c.Format}, nil
}

func TestWithEffects(t *testing.T) {
	t.Parallel()

	fx := &stubEffects{}
	a := WithEffects(stubAdapter{clip: &Clip{Audio: []byte("raw"), Format: FormatMP3}}, fx)

	clip, err := a.Synthesize(context.Background(), "x", Options{VolumeAdjustment: 3, SpeedAdjustment: -10})
	require.NoError(t, err)
	assert.Equal(t, "fx:raw", string(clip.Audio))
	assert.Equal(t, 3.0, fx.gotVolume)
	assert.Equal(t, -10.0, fx.gotSpeed)

	failing := WithEffects(stubAdapter{clip: &Clip{}}, &stubEffects{err: errors.New("ffmpeg died")})
	_, err = failing.Synthesize(context.Background(), "x", Options{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	assert.Equal(t, "stub", WithEffects(stubAdapter{}, nil).Name())
}

func TestWithEffects_NilClip(t *testing.T) {
	t.Parallel()

	fx := &stubEffects{}
	_, err := WithEffects(stubAdapter{}, fx).Synthesize(context.Background(), "x", Options{VolumeAdjustment: 2})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Zero(t, fx.gotVolume, "effects must not run without audio")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(terminal("x", errors.New("bad"))))
	assert.True(t, IsRetryable(transient("x", errors.New("flaky"))))
}
