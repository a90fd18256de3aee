package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// FishAudio posts a msgpack-encoded request and receives MP3 bytes.
type FishAudio struct {
	url     string
	headers http.Header
	payload map[string]any
	client  *http.Client
}

func newFishAudio(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	if err := creds.require(ProviderFishAudio, "api_key"); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%s: apiUrl is not configured", ProviderFishAudio)
	}
	headers := expandHeaders(cfg.Headers, creds)
	if headers.Get("Authorization") == "" {
		headers.Set("Authorization", "Bearer "+creds["api_key"])
	}
	headers.Set("Content-Type", "application/msgpack")
	return &FishAudio{
		url:     creds.expand(cfg.APIURL),
		headers: headers,
		payload: cfg.RequestPayload,
		client:  s.client(true),
	}, nil
}

// Name returns the provider identifier.
func (f *FishAudio) Name() string { return ProviderFishAudio }

// Synthesize encodes the request template with text and reference_id.
func (f *FishAudio) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if text == "" {
		return nil, terminal(ProviderFishAudio, errors.New("empty text"))
	}

	body := clonePayload(f.payload)
	body["text"] = text
	body["reference_id"] = opts.Voice

	packed, err := msgpack.Marshal(body)
	if err != nil {
		return nil, terminal(ProviderFishAudio, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequest(http.MethodPost, f.url, bytes.NewReader(packed))
	if err != nil {
		return nil, terminal(ProviderFishAudio, fmt.Errorf("building request: %w", err))
	}
	req.Header = f.headers.Clone()

	slog.Debug("tts request", "provider", ProviderFishAudio, "voice", opts.Voice, "text_length", len(text))
	resp, err := send(ctx, f.client, ProviderFishAudio, req)
	if err != nil {
		return nil, err
	}
	audio, err := readAudio(ProviderFishAudio, resp)
	if err != nil {
		return nil, err
	}
	return &Clip{Audio: audio, Format: FormatMP3}, nil
}
