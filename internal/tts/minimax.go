package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Minimax posts JSON and receives either hex-encoded audio inline or a URL
// to download it from, depending on the template's output_format.
type Minimax struct {
	url     string
	headers http.Header
	payload map[string]any
	client  *http.Client
}

type minimaxResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func newMinimax(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	if err := creds.require(ProviderMinimax, "api_key", "group_id"); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%s: apiUrl is not configured", ProviderMinimax)
	}
	headers := expandHeaders(cfg.Headers, creds)
	if headers.Get("Authorization") == "" {
		headers.Set("Authorization", "Bearer "+creds["api_key"])
	}
	headers.Set("Content-Type", "application/json")
	return &Minimax{
		url:     creds.expand(cfg.APIURL),
		headers: headers,
		payload: cfg.RequestPayload,
		client:  s.client(true),
	}, nil
}

// Name returns the provider identifier.
func (m *Minimax) Name() string { return ProviderMinimax }

// Synthesize sets text and voice_setting.voice_id and resolves the returned audio.
func (m *Minimax) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if text == "" {
		return nil, terminal(ProviderMinimax, errors.New("empty text"))
	}

	body := clonePayload(m.payload)
	body["text"] = text
	if err := setPath(body, opts.Voice, "voice_setting", "voice_id"); err != nil {
		return nil, terminal(ProviderMinimax, err)
	}
	hexOutput := getString(body, "output_format") == "hex"

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, terminal(ProviderMinimax, fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequest(http.MethodPost, m.url, bytes.NewReader(encoded))
	if err != nil {
		return nil, terminal(ProviderMinimax, fmt.Errorf("building request: %w", err))
	}
	req.Header = m.headers.Clone()

	slog.Debug("tts request", "provider", ProviderMinimax, "voice", opts.Voice, "text_length", len(text))
	resp, err := send(ctx, m.client, ProviderMinimax, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out minimaxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxClipBytes)).Decode(&out); err != nil {
		return nil, transient(ProviderMinimax, fmt.Errorf("decoding response: %w", err))
	}
	if out.BaseResp.StatusCode != 0 {
		return nil, terminal(ProviderMinimax, fmt.Errorf("vendor error %d: %s", out.BaseResp.StatusCode, out.BaseResp.StatusMsg))
	}
	if out.Data.Audio == "" {
		return nil, transient(ProviderMinimax, errors.New("response has no audio"))
	}

	if hexOutput {
		audio, err := hex.DecodeString(out.Data.Audio)
		if err != nil {
			return nil, terminal(ProviderMinimax, fmt.Errorf("decoding hex audio: %w", err))
		}
		return &Clip{Audio: audio, Format: FormatMP3}, nil
	}

	dl, err := http.NewRequest(http.MethodGet, out.Data.Audio, nil)
	if err != nil {
		return nil, terminal(ProviderMinimax, fmt.Errorf("invalid audio url: %w", err))
	}
	dlResp, err := send(ctx, m.client, ProviderMinimax, dl)
	if err != nil {
		return nil, err
	}
	audio, err := readAudio(ProviderMinimax, dlResp)
	if err != nil {
		return nil, err
	}
	return &Clip{Audio: audio, Format: FormatMP3}, nil
}
