package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Gemini calls the generateContent endpoint in audio mode. The response
// carries raw 24 kHz mono PCM which is wrapped into a WAV clip.
type Gemini struct {
	url     string
	headers http.Header
	payload map[string]any
	client  *http.Client
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func newGemini(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	if err := creds.require(ProviderGeminiTTS, "api_key"); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%s: apiUrl is not configured", ProviderGeminiTTS)
	}
	endpoint := cfg.APIURL
	if strings.Contains(endpoint, "{{model}}") {
		model := getString(cfg.RequestPayload, "model")
		if model == "" {
			return nil, fmt.Errorf("%s: request_payload.model is required by apiUrl", ProviderGeminiTTS)
		}
		endpoint = strings.ReplaceAll(endpoint, "{{model}}", model)
	}

	headers := expandHeaders(cfg.Headers, creds)
	headers.Set("x-goog-api-key", creds["api_key"])
	headers.Set("Content-Type", "application/json")

	return &Gemini{
		url:     creds.expand(endpoint),
		headers: headers,
		payload: cfg.RequestPayload,
		client:  s.client(true),
	}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string { return ProviderGeminiTTS }

// Synthesize fills the prompt text and prebuilt voice name.
func (g *Gemini) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if text == "" {
		return nil, terminal(ProviderGeminiTTS, errors.New("empty text"))
	}

	body := clonePayload(g.payload)
	if err := setPath(body, text, "contents", 0, "parts", 0, "text"); err != nil {
		return nil, terminal(ProviderGeminiTTS, err)
	}
	voicePath := []any{"generationConfig", "speechConfig", "voiceConfig", "prebuiltVoiceConfig", "voiceName"}
	if err := setPath(body, opts.Voice, voicePath...); err != nil {
		return nil, terminal(ProviderGeminiTTS, err)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, terminal(ProviderGeminiTTS, fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequest(http.MethodPost, g.url, bytes.NewReader(encoded))
	if err != nil {
		return nil, terminal(ProviderGeminiTTS, fmt.Errorf("building request: %w", err))
	}
	req.Header = g.headers.Clone()

	slog.Debug("tts request", "provider", ProviderGeminiTTS, "voice", opts.Voice, "text_length", len(text))
	resp, err := send(ctx, g.client, ProviderGeminiTTS, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxClipBytes)).Decode(&out); err != nil {
		return nil, transient(ProviderGeminiTTS, fmt.Errorf("decoding response: %w", err))
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, transient(ProviderGeminiTTS, errors.New("response has no candidates"))
	}
	pcm, err := base64.StdEncoding.DecodeString(out.Candidates[0].Content.Parts[0].InlineData.Data)
	if err != nil {
		return nil, terminal(ProviderGeminiTTS, fmt.Errorf("decoding audio: %w", err))
	}
	if len(pcm) == 0 {
		return nil, transient(ProviderGeminiTTS, errors.New("empty audio response"))
	}
	return &Clip{Audio: wrapWAV(pcm, geminiPCM), Format: FormatWAV}, nil
}
