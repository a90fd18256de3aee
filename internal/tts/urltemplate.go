package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// URLTemplate serves GET-style engines (index-tts, edge-tts) whose endpoint
// takes the text and voice as URL placeholders and streams back the clip.
type URLTemplate struct {
	name     string
	format   string
	template string
	client   *http.Client
}

func newURLTemplateFactory(name, format string) Factory {
	return func(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
		tmpl := cfg.APIURL
		// A per-tenant endpoint in the credentials wins over the static one.
		if override := creds["api_url"]; override != "" {
			tmpl = override
		}
		if tmpl == "" {
			return nil, fmt.Errorf("%s: apiUrl is not configured", name)
		}
		return &URLTemplate{
			name:     name,
			format:   format,
			template: tmpl,
			client:   s.client(false),
		}, nil
	}
}

// Name returns the provider identifier.
func (u *URLTemplate) Name() string { return u.name }

// Synthesize fetches the clip from the expanded URL.
func (u *URLTemplate) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, terminal(u.name, errors.New("empty text"))
	}

	endpoint := strings.NewReplacer(
		"{{text}}", url.QueryEscape(text),
		"{{voiceCode}}", url.QueryEscape(opts.Voice),
	).Replace(u.template)

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, terminal(u.name, fmt.Errorf("building request: %w", err))
	}

	slog.Debug("tts request", "provider", u.name, "voice", opts.Voice, "text_length", len(text))
	resp, err := send(ctx, u.client, u.name, req)
	if err != nil {
		return nil, err
	}
	audio, err := readAudio(u.name, resp)
	if err != nil {
		return nil, err
	}
	return &Clip{Audio: audio, Format: u.format}, nil
}
