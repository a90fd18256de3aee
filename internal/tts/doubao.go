package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// doubaoDone marks the end of a successful Doubao stream.
const doubaoDone = 20000000

// Doubao streams line-delimited JSON frames, each optionally carrying a
// base64 audio chunk.
type Doubao struct {
	url     string
	headers http.Header
	payload map[string]any
	client  *http.Client
}

type doubaoFrame struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Data     string          `json:"data"`
	Sentence json.RawMessage `json:"sentence"`
}

func newDoubao(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	if err := creds.require(ProviderDoubaoTTS, "X-Api-App-Id", "X-Api-Access-Key"); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("%s: apiUrl is not configured", ProviderDoubaoTTS)
	}
	headers := expandHeaders(cfg.Headers, creds)
	for _, k := range []string{"X-Api-App-Id", "X-Api-Access-Key"} {
		if headers.Get(k) == "" {
			headers.Set(k, creds[k])
		}
	}
	headers.Set("Content-Type", "application/json")
	return &Doubao{
		url:     creds.expand(cfg.APIURL),
		headers: headers,
		payload: cfg.RequestPayload,
		client:  s.client(false),
	}, nil
}

// Name returns the provider identifier.
func (d *Doubao) Name() string { return ProviderDoubaoTTS }

// Synthesize posts req_params and concatenates the streamed chunks.
func (d *Doubao) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if text == "" {
		return nil, terminal(ProviderDoubaoTTS, errors.New("empty text"))
	}

	body := clonePayload(d.payload)
	if err := setPath(body, text, "req_params", "text"); err != nil {
		return nil, terminal(ProviderDoubaoTTS, err)
	}
	if err := setPath(body, opts.Voice, "req_params", "speaker"); err != nil {
		return nil, terminal(ProviderDoubaoTTS, err)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, terminal(ProviderDoubaoTTS, fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(encoded))
	if err != nil {
		return nil, terminal(ProviderDoubaoTTS, fmt.Errorf("building request: %w", err))
	}
	req.Header = d.headers.Clone()

	slog.Debug("tts request", "provider", ProviderDoubaoTTS, "voice", opts.Voice, "text_length", len(text))
	resp, err := send(ctx, d.client, ProviderDoubaoTTS, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var audio []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
scan:
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame doubaoFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, transient(ProviderDoubaoTTS, fmt.Errorf("decoding frame: %w", err))
		}
		switch {
		case frame.Code == 0 && frame.Data != "":
			chunk, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				return nil, terminal(ProviderDoubaoTTS, fmt.Errorf("decoding audio chunk: %w", err))
			}
			audio = append(audio, chunk...)
		case frame.Code == 0:
			// sentence metadata or keepalive
		case frame.Code == doubaoDone:
			break scan
		case frame.Code > 0:
			return nil, terminal(ProviderDoubaoTTS, fmt.Errorf("vendor error %d: %s", frame.Code, frame.Message))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, terminal(ProviderDoubaoTTS, ctx.Err())
		}
		return nil, transient(ProviderDoubaoTTS, fmt.Errorf("reading stream: %w", err))
	}
	if len(audio) == 0 {
		return nil, transient(ProviderDoubaoTTS, errors.New("stream carried no audio"))
	}
	return &Clip{Audio: audio, Format: FormatMP3}, nil
}
