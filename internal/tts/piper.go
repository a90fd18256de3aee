package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// Piper speaks the Wyoming protocol to a local Piper server. Each event is
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>
//
// and a synthesis answers audio-start, audio-chunk..., audio-stop.
type Piper struct {
	addr    string
	timeout time.Duration
}

func newPiper(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	addr := cfg.APIURL
	if override := creds["api_url"]; override != "" {
		addr = override
	}
	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "tcp://"), "http://")
	addr = strings.TrimSuffix(addr, "/")
	if addr == "" {
		return nil, fmt.Errorf("%s: apiUrl is not configured", ProviderPiper)
	}
	return &Piper{addr: addr, timeout: s.client(false).Timeout}, nil
}

// Name returns the provider identifier.
func (p *Piper) Name() string { return ProviderPiper }

// Synthesize sends one synthesize event and collects the PCM reply into a WAV clip.
func (p *Piper) Synthesize(ctx context.Context, text string, opts Options) (*Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, terminal(ProviderPiper, errors.New("empty text"))
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, terminal(ProviderPiper, ctx.Err())
		}
		return nil, transient(ProviderPiper, fmt.Errorf("connecting: %w", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	event := wyomingEvent{Type: "synthesize", Data: map[string]any{"text": text}}
	if opts.Voice != "" {
		event.Data["voice"] = map[string]any{"name": opts.Voice}
	}
	if err := writeWyoming(conn, event); err != nil {
		return nil, transient(ProviderPiper, fmt.Errorf("sending synthesize: %w", err))
	}

	slog.Debug("tts request", "provider", ProviderPiper, "voice", opts.Voice, "text_length", len(text))

	r := bufio.NewReader(conn)
	format := pcmFormat{SampleRate: 22050, Channels: 1, Width: 2}
	var pcm []byte
	for {
		evt, payload, err := readWyoming(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, terminal(ProviderPiper, ctx.Err())
			}
			return nil, transient(ProviderPiper, fmt.Errorf("reading event: %w", err))
		}

		switch evt.Type {
		case "audio-start":
			format.SampleRate = intField(evt.Data, "rate", format.SampleRate)
			format.Channels = intField(evt.Data, "channels", format.Channels)
			format.Width = intField(evt.Data, "width", format.Width)
		case "audio-chunk":
			pcm = append(pcm, payload...)
		case "audio-stop":
			if len(pcm) == 0 {
				return nil, transient(ProviderPiper, errors.New("empty audio response"))
			}
			return &Clip{Audio: wrapWAV(pcm, format), Format: FormatWAV}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, terminal(ProviderPiper, errors.New(msg))
		}
	}
}

type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeWyoming(w io.Writer, evt wyomingEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d 0\n%s\n", len(body), body)
	return err
}

func readWyoming(r *bufio.Reader) (*wyomingEvent, []byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, err
	}
	jsonField, payloadField, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return nil, nil, fmt.Errorf("invalid header %q", line)
	}
	jsonLen, err := strconv.Atoi(jsonField)
	if err != nil {
		return nil, nil, fmt.Errorf("json length: %w", err)
	}
	payloadLen, err := strconv.Atoi(payloadField)
	if err != nil {
		return nil, nil, fmt.Errorf("payload length: %w", err)
	}

	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	var evt wyomingEvent
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("decoding event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, err
		}
	}
	return &evt, payload, nil
}

func intField(m map[string]any, key string, def int) int {
	if f, ok := m[key].(float64); ok && f > 0 {
		return int(f)
	}
	return def
}
