package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxClipBytes bounds a single downloaded clip.
const maxClipBytes = 64 << 20

// send performs req and classifies transport and status failures.
// The caller owns the returned body.
func send(ctx context.Context, client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, terminal(provider, ctxErr)
		}
		return nil, transient(provider, fmt.Errorf("request: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		err := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		return nil, &Error{Provider: provider, Retryable: retryableStatus(resp.StatusCode), Err: err}
	}
	return resp, nil
}

// readAudio drains a successful response body into a clip buffer.
func readAudio(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, transient(provider, fmt.Errorf("reading audio: %w", err))
	}
	if len(data) == 0 {
		return nil, transient(provider, errors.New("empty audio response"))
	}
	return data, nil
}
