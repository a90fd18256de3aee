package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/podcast"
)

// CallbackPayload is the body PUT to a job's callback URL.
type CallbackPayload struct {
	TaskID    string           `json:"task_id"`
	AuthID    string           `json:"auth_id"`
	Results   podcast.Snapshot `json:"task_results"`
	Timestamp int64            `json:"timestamp"`
	Status    podcast.Status   `json:"status"`
}

// Notifier delivers terminal job snapshots to client callback URLs.
type Notifier struct {
	client   *http.Client
	attempts int
	delay    time.Duration
	timeout  time.Duration
}

// NewNotifier creates a Notifier making 1+cfg.MaxRetries attempts.
func NewNotifier(cfg config.CallbackConfig) *Notifier {
	return &Notifier{
		client:   &http.Client{},
		attempts: 1 + max(cfg.MaxRetries, 0),
		delay:    cfg.RetryDelay,
		timeout:  cfg.Timeout,
	}
}

// Notify PUTs payload to url until a 2xx response or attempts run out.
func (n *Notifier) Notify(ctx context.Context, url string, payload CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding callback: %w", err)
	}
	logger := slog.With("job_id", payload.TaskID, "callback_url", url)

	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		lastErr = n.put(ctx, url, body)
		if lastErr == nil {
			logger.Info("callback delivered", "attempt", attempt)
			return nil
		}
		logger.Warn("callback attempt failed", "attempt", attempt, "max_attempts", n.attempts, "error", lastErr)
		if attempt == n.attempts {
			break
		}
		if err := sleepCtx(ctx, n.delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("callback to %s failed after %d attempts: %w", url, n.attempts, lastErr)
}

func (n *Notifier) put(ctx context.Context, url string, body []byte) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
