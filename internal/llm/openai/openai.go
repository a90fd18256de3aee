// Package openai implements the llm.Completer interface against any
// OpenAI-compatible Chat Completions endpoint.
//
// Each job may bring its own API key, base URL and model, so a Client is
// built per job through the Factory returned by NewFactory.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/llm"
)

// Client completes prompts with a single chat model.
type Client struct {
	model  *einoopenai.ChatModel
	name   string
	stream bool
}

// New creates a client for the given credentials.
func New(ctx context.Context, creds llm.Credentials, stream bool, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}
	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:  creds.APIKey,
		BaseURL: strings.TrimRight(creds.BaseURL, "/"),
		Model:   creds.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return &Client{model: chatModel, name: creds.Model, stream: stream}, nil
}

// NewFactory returns an llm.Factory that fills empty per-job credentials
// from the configured defaults.
func NewFactory(cfg config.LLMConfig) llm.Factory {
	return func(ctx context.Context, creds llm.Credentials) (llm.Completer, error) {
		if creds.APIKey == "" {
			creds.APIKey = cfg.APIKey
		}
		if creds.BaseURL == "" {
			creds.BaseURL = cfg.BaseURL
		}
		if creds.Model == "" {
			creds.Model = cfg.Model
		}
		return New(ctx, creds, cfg.Stream, cfg.Timeout)
	}
}

// Complete sends the system prompt and user message and returns the full reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}

	start := time.Now()
	var (
		text string
		err  error
	)
	if c.stream {
		text, err = c.completeStream(ctx, messages)
	} else {
		text, err = c.completeOnce(ctx, messages)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}

	slog.Debug("chat completion done", "model", c.name, "stream", c.stream,
		"chars", len(text), "duration", time.Since(start))
	return text, nil
}

func (c *Client) completeOnce(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := c.model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	return resp.Content, nil
}

func (c *Client) completeStream(ctx context.Context, messages []*schema.Message) (string, error) {
	stream, err := c.model.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading chat stream: %w", err)
		}
		sb.WriteString(msg.Content)
	}
	return sb.String(), nil
}
