// Package ai extracts calendar events from school emails and scores
// event similarity, using the Anthropic API.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mail2cal/internal/logging"
)

// Message is the source material handed to the extractor: one email,
// already reduced to plain text.
type Message struct {
	ID      string
	Sender  string
	Subject string
	Date    time.Time
	Body    string
}

// Client wraps the Anthropic API for this tool's three prompts.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	loc       *time.Location
	logger    *slog.Logger
}

// NewClient builds a client. apiKey must be non-empty; loc is the
// timezone all extracted dates are interpreted in.
func NewClient(apiKey, model string, maxTokens int64, timeout time.Duration, loc *time.Location, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is empty")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client:    &c,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		loc:       loc,
		logger:    logger,
	}, nil
}

// complete sends a single-turn prompt and returns the concatenated text
// blocks of the response.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("anthropic response contained no text")
	}
	c.logger.Debug("anthropic call complete",
		logging.Operation("complete"),
		slog.Int("response_chars", len(text)))
	return text, nil
}
