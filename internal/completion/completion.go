// Package completion calls an OpenAI-compatible chat completions endpoint.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/metrics"
	"github.com/allaspectsdev/chatproxy/internal/observe"
	"github.com/allaspectsdev/chatproxy/internal/tokenizer"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
)

// Op names the completion call in logs, metrics and spans.
const Op = "completion"

// Client sends one system + user turn and returns the first choice.
type Client struct {
	up       *upstream.Client
	cfg      config.CompletionConfig
	observer observe.Observer
	metrics  *metrics.Collector
}

// NewClient returns a completion Client. observer and collector may be nil.
func NewClient(up *upstream.Client, cfg config.CompletionConfig, observer observe.Observer, collector *metrics.Collector) *Client {
	if observer == nil {
		observer = observe.Nop()
	}
	return &Client{up: up, cfg: cfg, observer: observer, metrics: collector}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// messages builds the two-message conversation sent for a chat turn.
func messages(system, user string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}

// Request builds the upstream call for the given system and user messages.
func (c *Client) Request(system, user string) (upstream.Request, error) {
	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages(system, user),
	})
	if err != nil {
		return upstream.Request{}, fmt.Errorf("encoding completion request: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return upstream.Request{
		Op:      Op,
		Method:  http.MethodPost,
		URL:     c.cfg.APIBase + "/chat/completions",
		Header:  header,
		Body:    body,
		Timeout: c.cfg.TimeoutDuration(),
	}, nil
}

// Reply asks the model for an answer. On any failure it returns fallback and
// false.
func (c *Client) Reply(ctx context.Context, system, user, fallback string) (string, bool) {
	req, err := c.Request(system, user)
	if err != nil {
		c.observer.Log(ctx, zerolog.ErrorLevel, "completion.encode_failed", observe.Fields{"error": err})
		return fallback, false
	}

	return upstream.FetchWithFallback(ctx, c.up, req, func(body []byte) (string, error) {
		resp, reply, err := ParseReply(body)
		if err != nil {
			return "", err
		}
		c.recordUsage(ctx, resp)
		return reply, nil
	}, fallback)
}

func (c *Client) recordUsage(ctx context.Context, resp openai.ChatCompletionResponse) {
	model := resp.Model
	if model == "" {
		model = c.cfg.Model
	}
	u := resp.Usage
	cost := tokenizer.EstimateCost(model, u.PromptTokens, u.CompletionTokens)
	c.metrics.RecordCompletionUsage(model, u.PromptTokens, u.CompletionTokens, cost)
	c.observer.Log(ctx, zerolog.InfoLevel, "completion.usage", observe.Fields{
		"model":             model,
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"cost_usd":          cost,
	})
}

// ParseReply decodes a chat completions response and returns the trimmed
// content of its first choice. A response without choices or with blank
// content is upstream.ErrEmpty.
func ParseReply(body []byte) (openai.ChatCompletionResponse, string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, "", fmt.Errorf("%s: %w: %v", Op, upstream.ErrMalformed, err)
	}
	if len(resp.Choices) == 0 {
		return resp, "", fmt.Errorf("%s: no choices: %w", Op, upstream.ErrEmpty)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return resp, "", fmt.Errorf("%s: blank content: %w", Op, upstream.ErrEmpty)
	}
	return resp, reply, nil
}
