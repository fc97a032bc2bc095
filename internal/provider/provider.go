// Package provider abstracts the remote completion endpoint behind a small
// capability interface so the summarizer can be tested with a deterministic
// fake.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Provider is a chat-completion capability.
type Provider interface {
	// Complete sends one system+user message pair and returns the assistant
	// message content of the first choice.
	Complete(ctx context.Context, system, user string) (string, error)
	Name() string
	Model() string
}

// Config for the OpenAI-compatible provider. BaseURL may point at any
// chat-completion-compatible service (OpenAI, OpenRouter, a local gateway).
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int // provider calls are costly; keep this small
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// OpenAI calls a chat-completion endpoint with bearer auth.
type OpenAI struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// NewOpenAI creates the provider. Retries for transient failures are handled
// by the underlying client, capped at cfg.MaxRetries.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("provider model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     timeout,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(int64(p.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAI) Name() string  { return "openai" }
func (p *OpenAI) Model() string { return p.model }
