// Package ai wraps OpenAI chat completions behind a single Complete call.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/m3rciful/evabot/core/logger"
)

// Defaults applied by Config.Normalize.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.3
	DefaultMaxRetries  = 3
	DefaultTimeout     = 60 * time.Second
)

var (
	// ErrNotConfigured is returned by New without an API key.
	ErrNotConfigured = errors.New("ai: api key not configured")
	// ErrNoChoices is returned when the model answered with nothing.
	ErrNoChoices = errors.New("ai: no choices returned")
)

// Config holds OpenAI settings.
type Config struct {
	APIKey      string        `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model       string        `yaml:"model" envconfig:"OPENAI_MODEL"`
	BaseURL     string        `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
	MaxTokens   int64         `yaml:"max_tokens" envconfig:"OPENAI_MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" envconfig:"OPENAI_TEMPERATURE"`
	MaxRetries  int           `yaml:"max_retries" envconfig:"OPENAI_MAX_RETRIES"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"OPENAI_TIMEOUT"`
}

// Normalize fills defaults. A negative MaxRetries disables retries.
func (c *Config) Normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client sends one system prompt and one user message per call.
type Client struct {
	api         openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New builds a client; retries with backoff are handled by openai-go.
func New(cfg Config) (*Client, error) {
	cfg.Normalize()
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.Error(ctx, logger.CompAI, "complete",
			slog.String("status", "fail"),
			slog.String("model", c.model),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("ai: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		logger.Warn(ctx, logger.CompAI, "complete",
			slog.String("status", "empty"),
			slog.String("model", c.model),
			slog.Duration("duration", took),
		)
		return "", ErrNoChoices
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	logger.Info(ctx, logger.CompAI, "complete",
		slog.String("status", "ok"),
		slog.String("model", c.model),
		slog.Int64("tokens", resp.Usage.TotalTokens),
		slog.Int("chars", len([]rune(out))),
		slog.Duration("duration", took),
	)
	return out, nil
}
