package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yungbote/newsquiz-backend/internal/platform/envutil"
	"github.com/yungbote/newsquiz-backend/internal/platform/llm"
	"github.com/yungbote/newsquiz-backend/internal/platform/logger"
)

const provider = "anthropic"

const jsonInstruction = "Respond with a single JSON value only. No markdown fences, no prose."

type Config struct {
	APIKey     string        `yaml:"-"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("ANTHROPIC_API_KEY", ""),
		BaseURL:    envutil.String("ANTHROPIC_BASE_URL", ""),
		Model:      envutil.String("ANTHROPIC_MODEL", "claude-haiku-4-5"),
		MaxTokens:  envutil.Int("ANTHROPIC_MAX_TOKENS", 4096),
		Timeout:    envutil.Duration("ANTHROPIC_TIMEOUT_SECONDS", 120*time.Second),
		MaxRetries: envutil.Int("ANTHROPIC_MAX_RETRIES", 2),
	}
}

// Client is an llm.Gateway backed by the Anthropic Messages API.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int
	log       *logger.Logger
}

func New(cfg Config, log *logger.Logger, extra ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	opts = append(opts, extra...)
	return &Client{
		client:    sdk.NewClient(opts...),
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: cfg.MaxTokens,
		log:       log.With("client", "AnthropicClient"),
	}, nil
}

func (c *Client) Complete(ctx context.Context, r llm.Request) (string, error) {
	model := strings.TrimSpace(r.Model)
	if model == "" {
		model = c.model
	}
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	system := strings.TrimSpace(r.System)
	if r.Format == llm.FormatJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(r.Prompt)),
		},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if r.Temperature != nil {
		params.Temperature = sdk.Float(*r.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		c.log.Warn("Empty completion", "model", model, "stop_reason", string(resp.StopReason))
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &llm.RateLimitError{Provider: provider, Err: err}
		}
		return &llm.TransportError{Provider: provider, StatusCode: apiErr.StatusCode, Err: err}
	}
	return llm.Classify(provider, err)
}
