package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/metrics"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("ANTHROPIC_API_KEY not configured")
	// ErrTimeout is returned when a call exceeds the configured wait.
	ErrTimeout = errors.New("text generation timed out")
	// ErrUpstream is returned for non-success responses and transport failures.
	ErrUpstream = errors.New("text generation failed")
)

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single text-generation call.
type Request struct {
	// Operation labels the call in logs and metrics.
	Operation string
	System    string
	Messages  []Message
	MaxTokens int
}

// Response carries the typed content blocks of a reply.
type Response struct {
	Blocks []Block
	Model  string
}

// Text returns the joined text blocks.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return ExtractText(r.Blocks)
}

// Generator issues one blocking text-generation call.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientConfig is the explicit configuration of a Client.
type ClientConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls the Anthropic Messages API. No retries are made.
type Client struct {
	cfg     ClientConfig
	api     anthropic.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClient builds a Client. A nil logger disables logging and nil metrics
// disables instrumentation.
func NewClient(cfg ClientConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		cfg:     cfg,
		api:     anthropic.NewClient(opts...),
		logger:  logger,
		metrics: m,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Generate sends req and blocks until the reply arrives or the timeout hits.
func (c *Client) Generate(ctx context.Context, req Request) (resp *Response, err error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	started := time.Now()
	if c.metrics != nil {
		defer func() { c.metrics.RecordLLM(req.Operation, started, err) }()
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classify(ctx, req.Operation, err)
	}

	out := &Response{Model: string(message.Model), Blocks: make([]Block, 0, len(message.Content))}
	for _, block := range message.Content {
		out.Blocks = append(out.Blocks, Block{Type: block.Type, Text: block.Text})
	}
	c.logger.Debug("text generation complete",
		zap.String("operation", req.Operation),
		zap.Int64("input_tokens", message.Usage.InputTokens),
		zap.Int64("output_tokens", message.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (c *Client) classify(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Error("text generation timed out", zap.String("operation", operation), zap.Duration("timeout", c.cfg.Timeout))
		return fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		body := excerpt(apierr.Error(), 500)
		c.logger.Error("text generation upstream error",
			zap.String("operation", operation),
			zap.Int("status", apierr.StatusCode),
			zap.String("body", body),
		)
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, apierr.StatusCode, excerpt(body, 300))
	}
	c.logger.Error("text generation transport error", zap.String("operation", operation), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func toParams(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
