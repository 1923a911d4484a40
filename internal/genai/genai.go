// Package genai provides language-model operations using the OpenAI API: plain chat
// completion, multi-image vision analysis, and the assistant roles built on them.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 60 * time.Second

var (
	ErrNoAPIKey          = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrNoImages          = errors.New("no images to analyze")
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ClientInterface is implemented by Client and by test doubles.
type ClientInterface interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	AnalyzeImages(ctx context.Context, systemPrompt string, imageURLs []string) (string, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	debugMode   bool
	stateDir    string
}

var _ ClientInterface = (*Client)(nil)

// Opts holds configuration for the client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option configures a Client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key. Without it OPENAI_API_KEY is read.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugMode writes every request and response under <stateDir>/debug.
func WithDebugMode(enabled bool, stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
		o.StateDir = stateDir
	}
}

// NewClient creates a client. The API key comes from WithAPIKey or OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: 0.2,
		MaxTokens:   1000,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI NewClient created", "model", cfg.Model, "max_tokens", cfg.MaxTokens, "debug", cfg.DebugMode)
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// GeneratePrompt is GeneratePromptWithContext with a background context.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext returns the model's answer to userPrompt under systemPrompt.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.complete(ctx, "chat", messages)
}

// AnalyzeImages sends all images in one request together with the instruction and
// returns the single combined answer. imageURLs may be http(s) or data URLs.
func (c *Client) AnalyzeImages(ctx context.Context, systemPrompt string, imageURLs []string) (string, error) {
	if len(imageURLs) == 0 {
		return "", ErrNoImages
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(imageURLs)+1)
	parts = append(parts, openai.TextContentPart(systemPrompt))
	for _, u := range imageURLs {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)}
	return c.complete(ctx, "vision", messages)
}

func (c *Client) complete(ctx context.Context, kind string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAI complete failed", "kind", kind, "model", c.model, "error", err)
		c.debugLog(kind, params, nil, err)
		return "", fmt.Errorf("openai %s completion: %w", kind, err)
	}
	c.debugLog(kind, params, resp, nil)
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("GenAI complete succeeded", "kind", kind, "model", c.model, "duration", time.Since(start), "length", len(content))
	return content, nil
}

// debugEntry is one request/response pair written in debug mode.
type debugEntry struct {
	Timestamp time.Time                      `json:"timestamp"`
	Kind      string                         `json:"kind"`
	Model     string                         `json:"model"`
	Request   openai.ChatCompletionNewParams `json:"request"`
	Response  *openai.ChatCompletion         `json:"response,omitempty"`
	Error     string                         `json:"error,omitempty"`
}

func (c *Client) debugLog(kind string, params openai.ChatCompletionNewParams, resp *openai.ChatCompletion, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	entry := debugEntry{Timestamp: time.Now(), Kind: kind, Model: c.model, Request: params, Response: resp}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI debugLog mkdir failed", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("GenAI debugLog marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s.json", entry.Timestamp.Format("20060102T150405.000000000"), kind)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("GenAI debugLog write failed", "error", err)
	}
}
