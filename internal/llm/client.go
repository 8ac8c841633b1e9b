// Package llm is the Ollama text-generation client used for grading,
// query rewriting, summaries, answers, and chat.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	scouterr "github.com/filescout/filescout/internal/errors"
)

// Default request bounds.
const (
	DefaultRequestTimeout = 120 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Options tune a single generation call. Zero values are omitted from
// the request, leaving the model defaults in place.
type Options struct {
	Temperature   float64
	NumPredict    int // max tokens to generate
	TopP          float64
	RepeatPenalty float64
	Timeout       time.Duration // per-request deadline, 0 for default
}

// Client generates text through a local Ollama instance.
type Client interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// Chat completes a conversation.
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	// Available probes the endpoint with a short timeout.
	Available(ctx context.Context) bool
	// Model returns the configured model name.
	Model() string
}

// Config configures the Ollama client.
type Config struct {
	Host           string
	Model          string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

// OllamaClient implements Client against the Ollama HTTP API. The HTTP
// client has no global timeout; deadlines come from per-request
// contexts.
type OllamaClient struct {
	client    *http.Client
	transport *http.Transport
	config    Config
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient creates a client for the given endpoint.
func NewOllamaClient(cfg Config) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	return &OllamaClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

// Generate completes a single prompt via /api/generate.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	req := generateRequest{
		Model:   c.config.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: optionsMap(opts),
	}
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", req, &resp, opts.Timeout); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Chat completes a conversation via /api/chat.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
		Options:  optionsMap(opts),
	}
	var resp chatResponse
	if err := c.post(ctx, "/api/chat", req, &resp, opts.Timeout); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func optionsMap(opts Options) map[string]any {
	m := map[string]any{}
	if opts.Temperature > 0 {
		m["temperature"] = opts.Temperature
	}
	if opts.NumPredict > 0 {
		m["num_predict"] = opts.NumPredict
	}
	if opts.TopP > 0 {
		m["top_p"] = opts.TopP
	}
	if opts.RepeatPenalty > 0 {
		m["repeat_penalty"] = opts.RepeatPenalty
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func (c *OllamaClient) post(ctx context.Context, path string, payload, out any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return scouterr.Wrap(scouterr.KindInternal, "llm.post", err, "marshal request")
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+path, bytes.NewReader(body))
	if err != nil {
		return scouterr.Wrap(scouterr.KindInternal, "llm.post", err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Connection refused and deadline both mean the model is not
		// usable right now.
		return scouterr.Wrap(scouterr.KindModelUnavailable, "llm.post", err, "ollama unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return scouterr.E(scouterr.KindModelRuntime, "llm.post",
			"unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return scouterr.Wrap(scouterr.KindModelRuntime, "llm.post", err, "decode response")
	}
	return nil
}

// Available probes /api/tags with a short timeout.
func (c *OllamaClient) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.config.Model
}

// Close releases pooled connections.
func (c *OllamaClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
