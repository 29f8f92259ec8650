// Package llamacpp calls a llama.cpp-compatible /completions endpoint.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/rag"
)

// Config selects the completion endpoint.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Client implements rag.Completer.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("completion.base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type completionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type choice struct {
	Text    string `json:"text"`
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

type completionResponse struct {
	Choices []choice `json:"choices"`
	Content string   `json:"content"`
}

// text picks the answer from an OpenAI-style choices array, falling back to
// llama.cpp's native flat content field.
func (r completionResponse) text() string {
	if len(r.Choices) > 0 {
		c := r.Choices[0]
		if c.Text != "" {
			return strings.TrimSpace(c.Text)
		}
		if c.Message != nil {
			return strings.TrimSpace(c.Message.Content)
		}
		return ""
	}
	return strings.TrimSpace(r.Content)
}

// Complete implements rag.Completer.
func (c *Client) Complete(ctx context.Context, req rag.CompletionRequest) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	text := out.text()
	c.logger.Debug("completion finished",
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("answer_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
