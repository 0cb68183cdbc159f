// Package openai implements domain.AIClient against an OpenAI-compatible API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/subsidy-matcher/internal/config"
	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
)

// Client implements domain.AIClient using the embeddings and chat completions
// endpoints of an OpenAI-compatible API.
type Client struct {
	cfg     config.Config
	chatHC  *http.Client
	embedHC *http.Client
}

// New constructs a client with sensible per-call timeouts. Context deadlines
// from the caller still apply on top.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		chatHC:  &http.Client{Timeout: 60 * time.Second},
		embedHC: &http.Client{Timeout: 30 * time.Second},
	}
}

// readSnippet reads up to n bytes from r for error logging.
func readSnippet(r io.Reader, n int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return string(b)
}

// Embed returns one embedding vector per input text.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body := map[string]any{"model": c.cfg.EmbeddingsModel, "input": texts}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.embedHC.Do(req)
	if err != nil {
		return nil, c.mapTransportErr(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, 512)
		slog.Warn("embeddings call failed", slog.Int("status", resp.StatusCode), slog.String("body", snippet))
		return nil, fmt.Errorf("%w: embeddings status %d", domain.ErrUpstreamError, resp.StatusCode)
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: embeddings decode: %v", domain.ErrUpstreamError, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings count mismatch: want %d got %d", domain.ErrUpstreamError, len(texts), len(out.Data))
	}
	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// ChatText submits a single prompt to the chat completions endpoint and
// returns the generated text. Retries are bounded by the configured backoff;
// client errors other than 429 are not retried.
func (c *Client) ChatText(ctx domain.Context, prompt string, maxTokens int) (string, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model":       c.cfg.ChatModel,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	b, _ := json.Marshal(body)

	var content string
	op := func() error {
		start := time.Now()
		// Recreate the request each attempt to avoid reusing a consumed body.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.chatHC.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(c.mapTransportErr(ctx, err))
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := readSnippet(resp.Body, 512)
			slog.Warn("chat call failed",
				slog.Int("status", resp.StatusCode),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("body", snippet))
			err := fmt.Errorf("%w: chat status %d", domain.ErrUpstreamError, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		var out struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: chat decode: %v", domain.ErrUpstreamError, err)
		}
		if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
			return fmt.Errorf("%w: chat returned no content", domain.ErrUpstreamError)
		}
		content = out.Choices[0].Message.Content
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoffConfig(), ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxIv, mult := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxIv
	expo.Multiplier = mult
	return expo
}

func (c *Client) mapTransportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamError, err)
}
