// Package firecrawl is a thin client for the Firecrawl scraping API.
// It performs a single scrape request; pacing, retries and failure
// classification belong to the caller.
package firecrawl

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
)

// ErrNoContent marks a structurally valid response that carries no
// usable payload (success flag false or empty bodies). The server gave
// a definitive answer, so callers must not retry.
var ErrNoContent = errors.New("firecrawl: response carries no content")

// StatusError is a non-2xx response with its raw body preserved for
// classification (rate-limit reset parsing, blocked-URL detection).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("firecrawl: unexpected status %d: %s", e.Code, truncate(e.Body, 200))
}

// Config holds Firecrawl client configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	WaitFor         time.Duration // settle delay for dynamic pages
	OnlyMainContent bool
}

// Client performs scrape requests against the Firecrawl API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	waitFor         time.Duration
	timeout         time.Duration
	onlyMainContent bool
	logger          *slog.Logger
}

// New creates a Firecrawl client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.WaitFor == 0 {
		cfg.WaitFor = 3 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		waitFor:         cfg.WaitFor,
		timeout:         cfg.Timeout,
		onlyMainContent: cfg.OnlyMainContent,
		logger:          logger.With("client", "firecrawl"),
	}
}

// Result is one successfully scraped page.
type Result struct {
	Markdown string
	HTML     string
	Metadata map[string]any
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int      `json:"waitFor"`
	Timeout         int      `json:"timeout"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string         `json:"markdown"`
		HTML     string         `json:"html"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

// Scrape fetches one URL as markdown + raw HTML with metadata.
func (c *Client) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	body, err := json.Marshal(scrapeRequest{
		URL:             rawURL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: c.onlyMainContent,
		WaitFor:         int(c.waitFor.Milliseconds()),
		Timeout:         int(c.timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var sr scrapeResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !sr.Success {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, sr.Error)
	}
	if sr.Data.Markdown == "" && sr.Data.HTML == "" {
		return nil, ErrNoContent
	}

	c.logger.Debug("scraped page",
		"url", rawURL,
		"markdown_bytes", len(sr.Data.Markdown),
		"html_bytes", len(sr.Data.HTML),
	)

	return &Result{
		Markdown: sr.Data.Markdown,
		HTML:     sr.Data.HTML,
		Metadata: sr.Data.Metadata,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
