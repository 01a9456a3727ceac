// Package openai is a chat-completions client used to generate
// article summaries and tags. It is a plain collaborator: callers
// decide which records to process.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds OpenAI client configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client performs chat-completion requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *slog.Logger
}

// New creates an OpenAI client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  logger.With("client", "openai"),
	}
}

// Summaries carries the fixed-length summary variants.
type Summaries struct {
	Words20   string
	Words50   string
	Words100  string
	Unlimited string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("api error (%s): %s", cr.Error.Type, cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("response carries no choices")
	}

	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

const summarizeSystem = "You are a helpful assistant that summarizes articles concisely and accurately."

func (c *Client) summarize(ctx context.Context, content string, wordLimit int) (string, error) {
	var user string
	if wordLimit > 0 {
		user = fmt.Sprintf(
			"Summarize the following content in exactly %d words. "+
				"Prioritize key points and maintain clarity:\n\n%s\n\nSummary (%d words):",
			wordLimit, content, wordLimit,
		)
	} else {
		user = fmt.Sprintf(
			"Provide a comprehensive summary of the following content "+
				"without any word limit. Capture all key points:\n\n%s\n\nUnlimited Summary:",
			content,
		)
	}
	return c.complete(ctx, summarizeSystem, user)
}

// GenerateSummaries produces the 20/50/100-word and unlimited
// summary variants for one content body.
func (c *Client) GenerateSummaries(ctx context.Context, content string) (*Summaries, error) {
	var s Summaries
	targets := []struct {
		limit int
		dst   *string
	}{
		{20, &s.Words20},
		{50, &s.Words50},
		{100, &s.Words100},
		{0, &s.Unlimited},
	}
	for _, target := range targets {
		summary, err := c.summarize(ctx, content, target.limit)
		if err != nil {
			return nil, fmt.Errorf("summary (%d words): %w", target.limit, err)
		}
		*target.dst = summary
	}
	return &s, nil
}

// GenerateTags produces relevant tags for one content body.
func (c *Client) GenerateTags(ctx context.Context, content string) ([]string, error) {
	system := "You are a helpful assistant that generates relevant and concise tags for articles."
	user := fmt.Sprintf(
		"Generate a comma-separated list of relevant tags based on the key "+
			"topics and themes in the following content:\n\n%s\n\nTags:",
		content,
	)

	text, err := c.complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}

	var tags []string
	for _, tag := range strings.Split(text, ",") {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}
