// Package pocket is a client for the Pocket v3 API: paginated
// retrieval, batch fetch by IDs, and send actions (delete, tags_add).
// Every call is paced by the injected rate limiter and additionally
// honors the server-reported X-Limit-* headers.
package pocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

// ErrAuth marks authentication-class failures (invalid or expired
// credentials). Callers must abort retries immediately.
var ErrAuth = errors.New("pocket: authentication failed")

// StatusError is a non-2xx, non-auth response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pocket: unexpected status %d: %s", e.Code, e.Body)
}

// Config holds Pocket client configuration.
type Config struct {
	ConsumerKey string
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
}

// Client talks to the Pocket API for one account.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	consumerKey string
	accessToken string
	limiter     *ratelimit.Limiter
	logger      *slog.Logger

	sleep func(time.Duration)
}

// New creates a Pocket client paced by the given limiter.
func New(cfg Config, limiter *ratelimit.Limiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://getpocket.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     cfg.BaseURL,
		consumerKey: cfg.ConsumerKey,
		accessToken: cfg.AccessToken,
		limiter:     limiter,
		logger:      logger.With("client", "pocket"),
		sleep:       time.Sleep,
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Acquire(); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(raw)))
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.checkRateLimit(resp.Header)
	return nil
}

// checkRateLimit honors the server-reported back-pressure signal,
// independent of the local limiter.
func (c *Client) checkRateLimit(h http.Header) {
	userRemaining, _ := strconv.Atoi(h.Get("X-Limit-User-Remaining"))
	keyRemaining, _ := strconv.Atoi(h.Get("X-Limit-Key-Remaining"))

	if h.Get("X-Limit-User-Remaining") != "" && userRemaining == 0 {
		reset, _ := strconv.Atoi(h.Get("X-Limit-User-Reset"))
		c.logger.Warn("user rate limit reached, waiting", "reset_seconds", reset)
		c.sleep(time.Duration(reset) * time.Second)
	}

	if h.Get("X-Limit-Key-Remaining") != "" && keyRemaining == 0 {
		reset, _ := strconv.Atoi(h.Get("X-Limit-Key-Reset"))
		c.logger.Warn("consumer key rate limit reached, waiting", "reset_seconds", reset)
		c.sleep(time.Duration(reset) * time.Second)
	}
}

func (c *Client) getRequest() getRequest {
	return getRequest{
		ConsumerKey: c.consumerKey,
		AccessToken: c.accessToken,
	}
}

// Total probes the remote collection size with a minimal request.
func (c *Client) Total(ctx context.Context) (int, error) {
	payload := c.getRequest()
	payload.State = "all"
	payload.Count = 1
	payload.DetailType = "simple"
	payload.Total = "1"

	var resp getResponse
	if err := c.post(ctx, "/v3/get", payload, &resp); err != nil {
		return 0, err
	}

	raw := strings.Trim(strings.TrimSpace(string(resp.Total)), `"`)
	if raw == "" {
		return 0, nil
	}
	total, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse total %q: %w", raw, err)
	}
	return total, nil
}

// FetchPage retrieves one page of the collection with complete detail.
func (c *Client) FetchPage(ctx context.Context, count, offset int) ([]domain.Article, error) {
	payload := c.getRequest()
	payload.State = "all"
	payload.Count = count
	payload.Offset = offset
	payload.DetailType = "complete"

	var resp getResponse
	if err := c.post(ctx, "/v3/get", payload, &resp); err != nil {
		return nil, err
	}
	return c.transform(&resp)
}

// FetchSince retrieves items changed since the given unix timestamp
// and returns the server's new since marker.
func (c *Client) FetchSince(ctx context.Context, since int64) ([]domain.Article, int64, error) {
	payload := c.getRequest()
	payload.State = "all"
	payload.DetailType = "complete"
	payload.Since = since

	var resp getResponse
	if err := c.post(ctx, "/v3/get", payload, &resp); err != nil {
		return nil, 0, err
	}
	articles, err := c.transform(&resp)
	if err != nil {
		return nil, 0, err
	}
	return articles, resp.Since, nil
}

// ListIDs retrieves every remote item ID with minimal detail.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	payload := c.getRequest()
	payload.State = "all"
	payload.DetailType = "simple"

	var resp getResponse
	if err := c.post(ctx, "/v3/get", payload, &resp); err != nil {
		return nil, err
	}

	items, err := resp.items()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FetchByIDs retrieves only the named items with complete detail.
func (c *Client) FetchByIDs(ctx context.Context, ids []string) ([]domain.Article, error) {
	payload := c.getRequest()
	payload.DetailType = "complete"
	payload.ItemIDs = strings.Join(ids, ",")

	var resp getResponse
	if err := c.post(ctx, "/v3/get", payload, &resp); err != nil {
		return nil, err
	}
	return c.transform(&resp)
}

// SendActions submits a batch of actions and returns the per-action
// confirmations in request order.
func (c *Client) SendActions(ctx context.Context, actions []Action) ([]bool, error) {
	payload := sendRequest{
		ConsumerKey: c.consumerKey,
		AccessToken: c.accessToken,
		Actions:     actions,
	}

	var resp sendResponse
	if err := c.post(ctx, "/v3/send", payload, &resp); err != nil {
		return nil, err
	}

	results := make([]bool, len(actions))
	for i := range results {
		if i < len(resp.ActionResults) {
			results[i] = !bytes.Equal(bytes.TrimSpace(resp.ActionResults[i]), []byte("false"))
		} else {
			results[i] = resp.Status == 1
		}
	}
	return results, nil
}

// AddTags attaches tags to one remote item.
func (c *Client) AddTags(ctx context.Context, itemID string, tags []string) error {
	results, err := c.SendActions(ctx, []Action{{
		Action: "tags_add",
		ItemID: itemID,
		Tags:   strings.Join(tags, ","),
	}})
	if err != nil {
		return err
	}
	if len(results) == 0 || !results[0] {
		return fmt.Errorf("pocket: tags_add rejected for item %s", itemID)
	}
	return nil
}

func (c *Client) transform(resp *getResponse) ([]domain.Article, error) {
	items, err := resp.items()
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(items))
	for id, raw := range items {
		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			c.logger.Warn("skipping undecodable item", "item_id", id, "error", err)
			continue
		}
		if item.ItemID == "" {
			item.ItemID = id
		}
		articles = append(articles, itemToArticle(item, raw))
	}

	// Map iteration order is random; keep output deterministic.
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PocketID < articles[j].PocketID
	})
	return articles, nil
}

func itemToArticle(item Item, raw json.RawMessage) domain.Article {
	title := item.ResolvedTitle
	if title == "" {
		title = item.GivenTitle
	}
	rawURL := item.ResolvedURL
	if rawURL == "" {
		rawURL = item.GivenURL
	}

	tags := make([]string, 0, len(item.Tags))
	for tag := range item.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	wordCount, _ := strconv.Atoi(item.WordCount)

	return domain.Article{
		PocketID:    item.ItemID,
		Title:       title,
		URL:         rawURL,
		Tags:        strings.Join(tags, ","),
		PocketData:  string(raw),
		WordCount:   wordCount,
		ReadingTime: item.TimeToRead,
	}
}
