package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/firecrawl"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
	"github.com/po4yka/pocket-gpt/internal/retry"
)

// Enrich scrapes full content for every article that has none yet.
// Per-article failures are classified, recorded in the ledger and never
// halt the pass; only an exhausted request quota stops it early.
func (s *Service) Enrich(ctx context.Context) (*domain.EnrichStats, error) {
	start := time.Now()

	articles, err := s.articles.ListUnenriched(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unenriched articles: %w", err)
	}

	stats := &domain.EnrichStats{Candidates: len(articles)}
	s.logger.Info("starting enrichment pass", "candidates", len(articles))

	for i := range articles {
		article := &articles[i]
		if article.Enriched() {
			continue
		}

		err := s.enrichOne(ctx, article)
		if err == nil {
			stats.Succeeded++
			s.publish(ctx, article, ActionEnriched)
			continue
		}
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			s.logger.Warn("request quota exhausted, stopping enrichment pass",
				"processed", i,
				"remaining", len(articles)-i,
			)
			break
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Failed++
	}

	stats.ByType = s.ledger.Stats()
	s.ledger.Report()

	stats.Duration = time.Since(start)
	s.logger.Info("enrichment pass completed",
		"candidates", stats.Candidates,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	return stats, nil
}

// enrichOne runs the scrape-retry loop for a single article. It
// acquires a limiter slot before every network attempt, so denylisted
// records filtered by the precheck consume no budget.
func (s *Service) enrichOne(ctx context.Context, article *domain.Article) error {
	if decision, terminal := s.policy.Precheck(article.URL); terminal {
		s.ledger.Record(article, fetchErrorFrom(decision, nil))
		return errors.New(decision.Message)
	}

	retries := 0
	for {
		if err := s.limiter.Acquire(); err != nil {
			return err
		}

		result, err := s.scraper.Scrape(ctx, article.URL)
		if err == nil {
			if commitErr := s.commitEnrichment(ctx, article, result); commitErr != nil {
				s.ledger.Record(article, domain.FetchError{
					Type:    domain.ErrorUnknown,
					Message: "content fetched but local commit failed",
					Details: commitErr.Error(),
				})
				return fmt.Errorf("commit enrichment for %s: %w", article.PocketID, commitErr)
			}
			return nil
		}

		decision := s.policy.Decide(article.URL, retries, err)
		if decision.Terminal {
			s.ledger.Record(article, fetchErrorFrom(decision, err))
			return fmt.Errorf("fetch %s: %s", article.URL, decision.Message)
		}

		s.logger.Warn("scrape attempt failed, retrying",
			"pocket_id", article.PocketID,
			"retry", retries+1,
			"wait", decision.Wait,
			"error_type", decision.Type.String(),
			"error", err,
		)
		s.sleep(decision.Wait)
		retries++
	}
}

// commitEnrichment writes the scraped content in one transaction. The
// article row stays untouched when the transaction fails.
func (s *Service) commitEnrichment(ctx context.Context, article *domain.Article, result *firecrawl.Result) error {
	article.Content = sanitizeText(result.Markdown)
	article.ContentHTML = sanitizeText(result.HTML)

	if len(result.Metadata) > 0 {
		if article.Title == "" {
			if title, ok := result.Metadata["title"].(string); ok {
				article.Title = sanitizeText(title)
			}
		}
		if author := authorString(result.Metadata["author"]); author != "" {
			article.Author = author
		}
		article.Metadata = sanitizeMetadata(result.Metadata)
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.articles.UpdateContent(txCtx, article)
	})
}

func fetchErrorFrom(decision retry.Decision, err error) domain.FetchError {
	fetchErr := domain.FetchError{
		Type:    decision.Type,
		Message: decision.Message,
	}
	if err != nil {
		fetchErr.Details = err.Error()
		var statusErr *firecrawl.StatusError
		if errors.As(err, &statusErr) {
			fetchErr.ResponseCode = statusErr.Code
		}
	}
	return fetchErr
}

// sanitizeText strips byte sequences Postgres rejects as invalid UTF-8.
func sanitizeText(text string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(text, "\x00", ""), "")
}

// authorString flattens the metadata author field, which arrives as a
// string or as a list of strings depending on the page.
func authorString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return sanitizeText(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if name, ok := item.(string); ok && name != "" {
				parts = append(parts, sanitizeText(name))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return sanitizeText(fmt.Sprint(v))
	}
}

// sanitizeMetadata keeps only values that survive a JSON round trip so
// the row can be stored in a jsonb column.
func sanitizeMetadata(metadata map[string]any) domain.Metadata {
	cleaned := make(domain.Metadata, len(metadata))
	for key, value := range metadata {
		if text, ok := value.(string); ok {
			cleaned[key] = sanitizeText(text)
			continue
		}
		if _, err := json.Marshal(value); err != nil {
			cleaned[key] = fmt.Sprint(value)
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}
