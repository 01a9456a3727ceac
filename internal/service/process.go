package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/pocket"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

// Process generates summaries and tags for every enriched article that
// has none yet. Per-article failures are logged and skipped.
func (s *Service) Process(ctx context.Context) (*domain.ProcessStats, error) {
	start := time.Now()

	articles, err := s.articles.ListUnsummarized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unsummarized articles: %w", err)
	}

	stats := &domain.ProcessStats{Candidates: len(articles)}
	s.logger.Info("starting summarization pass", "candidates", len(articles))

	for i := range articles {
		article := &articles[i]
		if article.Content == "" || article.Summarized() {
			continue
		}

		summaries, err := s.summarizer.GenerateSummaries(ctx, article.Content)
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to generate summaries",
				"pocket_id", article.PocketID, "error", err)
			continue
		}

		tags, err := s.summarizer.GenerateTags(ctx, article.Content)
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to generate tags",
				"pocket_id", article.PocketID, "error", err)
			continue
		}

		article.Summary20 = summaries.Words20
		article.Summary50 = summaries.Words50
		article.Summary100 = summaries.Words100
		article.UnlimitedSummary = summaries.Unlimited
		article.Tags = strings.Join(tags, ",")

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.articles.UpdateSummaries(txCtx, article)
		})
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to store summaries",
				"pocket_id", article.PocketID, "error", err)
			continue
		}

		stats.Processed++
		s.publish(ctx, article, ActionProcessed)
	}

	stats.Duration = time.Since(start)
	s.logger.Info("summarization pass completed",
		"candidates", stats.Candidates,
		"processed", stats.Processed,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}

// PushTags writes locally generated tags back to the remote
// collection. Credential failures abort the run; quota exhaustion
// stops it with the progress made so far.
func (s *Service) PushTags(ctx context.Context) (*domain.PushStats, error) {
	articles, err := s.articles.ListTagged(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tagged articles: %w", err)
	}

	stats := &domain.PushStats{Tagged: len(articles)}
	s.logger.Info("pushing tags to remote collection", "articles", len(articles))

	for i := range articles {
		article := &articles[i]
		err := s.collection.AddTags(ctx, article.PocketID, article.TagList())
		if errors.Is(err, pocket.ErrAuth) {
			return stats, fmt.Errorf("push tags for %s: %w", article.PocketID, err)
		}
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			s.logger.Warn("request quota exhausted, stopping tag push",
				"pushed", stats.Pushed, "remaining", len(articles)-i)
			break
		}
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to push tags",
				"pocket_id", article.PocketID, "error", err)
			continue
		}
		stats.Pushed++
	}

	s.logger.Info("tag push completed",
		"tagged", stats.Tagged, "pushed", stats.Pushed, "errors", stats.Errors)
	return stats, nil
}
