// Package service orchestrates the sync, enrichment, summarization
// and deletion passes over the local article store.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/po4yka/pocket-gpt/internal/config"
	"github.com/po4yka/pocket-gpt/internal/domain"
)

// SourceID identifies the remote collection in sync state.
const SourceID = "pocket"

// Lifecycle event actions published to the broker.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionEnriched  = "enriched"
	ActionProcessed = "processed"
	ActionDeleted   = "deleted"
)

// Deps bundles the collaborators of a Service.
type Deps struct {
	Collection Collection
	Scraper    Scraper
	Summarizer Summarizer
	Limiter    Limiter
	Policy     RetryPolicy
	Ledger     FailureLedger
	Articles   ArticleStore
	SyncState  SyncStateStore
	TxManager  TransactionManager
	Publisher  Publisher // optional; nil disables event publishing
}

// Service runs the passes. Single-threaded cooperative use only: the
// rate limiters assume one in-flight request at a time.
type Service struct {
	collection Collection
	scraper    Scraper
	summarizer Summarizer
	limiter    Limiter
	policy     RetryPolicy
	ledger     FailureLedger
	articles   ArticleStore
	syncState  SyncStateStore
	txManager  TransactionManager
	publisher  Publisher
	logger     *slog.Logger
	cfg        config.SyncConfig

	sleep func(time.Duration)
}

// New creates a Service.
func New(deps Deps, logger *slog.Logger, cfg config.SyncConfig) *Service {
	return &Service{
		collection: deps.Collection,
		scraper:    deps.Scraper,
		summarizer: deps.Summarizer,
		limiter:    deps.Limiter,
		policy:     deps.Policy,
		ledger:     deps.Ledger,
		articles:   deps.Articles,
		syncState:  deps.SyncState,
		txManager:  deps.TxManager,
		publisher:  deps.Publisher,
		logger:     logger.With("source", SourceID),
		cfg:        cfg,
		sleep:      time.Sleep,
	}
}

// publish emits one lifecycle event and reports whether it was
// accepted. A nil publisher silently drops events.
func (s *Service) publish(ctx context.Context, article *domain.Article, action string) bool {
	if s.publisher == nil {
		return false
	}
	if err := s.publisher.Publish(ctx, article, action); err != nil {
		s.logger.Error("failed to publish event",
			"pocket_id", article.PocketID,
			"action", action,
			"error", err,
		)
		return false
	}
	return true
}

// backoff computes the bounded exponential wait before the given
// 1-based retry attempt.
func (s *Service) backoff(attempt int) time.Duration {
	wait := s.cfg.BackfillInitialBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
	}
	if wait > s.cfg.BackfillMaxBackoff {
		wait = s.cfg.BackfillMaxBackoff
	}
	return wait
}
