package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
)

// Syncer runs one incremental sync pass.
type Syncer interface {
	SyncSince(ctx context.Context) (*domain.SyncStats, error)
}

// Enricher runs one content enrichment pass.
type Enricher interface {
	Enrich(ctx context.Context) (*domain.EnrichStats, error)
}

// Scheduler periodically syncs and then enriches what the sync added.
type Scheduler struct {
	syncer   Syncer
	enricher Enricher
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, enricher Enricher, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		enricher: enricher,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	// Generous bound: an enrichment pass over a fresh backlog paces
	// itself at one request every few seconds.
	runCtx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()

	if _, err := s.syncer.SyncSince(runCtx); err != nil {
		s.logger.Error("scheduled sync failed", "error", err)
		return
	}

	if s.enricher == nil {
		return
	}
	if _, err := s.enricher.Enrich(runCtx); err != nil {
		s.logger.Error("scheduled enrichment failed", "error", err)
	}
}
