package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

// Sync pulls the full remote collection page by page and inserts the
// records missing locally. Existing records are left untouched unless
// merge is set, in which case their remote fields are refreshed without
// clobbering enrichment columns.
func (s *Service) Sync(ctx context.Context, merge bool) (*domain.SyncStats, error) {
	start := time.Now()
	stats := &domain.SyncStats{}

	total, err := s.collection.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe remote total: %w", err)
	}
	stats.Total = total

	s.logger.Info("starting sync",
		"remote_total", total,
		"page_size", s.cfg.PageSize,
		"merge", merge,
	)

	offset := 0
	for {
		page, err := s.collection.FetchPage(ctx, s.cfg.PageSize, offset)
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			s.logger.Warn("request quota exhausted, stopping with partial sync",
				"fetched", stats.Fetched,
				"remote_total", total,
			)
			break
		}
		if err != nil {
			return stats, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		if err := s.storePage(ctx, page, merge, stats); err != nil {
			return stats, err
		}

		stats.Fetched += len(page)
		offset += len(page)
		if len(page) < s.cfg.PageSize {
			break
		}
	}

	if err := s.recordSyncRun(ctx, int64(stats.New), 0); err != nil {
		s.logger.Error("failed to record sync state", "error", err)
	}

	stats.Duration = time.Since(start)
	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"skipped", stats.Skipped,
		"merged", stats.Merged,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}

// SyncSince pulls only the items changed since the last recorded sync
// and merges them into the store.
func (s *Service) SyncSince(ctx context.Context) (*domain.SyncStats, error) {
	start := time.Now()
	stats := &domain.SyncStats{}

	state, err := s.syncState.Get(ctx, SourceID)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	s.logger.Info("starting incremental sync", "since", state.LastSince)

	page, since, err := s.collection.FetchSince(ctx, state.LastSince)
	if err != nil {
		return stats, fmt.Errorf("fetch since %d: %w", state.LastSince, err)
	}
	stats.Fetched = len(page)

	if len(page) > 0 {
		if err := s.storePage(ctx, page, true, stats); err != nil {
			return stats, err
		}
	}

	if err := s.recordSyncRun(ctx, int64(stats.New), since); err != nil {
		s.logger.Error("failed to record sync state", "error", err)
	}

	stats.Duration = time.Since(start)
	s.logger.Info("incremental sync completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"merged", stats.Merged,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}

// storePage writes one page of remote records. Per-record failures are
// counted and logged, never fatal for the page.
func (s *Service) storePage(ctx context.Context, page []domain.Article, merge bool, stats *domain.SyncStats) error {
	ids := make([]string, len(page))
	for i := range page {
		ids[i] = page[i].PocketID
	}

	existing, err := s.articles.ExistingPocketIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("check existing records: %w", err)
	}

	for i := range page {
		article := &page[i]
		if existing[article.PocketID] {
			if !merge {
				stats.Skipped++
				continue
			}
			err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
				return s.articles.Merge(txCtx, article)
			})
			if err != nil {
				stats.Errors++
				s.logger.Error("failed to merge article", "pocket_id", article.PocketID, "error", err)
				continue
			}
			stats.Merged++
			if s.publish(ctx, article, ActionUpdated) {
				stats.Published++
			}
			continue
		}

		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.articles.Insert(txCtx, article)
		})
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to insert article", "pocket_id", article.PocketID, "error", err)
			continue
		}
		stats.New++
		if s.publish(ctx, article, ActionCreated) {
			stats.Published++
		}
	}
	return nil
}

// recordSyncRun advances the persisted cursor. A since of zero leaves
// the stored cursor unchanged.
func (s *Service) recordSyncRun(ctx context.Context, added, since int64) error {
	state, err := s.syncState.Get(ctx, SourceID)
	if err != nil {
		return err
	}
	state.SourceID = SourceID
	state.LastSyncedAt = time.Now().UTC()
	state.TotalSynced += added
	if since > 0 {
		state.LastSince = since
	}
	return s.syncState.Update(ctx, state)
}
