package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/pocket"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

// Reconcile lists the pocket IDs present remotely but absent from the
// local store, in ascending ID order.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	remote, err := s.collection.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote ids: %w", err)
	}

	local, err := s.articles.PocketIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local ids: %w", err)
	}

	localSet := make(map[string]struct{}, len(local))
	for _, id := range local {
		localSet[id] = struct{}{}
	}

	var missing []string
	for _, id := range remote {
		if _, ok := localSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// BackfillMissing loads the records Reconcile found missing, in batches
// with bounded retries. A batch that keeps failing is logged and
// skipped so one bad batch cannot block the rest.
func (s *Service) BackfillMissing(ctx context.Context, batchSize int) (*domain.BackfillStats, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.BackfillBatchSize
	}

	missing, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.BackfillStats{Missing: len(missing)}
	if len(missing) == 0 {
		s.logger.Info("local store already holds every remote record")
		return stats, nil
	}

	s.logger.Info("backfilling missing records",
		"missing", len(missing), "batch_size", batchSize)

	for start := 0; start < len(missing); start += batchSize {
		end := start + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		page, err := s.fetchBatch(ctx, batch)
		if errors.Is(err, pocket.ErrAuth) {
			return stats, err
		}
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			s.logger.Warn("request quota exhausted, stopping backfill",
				"loaded", stats.Loaded, "remaining", len(missing)-start)
			break
		}
		if err != nil {
			stats.FailedBatches++
			s.logger.Error("backfill batch failed, skipping",
				"batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}

		syncStats := &domain.SyncStats{}
		if err := s.storePage(ctx, page, false, syncStats); err != nil {
			stats.FailedBatches++
			s.logger.Error("failed to store backfill batch",
				"batch_start", start, "error", err)
			continue
		}
		stats.Loaded += syncStats.New
	}

	s.logger.Info("backfill completed",
		"missing", stats.Missing,
		"loaded", stats.Loaded,
		"failed_batches", stats.FailedBatches,
	)
	return stats, nil
}

// fetchBatch fetches one ID batch with bounded exponential backoff.
// Credential and quota errors are returned immediately.
func (s *Service) fetchBatch(ctx context.Context, ids []string) ([]domain.Article, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.BackfillMaxAttempts; attempt++ {
		page, err := s.collection.FetchByIDs(ctx, ids)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, pocket.ErrAuth) || errors.Is(err, ratelimit.ErrQuotaExhausted) {
			return nil, err
		}

		lastErr = err
		if attempt == s.cfg.BackfillMaxAttempts {
			break
		}
		wait := s.backoff(attempt)
		s.logger.Warn("batch fetch failed, retrying",
			"attempt", attempt, "wait", wait, "error", err)
		s.sleep(wait)
	}
	return nil, fmt.Errorf("fetch batch after %d attempts: %w", s.cfg.BackfillMaxAttempts, lastErr)
}
