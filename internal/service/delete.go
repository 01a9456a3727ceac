package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/pocket"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

// BulkDelete removes every locally known record from the remote
// collection, then from the local store. The local row is deleted only
// after the remote deletion is confirmed, so an interrupted run leaves
// the local store a superset of what was removed remotely.
func (s *Service) BulkDelete(ctx context.Context) (*domain.DeleteStats, error) {
	ids, err := s.articles.PocketIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local ids: %w", err)
	}

	stats := &domain.DeleteStats{Total: len(ids)}
	s.logger.Info("starting bulk deletion",
		"total", len(ids), "batch_size", s.cfg.DeleteBatchSize)

	for start := 0; start < len(ids); start += s.cfg.DeleteBatchSize {
		if start > 0 {
			s.sleep(s.cfg.InterBatchDelay)
		}

		end := start + s.cfg.DeleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		actions := make([]pocket.Action, len(batch))
		for i, id := range batch {
			actions[i] = pocket.Action{Action: "delete", ItemID: id}
		}

		results, err := s.collection.SendActions(ctx, actions)
		if errors.Is(err, pocket.ErrAuth) {
			return stats, fmt.Errorf("delete batch at %d: %w", start, err)
		}
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			s.logger.Warn("request quota exhausted, stopping bulk deletion",
				"deleted", stats.RemoteDeleted, "remaining", len(ids)-start)
			break
		}

		var failed []string
		if err != nil {
			// Whole-batch failure: fall back to per-item retries.
			s.logger.Warn("delete batch failed, retrying items individually",
				"batch_start", start, "error", err)
			failed = batch
		} else {
			for i, ok := range results {
				if ok {
					s.confirmDeleted(ctx, batch[i], stats)
				} else {
					failed = append(failed, batch[i])
				}
			}
		}

		for _, id := range failed {
			err := s.retryDelete(ctx, id)
			if errors.Is(err, pocket.ErrAuth) {
				return stats, fmt.Errorf("delete %s: %w", id, err)
			}
			if errors.Is(err, ratelimit.ErrQuotaExhausted) {
				s.logger.Warn("request quota exhausted during item retries",
					"deleted", stats.RemoteDeleted)
				return stats, nil
			}
			if err != nil {
				stats.Failed++
				s.logger.Error("failed to delete item remotely", "pocket_id", id, "error", err)
				continue
			}
			s.confirmDeleted(ctx, id, stats)
		}
	}

	s.logger.Info("bulk deletion completed",
		"total", stats.Total,
		"remote_deleted", stats.RemoteDeleted,
		"local_deleted", stats.LocalDeleted,
		"failed", stats.Failed,
	)
	return stats, nil
}

// retryDelete issues a single-item delete action with bounded retries.
func (s *Service) retryDelete(ctx context.Context, id string) error {
	action := []pocket.Action{{Action: "delete", ItemID: id}}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.DeleteActionRetries; attempt++ {
		results, err := s.collection.SendActions(ctx, action)
		if err == nil && len(results) == 1 && results[0] {
			return nil
		}
		if errors.Is(err, pocket.ErrAuth) || errors.Is(err, ratelimit.ErrQuotaExhausted) {
			return err
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("remote rejected delete action for %s", id)
		}
		if attempt == s.cfg.DeleteActionRetries {
			break
		}
		s.sleep(s.backoff(attempt))
	}
	return fmt.Errorf("after %d attempts: %w", s.cfg.DeleteActionRetries, lastErr)
}

// confirmDeleted removes the local row once the remote side confirmed.
func (s *Service) confirmDeleted(ctx context.Context, id string, stats *domain.DeleteStats) {
	stats.RemoteDeleted++

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.articles.Delete(txCtx, id)
	})
	if err != nil {
		stats.Failed++
		s.logger.Error("remote record deleted but local removal failed",
			"pocket_id", id, "error", err)
		return
	}
	stats.LocalDeleted++
	s.publish(ctx, &domain.Article{PocketID: id}, ActionDeleted)
}

// Status compares the remote collection against the local store.
type Status struct {
	RemoteTotal  int
	LocalCount   int
	Enriched     int
	InSync       bool
	LastSyncedAt time.Time
	TotalSynced  int64
}

// Status reports sync coverage without mutating anything.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	remoteTotal, err := s.collection.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe remote total: %w", err)
	}

	localCount, err := s.articles.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count local articles: %w", err)
	}

	enriched, err := s.articles.CountEnriched(ctx)
	if err != nil {
		return nil, fmt.Errorf("count enriched articles: %w", err)
	}

	state, err := s.syncState.Get(ctx, SourceID)
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	return &Status{
		RemoteTotal:  remoteTotal,
		LocalCount:   localCount,
		Enriched:     enriched,
		InSync:       localCount >= remoteTotal,
		LastSyncedAt: state.LastSyncedAt,
		TotalSynced:  state.TotalSynced,
	}, nil
}
