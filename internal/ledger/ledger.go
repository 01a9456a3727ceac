// Package ledger accumulates classified enrichment failures per
// record. It is diagnostic state only, never authoritative.
package ledger

import (
	"log/slog"
	"sort"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
)

// Ledger collects FetchErrors keyed by pocket ID for one process run.
type Ledger struct {
	failures map[string][]domain.FetchError
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		failures: make(map[string][]domain.FetchError),
		logger:   logger,
		now:      time.Now,
	}
}

// Record logs and stores one classified failure for an article.
func (l *Ledger) Record(article *domain.Article, fetchErr domain.FetchError) {
	if fetchErr.Timestamp.IsZero() {
		fetchErr.Timestamp = l.now()
	}
	l.failures[article.PocketID] = append(l.failures[article.PocketID], fetchErr)

	l.logger.Warn("failed to fetch content for article",
		"pocket_id", article.PocketID,
		"url", article.URL,
		"title", article.Title,
		"error_type", fetchErr.Type.String(),
		"message", fetchErr.Message,
		"details", fetchErr.Details,
		"response_code", fetchErr.ResponseCode,
	)
}

// Failures returns the recorded errors for one article.
func (l *Ledger) Failures(pocketID string) []domain.FetchError {
	return l.failures[pocketID]
}

// FailedCount returns the number of articles with at least one
// recorded failure.
func (l *Ledger) FailedCount() int {
	return len(l.failures)
}

// Stats counts the latest failure of every article per category.
func (l *Ledger) Stats() map[domain.FetchErrorType]int {
	stats := make(map[domain.FetchErrorType]int)
	for _, errs := range l.failures {
		last := errs[len(errs)-1]
		stats[last.Type]++
	}
	return stats
}

// Report emits the aggregate per-category counts at the end of a run.
func (l *Ledger) Report() {
	stats := l.Stats()
	if len(stats) == 0 {
		l.logger.Info("no enrichment failures recorded")
		return
	}

	types := make([]domain.FetchErrorType, 0, len(stats))
	for t := range stats {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	attrs := make([]any, 0, len(types)*2+2)
	attrs = append(attrs, "failed_articles", len(l.failures))
	for _, t := range types {
		attrs = append(attrs, t.String(), stats[t])
	}
	l.logger.Info("enrichment failure report", attrs...)
}
