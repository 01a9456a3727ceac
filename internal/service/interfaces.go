package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/firecrawl"
	"github.com/po4yka/pocket-gpt/internal/openai"
	"github.com/po4yka/pocket-gpt/internal/pocket"
	"github.com/po4yka/pocket-gpt/internal/retry"
)

type ArticleStore interface {
	Insert(ctx context.Context, article *domain.Article) error
	Merge(ctx context.Context, article *domain.Article) error
	ExistingPocketIDs(ctx context.Context, ids []string) (map[string]bool, error)
	PocketIDs(ctx context.Context) ([]string, error)
	ListUnenriched(ctx context.Context) ([]domain.Article, error)
	ListUnsummarized(ctx context.Context) ([]domain.Article, error)
	ListTagged(ctx context.Context) ([]domain.Article, error)
	UpdateContent(ctx context.Context, article *domain.Article) error
	UpdateSummaries(ctx context.Context, article *domain.Article) error
	Delete(ctx context.Context, pocketID string) error
	Count(ctx context.Context) (int, error)
	CountEnriched(ctx context.Context) (int, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

// Collection is the remote bookmark service.
type Collection interface {
	Total(ctx context.Context) (int, error)
	FetchPage(ctx context.Context, count, offset int) ([]domain.Article, error)
	FetchSince(ctx context.Context, since int64) ([]domain.Article, int64, error)
	ListIDs(ctx context.Context) ([]string, error)
	FetchByIDs(ctx context.Context, ids []string) ([]domain.Article, error)
	SendActions(ctx context.Context, actions []pocket.Action) ([]bool, error)
	AddTags(ctx context.Context, itemID string, tags []string) error
}

// Scraper is the content-scraping endpoint.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*firecrawl.Result, error)
}

// Summarizer is the language-model endpoint.
type Summarizer interface {
	GenerateSummaries(ctx context.Context, content string) (*openai.Summaries, error)
	GenerateTags(ctx context.Context, content string) ([]string, error)
}

// Limiter paces the scraping endpoint.
type Limiter interface {
	Acquire() error
	Exhausted() bool
}

// RetryPolicy classifies scrape failures and computes backoff waits.
type RetryPolicy interface {
	Precheck(rawURL string) (retry.Decision, bool)
	Decide(rawURL string, retries int, err error) retry.Decision
}

// FailureLedger accumulates classified failures for reporting.
type FailureLedger interface {
	Record(article *domain.Article, fetchErr domain.FetchError)
	Stats() map[domain.FetchErrorType]int
	Report()
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.Article, action string) error
	Close() error
}
