package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/firecrawl"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
	"github.com/po4yka/pocket-gpt/internal/retry"
)

func (s *ServiceTestSuite) expectLedgerSummary() {
	s.ledger.EXPECT().Stats().Return(map[domain.FetchErrorType]int{})
	s.ledger.EXPECT().Report()
}

func (s *ServiceTestSuite) TestEnrich_ScrapesAndCommits() {
	ctx := context.Background()

	articles := makeArticles(1, 1)
	result := &firecrawl.Result{
		Markdown: "# Heading\n\nBody text.",
		HTML:     "<h1>Heading</h1><p>Body text.</p>",
		Metadata: map[string]any{"author": "Jane Roe"},
	}

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{}, false)
	s.limiter.EXPECT().Acquire().Return(nil)
	s.scraper.EXPECT().Scrape(ctx, articles[0].URL).Return(result, nil)

	s.expectTransactions()
	s.articles.EXPECT().UpdateContent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, article *domain.Article) error {
			s.Equal("# Heading\n\nBody text.", article.Content)
			s.Equal("Jane Roe", article.Author)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionEnriched).Return(nil)

	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(1, stats.Candidates)
	s.Equal(1, stats.Succeeded)
	s.Equal(0, stats.Failed)
}

func (s *ServiceTestSuite) TestEnrich_DenylistedURLNeverReachesNetwork() {
	ctx := context.Background()

	articles := []domain.Article{{PocketID: "1", URL: "https://twitter.com/someone/status/1"}}

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{
		Terminal: true,
		Type:     domain.ErrorSocialMedia,
		Message:  "social media URL is not fetchable",
	}, true)
	s.ledger.EXPECT().Record(gomock.Any(), gomock.Any()).Do(
		func(_ *domain.Article, fetchErr domain.FetchError) {
			s.Equal(domain.ErrorSocialMedia, fetchErr.Type)
		},
	)

	// No limiter or scraper expectations: a denylisted record must not
	// consume rate-limit budget.
	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(1, stats.Failed)
	s.Equal(0, stats.Succeeded)
}

func (s *ServiceTestSuite) TestEnrich_RetriesAfterWait() {
	ctx := context.Background()

	articles := makeArticles(1, 1)
	rateLimited := &firecrawl.StatusError{Code: 429, Body: "Rate limit exceeded"}
	result := &firecrawl.Result{Markdown: "content"}

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{}, false)

	s.limiter.EXPECT().Acquire().Return(nil).Times(2)
	first := s.scraper.EXPECT().Scrape(ctx, articles[0].URL).Return(nil, rateLimited)
	s.scraper.EXPECT().Scrape(ctx, articles[0].URL).Return(result, nil).After(first)

	s.policy.EXPECT().Decide(articles[0].URL, 0, rateLimited).Return(retry.Decision{
		Wait: 3 * time.Second,
		Type: domain.ErrorRateLimit,
	})

	s.expectTransactions()
	s.articles.EXPECT().UpdateContent(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionEnriched).Return(nil)

	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(1, stats.Succeeded)
	s.Equal([]time.Duration{3 * time.Second}, s.slept)
}

func (s *ServiceTestSuite) TestEnrich_TerminalFailureRecordedAndPassContinues() {
	ctx := context.Background()

	articles := makeArticles(1, 2)
	blocked := &firecrawl.StatusError{Code: 403, Body: "forbidden"}
	result := &firecrawl.Result{Markdown: "content"}

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)

	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{}, false)
	s.limiter.EXPECT().Acquire().Return(nil).Times(2)
	s.scraper.EXPECT().Scrape(ctx, articles[0].URL).Return(nil, blocked)
	s.policy.EXPECT().Decide(articles[0].URL, 0, blocked).Return(retry.Decision{
		Terminal: true,
		Type:     domain.ErrorBlockedURL,
		Message:  "status 403",
	})
	s.ledger.EXPECT().Record(gomock.Any(), gomock.Any()).Do(
		func(_ *domain.Article, fetchErr domain.FetchError) {
			s.Equal(domain.ErrorBlockedURL, fetchErr.Type)
			s.Equal(403, fetchErr.ResponseCode)
		},
	)

	s.policy.EXPECT().Precheck(articles[1].URL).Return(retry.Decision{}, false)
	s.scraper.EXPECT().Scrape(ctx, articles[1].URL).Return(result, nil)
	s.expectTransactions()
	s.articles.EXPECT().UpdateContent(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionEnriched).Return(nil)

	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(1, stats.Failed)
	s.Equal(1, stats.Succeeded)
}

func (s *ServiceTestSuite) TestEnrich_QuotaExhaustionStopsPass() {
	ctx := context.Background()

	articles := makeArticles(1, 3)

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{}, false)
	s.limiter.EXPECT().Acquire().Return(ratelimit.ErrQuotaExhausted)

	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(3, stats.Candidates)
	s.Equal(0, stats.Succeeded)
	s.Equal(0, stats.Failed)
}

func (s *ServiceTestSuite) TestEnrich_CommitFailureLeavesRecordUnenriched() {
	ctx := context.Background()

	articles := makeArticles(1, 1)
	result := &firecrawl.Result{Markdown: "content"}

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.policy.EXPECT().Precheck(articles[0].URL).Return(retry.Decision{}, false)
	s.limiter.EXPECT().Acquire().Return(nil)
	s.scraper.EXPECT().Scrape(ctx, articles[0].URL).Return(result, nil)

	s.expectTransactions()
	s.articles.EXPECT().UpdateContent(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))
	s.ledger.EXPECT().Record(gomock.Any(), gomock.Any()).Do(
		func(_ *domain.Article, fetchErr domain.FetchError) {
			s.Equal(domain.ErrorUnknown, fetchErr.Type)
			s.Contains(fetchErr.Message, "local commit failed")
		},
	)

	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(1, stats.Failed)
	s.Equal(0, stats.Succeeded)
}

func (s *ServiceTestSuite) TestEnrich_AlreadyEnrichedSkipped() {
	ctx := context.Background()

	articles := makeArticles(1, 1)
	articles[0].Content = "already here"

	s.articles.EXPECT().ListUnenriched(ctx).Return(articles, nil)
	s.expectLedgerSummary()

	stats, err := s.service.Enrich(ctx)

	s.NoError(err)
	s.Equal(0, stats.Succeeded)
	s.Equal(0, stats.Failed)
}
