package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/mock/gomock"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/ratelimit"
)

func makeArticles(start, n int) []domain.Article {
	articles := make([]domain.Article, n)
	for i := range articles {
		id := start + i
		articles[i] = domain.Article{
			PocketID: fmt.Sprintf("%d", id),
			Title:    fmt.Sprintf("Article %d", id),
			URL:      fmt.Sprintf("https://example.com/%d", id),
		}
	}
	return articles
}

func (s *ServiceTestSuite) expectSyncStateUpdate() {
	s.syncState.EXPECT().Get(gomock.Any(), SourceID).Return(&domain.SyncState{SourceID: SourceID}, nil)
	s.syncState.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *ServiceTestSuite) TestSync_PaginatesUntilShortPage() {
	ctx := context.Background()

	firstPage := makeArticles(1, 30)
	secondPage := makeArticles(31, 5)

	s.collection.EXPECT().Total(ctx).Return(35, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(firstPage, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 30).Return(secondPage, nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil).Times(2)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil).Times(35)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionCreated).Return(nil).Times(35)

	s.expectSyncStateUpdate()

	stats, err := s.service.Sync(ctx, false)

	s.NoError(err)
	s.Equal(35, stats.Total)
	s.Equal(35, stats.Fetched)
	s.Equal(35, stats.New)
	s.Equal(0, stats.Skipped)
	s.Equal(35, stats.Published)
}

func (s *ServiceTestSuite) TestSync_SkipsExistingRecords() {
	ctx := context.Background()

	page := makeArticles(1, 2)

	s.collection.EXPECT().Total(ctx).Return(2, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(page, nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, []string{"1", "2"}).Return(map[string]bool{"1": true}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), &page[1]).Return(nil)
	s.publisher.EXPECT().Publish(ctx, &page[1], ActionCreated).Return(nil)

	s.expectSyncStateUpdate()

	stats, err := s.service.Sync(ctx, false)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Merged)
}

func (s *ServiceTestSuite) TestSync_MergeRefreshesExisting() {
	ctx := context.Background()

	page := makeArticles(1, 1)

	s.collection.EXPECT().Total(ctx).Return(1, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(page, nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, []string{"1"}).Return(map[string]bool{"1": true}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Merge(gomock.Any(), &page[0]).Return(nil)
	s.publisher.EXPECT().Publish(ctx, &page[0], ActionUpdated).Return(nil)

	s.expectSyncStateUpdate()

	stats, err := s.service.Sync(ctx, true)

	s.NoError(err)
	s.Equal(1, stats.Merged)
	s.Equal(0, stats.Skipped)
	s.Equal(0, stats.New)
}

func (s *ServiceTestSuite) TestSync_QuotaExhaustionYieldsPartialResult() {
	ctx := context.Background()

	firstPage := makeArticles(1, 30)

	s.collection.EXPECT().Total(ctx).Return(60, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(firstPage, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 30).Return(nil, ratelimit.ErrQuotaExhausted)

	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil).Times(30)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionCreated).Return(nil).Times(30)

	s.expectSyncStateUpdate()

	stats, err := s.service.Sync(ctx, false)

	s.NoError(err)
	s.Equal(30, stats.Fetched)
	s.Equal(30, stats.New)
}

func (s *ServiceTestSuite) TestSync_TotalProbeError() {
	ctx := context.Background()

	s.collection.EXPECT().Total(ctx).Return(0, errors.New("api down"))

	stats, err := s.service.Sync(ctx, false)

	s.Error(err)
	s.Nil(stats)
	s.Contains(err.Error(), "probe remote total")
}

func (s *ServiceTestSuite) TestSync_InsertErrorCountedNotFatal() {
	ctx := context.Background()

	page := makeArticles(1, 2)

	s.collection.EXPECT().Total(ctx).Return(2, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(page, nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), &page[0]).Return(errors.New("constraint violation"))
	s.articles.EXPECT().Insert(gomock.Any(), &page[1]).Return(nil)
	s.publisher.EXPECT().Publish(ctx, &page[1], ActionCreated).Return(nil)

	s.expectSyncStateUpdate()

	stats, err := s.service.Sync(ctx, false)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Errors)
}

func (s *ServiceTestSuite) TestSyncSince_MergesAndAdvancesCursor() {
	ctx := context.Background()

	page := makeArticles(1, 1)

	s.syncState.EXPECT().Get(ctx, SourceID).Return(&domain.SyncState{SourceID: SourceID, LastSince: 100}, nil)
	s.collection.EXPECT().FetchSince(ctx, int64(100)).Return(page, int64(200), nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, []string{"1"}).Return(map[string]bool{"1": true}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Merge(gomock.Any(), &page[0]).Return(nil)
	s.publisher.EXPECT().Publish(ctx, &page[0], ActionUpdated).Return(nil)

	s.syncState.EXPECT().Get(ctx, SourceID).Return(&domain.SyncState{SourceID: SourceID, LastSince: 100}, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, state *domain.SyncState) error {
			s.Equal(int64(200), state.LastSince)
			return nil
		},
	)

	stats, err := s.service.SyncSince(ctx)

	s.NoError(err)
	s.Equal(1, stats.Fetched)
	s.Equal(1, stats.Merged)
}

func (s *ServiceTestSuite) TestSync_NilPublisher() {
	ctx := context.Background()

	service := New(Deps{
		Collection: s.collection,
		Articles:   s.articles,
		SyncState:  s.syncState,
		TxManager:  s.txManager,
	}, s.logger, s.cfg)

	page := makeArticles(1, 1)

	s.collection.EXPECT().Total(ctx).Return(1, nil)
	s.collection.EXPECT().FetchPage(ctx, 30, 0).Return(page, nil)
	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.expectSyncStateUpdate()

	stats, err := service.Sync(ctx, false)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(0, stats.Published)
}
