package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/po4yka/pocket-gpt/internal/pocket"
)

func (s *ServiceTestSuite) TestReconcile_FindsMissingIDs() {
	ctx := context.Background()

	s.collection.EXPECT().ListIDs(ctx).Return([]string{"1", "2", "3", "4"}, nil)
	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"2", "4"}, nil)

	missing, err := s.service.Reconcile(ctx)

	s.NoError(err)
	s.Equal([]string{"1", "3"}, missing)
}

func (s *ServiceTestSuite) TestBackfill_LoadsMissingInBatches() {
	ctx := context.Background()

	s.collection.EXPECT().ListIDs(ctx).Return([]string{"1", "2", "3"}, nil)
	s.articles.EXPECT().PocketIDs(ctx).Return(nil, nil)

	s.collection.EXPECT().FetchByIDs(ctx, []string{"1", "2"}).Return(makeArticles(1, 2), nil)
	s.collection.EXPECT().FetchByIDs(ctx, []string{"3"}).Return(makeArticles(3, 1), nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil).Times(2)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil).Times(3)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionCreated).Return(nil).Times(3)

	stats, err := s.service.BackfillMissing(ctx, 2)

	s.NoError(err)
	s.Equal(3, stats.Missing)
	s.Equal(3, stats.Loaded)
	s.Equal(0, stats.FailedBatches)
}

func (s *ServiceTestSuite) TestBackfill_FailingBatchSkippedAfterRetries() {
	ctx := context.Background()

	s.collection.EXPECT().ListIDs(ctx).Return([]string{"1", "2", "3"}, nil)
	s.articles.EXPECT().PocketIDs(ctx).Return(nil, nil)

	s.collection.EXPECT().FetchByIDs(ctx, []string{"1", "2"}).
		Return(nil, errors.New("server error")).Times(3)
	s.collection.EXPECT().FetchByIDs(ctx, []string{"3"}).Return(makeArticles(3, 1), nil)

	s.articles.EXPECT().ExistingPocketIDs(ctx, gomock.Any()).Return(map[string]bool{}, nil)
	s.expectTransactions()
	s.articles.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionCreated).Return(nil)

	stats, err := s.service.BackfillMissing(ctx, 2)

	s.NoError(err)
	s.Equal(1, stats.FailedBatches)
	s.Equal(1, stats.Loaded)
	s.Equal([]time.Duration{1 * time.Second, 2 * time.Second}, s.slept)
}

func (s *ServiceTestSuite) TestBackfill_AuthFailureAborts() {
	ctx := context.Background()

	s.collection.EXPECT().ListIDs(ctx).Return([]string{"1"}, nil)
	s.articles.EXPECT().PocketIDs(ctx).Return(nil, nil)

	s.collection.EXPECT().FetchByIDs(ctx, []string{"1"}).
		Return(nil, fmt.Errorf("fetch: %w", pocket.ErrAuth))

	stats, err := s.service.BackfillMissing(ctx, 2)

	s.Error(err)
	s.ErrorIs(err, pocket.ErrAuth)
	s.Equal(1, stats.Missing)
	s.Equal(0, stats.Loaded)
}

func (s *ServiceTestSuite) TestBackfill_NothingMissing() {
	ctx := context.Background()

	s.collection.EXPECT().ListIDs(ctx).Return([]string{"1"}, nil)
	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1"}, nil)

	stats, err := s.service.BackfillMissing(ctx, 0)

	s.NoError(err)
	s.Equal(0, stats.Missing)
}
