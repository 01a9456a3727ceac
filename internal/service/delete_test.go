package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/pocket"
)

func deleteActions(ids ...string) []pocket.Action {
	actions := make([]pocket.Action, len(ids))
	for i, id := range ids {
		actions[i] = pocket.Action{Action: "delete", ItemID: id}
	}
	return actions
}

func (s *ServiceTestSuite) TestBulkDelete_BatchesWithDelay() {
	ctx := context.Background()

	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1", "2", "3"}, nil)

	s.collection.EXPECT().SendActions(ctx, deleteActions("1", "2")).Return([]bool{true, true}, nil)
	s.collection.EXPECT().SendActions(ctx, deleteActions("3")).Return([]bool{true}, nil)

	s.expectTransactions()
	s.articles.EXPECT().Delete(gomock.Any(), "1").Return(nil)
	s.articles.EXPECT().Delete(gomock.Any(), "2").Return(nil)
	s.articles.EXPECT().Delete(gomock.Any(), "3").Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionDeleted).Return(nil).Times(3)

	stats, err := s.service.BulkDelete(ctx)

	s.NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(3, stats.RemoteDeleted)
	s.Equal(3, stats.LocalDeleted)
	s.Equal(0, stats.Failed)
	s.Equal([]time.Duration{1 * time.Second}, s.slept)
}

func (s *ServiceTestSuite) TestBulkDelete_RejectedActionRetriedIndividually() {
	ctx := context.Background()

	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1", "2"}, nil)

	s.collection.EXPECT().SendActions(ctx, deleteActions("1", "2")).Return([]bool{true, false}, nil)
	s.collection.EXPECT().SendActions(ctx, deleteActions("2")).Return([]bool{true}, nil)

	s.expectTransactions()
	s.articles.EXPECT().Delete(gomock.Any(), "1").Return(nil)
	s.articles.EXPECT().Delete(gomock.Any(), "2").Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionDeleted).Return(nil).Times(2)

	stats, err := s.service.BulkDelete(ctx)

	s.NoError(err)
	s.Equal(2, stats.RemoteDeleted)
	s.Equal(2, stats.LocalDeleted)
	s.Equal(0, stats.Failed)
}

func (s *ServiceTestSuite) TestBulkDelete_LocalRowKeptWhenRemoteKeepsFailing() {
	ctx := context.Background()

	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1"}, nil)

	s.collection.EXPECT().SendActions(ctx, deleteActions("1")).Return([]bool{false}, nil).Times(4)

	stats, err := s.service.BulkDelete(ctx)

	s.NoError(err)
	s.Equal(0, stats.RemoteDeleted)
	s.Equal(0, stats.LocalDeleted)
	s.Equal(1, stats.Failed)
	// Backoff between the three individual retries.
	s.Equal([]time.Duration{1 * time.Second, 2 * time.Second}, s.slept)
}

func (s *ServiceTestSuite) TestBulkDelete_WholeBatchFailureFallsBackToItems() {
	ctx := context.Background()

	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1", "2"}, nil)

	s.collection.EXPECT().SendActions(ctx, deleteActions("1", "2")).Return(nil, errors.New("server error"))
	s.collection.EXPECT().SendActions(ctx, deleteActions("1")).Return([]bool{true}, nil)
	s.collection.EXPECT().SendActions(ctx, deleteActions("2")).Return([]bool{true}, nil)

	s.expectTransactions()
	s.articles.EXPECT().Delete(gomock.Any(), "1").Return(nil)
	s.articles.EXPECT().Delete(gomock.Any(), "2").Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionDeleted).Return(nil).Times(2)

	stats, err := s.service.BulkDelete(ctx)

	s.NoError(err)
	s.Equal(2, stats.RemoteDeleted)
}

func (s *ServiceTestSuite) TestBulkDelete_AuthFailureAborts() {
	ctx := context.Background()

	s.articles.EXPECT().PocketIDs(ctx).Return([]string{"1", "2", "3"}, nil)

	s.collection.EXPECT().SendActions(ctx, deleteActions("1", "2")).
		Return(nil, fmt.Errorf("send actions: %w", pocket.ErrAuth))

	stats, err := s.service.BulkDelete(ctx)

	s.Error(err)
	s.ErrorIs(err, pocket.ErrAuth)
	s.Equal(0, stats.RemoteDeleted)
}

func (s *ServiceTestSuite) TestStatus_ComparesRemoteAndLocal() {
	ctx := context.Background()
	syncedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.collection.EXPECT().Total(ctx).Return(40, nil)
	s.articles.EXPECT().Count(ctx).Return(35, nil)
	s.articles.EXPECT().CountEnriched(ctx).Return(20, nil)
	s.syncState.EXPECT().Get(ctx, SourceID).Return(&domain.SyncState{
		SourceID:     SourceID,
		LastSyncedAt: syncedAt,
		TotalSynced:  35,
	}, nil)

	status, err := s.service.Status(ctx)

	s.NoError(err)
	s.Equal(40, status.RemoteTotal)
	s.Equal(35, status.LocalCount)
	s.Equal(20, status.Enriched)
	s.False(status.InSync)
	s.Equal(syncedAt, status.LastSyncedAt)
}
