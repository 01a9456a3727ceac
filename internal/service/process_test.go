package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/mock/gomock"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/openai"
	"github.com/po4yka/pocket-gpt/internal/pocket"
)

func (s *ServiceTestSuite) TestProcess_GeneratesSummariesAndTags() {
	ctx := context.Background()

	articles := makeArticles(1, 1)
	articles[0].Content = "long article body"

	summaries := &openai.Summaries{
		Words20:   "short",
		Words50:   "medium",
		Words100:  "long",
		Unlimited: "full",
	}

	s.articles.EXPECT().ListUnsummarized(ctx).Return(articles, nil)
	s.summarizer.EXPECT().GenerateSummaries(ctx, "long article body").Return(summaries, nil)
	s.summarizer.EXPECT().GenerateTags(ctx, "long article body").Return([]string{"go", "testing"}, nil)

	s.expectTransactions()
	s.articles.EXPECT().UpdateSummaries(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, article *domain.Article) error {
			s.Equal("short", article.Summary20)
			s.Equal("full", article.UnlimitedSummary)
			s.Equal("go,testing", article.Tags)
			return nil
		},
	)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionProcessed).Return(nil)

	stats, err := s.service.Process(ctx)

	s.NoError(err)
	s.Equal(1, stats.Candidates)
	s.Equal(1, stats.Processed)
	s.Equal(0, stats.Errors)
}

func (s *ServiceTestSuite) TestProcess_SummarizerErrorSkipsArticle() {
	ctx := context.Background()

	articles := makeArticles(1, 2)
	articles[0].Content = "body one"
	articles[1].Content = "body two"

	s.articles.EXPECT().ListUnsummarized(ctx).Return(articles, nil)
	s.summarizer.EXPECT().GenerateSummaries(ctx, "body one").Return(nil, errors.New("model overloaded"))

	s.summarizer.EXPECT().GenerateSummaries(ctx, "body two").Return(&openai.Summaries{Words20: "ok"}, nil)
	s.summarizer.EXPECT().GenerateTags(ctx, "body two").Return([]string{"tag"}, nil)
	s.expectTransactions()
	s.articles.EXPECT().UpdateSummaries(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any(), ActionProcessed).Return(nil)

	stats, err := s.service.Process(ctx)

	s.NoError(err)
	s.Equal(1, stats.Processed)
	s.Equal(1, stats.Errors)
}

func (s *ServiceTestSuite) TestProcess_ContentlessArticleSkipped() {
	ctx := context.Background()

	articles := makeArticles(1, 1)

	s.articles.EXPECT().ListUnsummarized(ctx).Return(articles, nil)

	stats, err := s.service.Process(ctx)

	s.NoError(err)
	s.Equal(0, stats.Processed)
	s.Equal(0, stats.Errors)
}

func (s *ServiceTestSuite) TestPushTags_WritesTagsBack() {
	ctx := context.Background()

	articles := makeArticles(1, 2)
	articles[0].Tags = "go,testing"
	articles[1].Tags = "databases"

	s.articles.EXPECT().ListTagged(ctx).Return(articles, nil)
	s.collection.EXPECT().AddTags(ctx, "1", []string{"go", "testing"}).Return(nil)
	s.collection.EXPECT().AddTags(ctx, "2", []string{"databases"}).Return(nil)

	stats, err := s.service.PushTags(ctx)

	s.NoError(err)
	s.Equal(2, stats.Tagged)
	s.Equal(2, stats.Pushed)
	s.Equal(0, stats.Errors)
}

func (s *ServiceTestSuite) TestPushTags_AuthFailureAborts() {
	ctx := context.Background()

	articles := makeArticles(1, 2)
	articles[0].Tags = "go"
	articles[1].Tags = "testing"

	s.articles.EXPECT().ListTagged(ctx).Return(articles, nil)
	s.collection.EXPECT().AddTags(ctx, "1", []string{"go"}).
		Return(fmt.Errorf("add tags: %w", pocket.ErrAuth))

	stats, err := s.service.PushTags(ctx)

	s.Error(err)
	s.ErrorIs(err, pocket.ErrAuth)
	s.Equal(0, stats.Pushed)
}
