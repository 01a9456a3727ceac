package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/po4yka/pocket-gpt/internal/domain"
)

// ErrNotFound is returned for lookups of unknown pocket IDs.
var ErrNotFound = errors.New("postgres: article not found")

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// Insert creates a new record. Duplicate pocket IDs are skipped, not
// merged: re-syncing must never clobber local enrichment.
func (s *ArticleStore) Insert(ctx context.Context, article *domain.Article) error {
	query := `
		INSERT INTO articles (
			pocket_id, title, url, tags, pocket_data, word_count, estimated_reading_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pocket_id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.PocketID,
		article.Title,
		article.URL,
		article.Tags,
		article.PocketData,
		article.WordCount,
		article.ReadingTime,
	)
	return err
}

// Merge refreshes the remote-sourced fields of an existing record, or
// inserts it when absent. Enrichment columns are never touched; this
// is the explicit opt-in used by the incremental sync path.
func (s *ArticleStore) Merge(ctx context.Context, article *domain.Article) error {
	query := `
		INSERT INTO articles (
			pocket_id, title, url, tags, pocket_data, word_count, estimated_reading_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pocket_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			pocket_data = EXCLUDED.pocket_data,
			word_count = EXCLUDED.word_count,
			estimated_reading_time = EXCLUDED.estimated_reading_time`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.PocketID,
		article.Title,
		article.URL,
		article.Tags,
		article.PocketData,
		article.WordCount,
		article.ReadingTime,
	)
	return err
}

// ExistingPocketIDs reports which of the given IDs already exist.
func (s *ArticleStore) ExistingPocketIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT pocket_id FROM articles WHERE pocket_id = ANY($1)`
	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

// PocketIDs returns every local pocket ID.
func (s *ArticleStore) PocketIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		`SELECT pocket_id FROM articles ORDER BY pocket_id`)
	return ids, err
}

// GetByPocketID returns one record by its natural key.
func (s *ArticleStore) GetByPocketID(ctx context.Context, pocketID string) (*domain.Article, error) {
	var article domain.Article
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article,
		`SELECT * FROM articles WHERE pocket_id = $1`, pocketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pocketID)
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// ListUnenriched returns records with no content, no markup and no
// metadata: the sole selection criterion for the enrichment pass.
func (s *ArticleStore) ListUnenriched(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, `
		SELECT * FROM articles
		WHERE content = '' AND content_html = '' AND firecrawl_metadata IS NULL
		ORDER BY date_added`)
	return articles, err
}

// ListUnsummarized returns enriched records whose summaries are still
// missing.
func (s *ArticleStore) ListUnsummarized(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, `
		SELECT * FROM articles
		WHERE content <> '' AND summary_20 = ''
		ORDER BY date_added`)
	return articles, err
}

// ListTagged returns records carrying generated tags, for push-back.
func (s *ArticleStore) ListTagged(ctx context.Context) ([]domain.Article, error) {
	var articles []domain.Article
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, `
		SELECT * FROM articles
		WHERE tags <> ''
		ORDER BY date_added`)
	return articles, err
}

// UpdateContent commits the scraped content and merged metadata of one
// enrichment in place.
func (s *ArticleStore) UpdateContent(ctx context.Context, article *domain.Article) error {
	query := `
		UPDATE articles SET
			title = $2,
			content = $3,
			content_html = $4,
			author = $5,
			firecrawl_metadata = $6
		WHERE pocket_id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.PocketID,
		article.Title,
		article.Content,
		article.ContentHTML,
		article.Author,
		article.Metadata,
	)
	if err != nil {
		return err
	}
	return ensureFound(res, article.PocketID)
}

// UpdateSummaries commits generated summaries and tags.
func (s *ArticleStore) UpdateSummaries(ctx context.Context, article *domain.Article) error {
	query := `
		UPDATE articles SET
			summary_20 = $2,
			summary_50 = $3,
			summary_100 = $4,
			unlimited_summary = $5,
			tags = $6
		WHERE pocket_id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		article.PocketID,
		article.Summary20,
		article.Summary50,
		article.Summary100,
		article.UnlimitedSummary,
		article.Tags,
	)
	if err != nil {
		return err
	}
	return ensureFound(res, article.PocketID)
}

// Delete removes one record by its natural key.
func (s *ArticleStore) Delete(ctx context.Context, pocketID string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM articles WHERE pocket_id = $1`, pocketID)
	if err != nil {
		return err
	}
	return ensureFound(res, pocketID)
}

// Count returns the number of local records.
func (s *ArticleStore) Count(ctx context.Context) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		`SELECT COUNT(*) FROM articles`)
	return count, err
}

// CountEnriched returns the number of records with content attached.
func (s *ArticleStore) CountEnriched(ctx context.Context) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		`SELECT COUNT(*) FROM articles WHERE content <> ''`)
	return count, err
}

func ensureFound(res sql.Result, pocketID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, pocketID)
	}
	return nil
}
