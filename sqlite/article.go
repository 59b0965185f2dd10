package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fwojciec/sigmatch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ sigmatch.ArticleService = (*ArticleService)(nil)

const articleColumns = `a.id, a.source_id, s.name, a.url, a.title, a.description, a.author, a.published_at,
	a.full_text, a.topics, a.content_hash, a.scrape_status, a.scrape_priority, a.scrape_attempts,
	a.embedding, a.embedded_at, a.created_at`

// ArticleService implements sigmatch.ArticleService using SQLite.
type ArticleService struct {
	db *DB
}

// NewArticleService creates a new ArticleService.
func NewArticleService(db *DB) *ArticleService {
	return &ArticleService{db: db}
}

// CreateArticle inserts a new article. The (source_id, url) unique
// constraint turns a repeated discovery into a no-op, which is reported as
// created=false rather than an error.
func (s *ArticleService) CreateArticle(ctx context.Context, article *sigmatch.Article) (bool, error) {
	if err := article.Validate(); err != nil {
		return false, err
	}

	topics, err := encodeStrings(article.Topics)
	if err != nil {
		return false, err
	}

	id := uuid.New().String()
	createdAt := time.Now().UTC()
	status := article.ScrapeStatus
	if status == "" {
		status = sigmatch.ScrapePending
	}
	var contentHash string
	if article.FullText != "" {
		contentHash = hashString(article.FullText)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, source_id, url, url_hash, title, description, author, published_at,
			full_text, topics, content_hash, scrape_status, scrape_priority, scrape_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, url) DO NOTHING
	`, id, article.SourceID, article.URL, hashString(article.URL), article.Title, article.Description,
		article.Author, formatNullTime(article.PublishedAt), article.FullText, topics, contentHash,
		string(status), article.ScrapePriority, article.ScrapeAttempts, formatTime(createdAt))
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	article.ID = id
	article.CreatedAt = createdAt
	article.ScrapeStatus = status
	article.ContentHash = contentHash
	return true, nil
}

// ArticleExists reports whether an article with the URL exists for the source.
func (s *ArticleService) ArticleExists(ctx context.Context, sourceID, url string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM articles WHERE source_id = ? AND url_hash = ? AND url = ?
	`, sourceID, hashString(url), url).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindArticleByID retrieves an article by ID.
func (s *ArticleService) FindArticleByID(ctx context.Context, id string) (*sigmatch.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles a JOIN sources s ON s.id = a.source_id
		WHERE a.id = ?
	`, id)
	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, sigmatch.Errorf(sigmatch.ENOTFOUND, "article not found")
	}
	if err != nil {
		return nil, err
	}
	return article, nil
}

// FindArticles retrieves articles matching the filter.
func (s *ArticleService) FindArticles(ctx context.Context, filter sigmatch.ArticleFilter) ([]*sigmatch.Article, error) {
	query := sq.Select(articleColumns).From("articles a").Join("sources s ON s.id = a.source_id")

	if filter.ID != nil {
		query = query.Where(sq.Eq{"a.id": *filter.ID})
	}
	if filter.SourceID != nil {
		query = query.Where(sq.Eq{"a.source_id": *filter.SourceID})
	}
	if filter.ScrapeStatus != nil {
		query = query.Where(sq.Eq{"a.scrape_status": string(*filter.ScrapeStatus)})
	}
	if filter.MaxAttempts != nil {
		query = query.Where(sq.Lt{"a.scrape_attempts": *filter.MaxAttempts})
	}
	if filter.Embedded != nil {
		if *filter.Embedded {
			query = query.Where("a.embedding IS NOT NULL")
		} else {
			query = query.Where("a.embedding IS NULL")
		}
	}

	if filter.SortByPriority {
		query = query.OrderBy("a.scrape_priority DESC", "a.created_at DESC")
	} else {
		query = query.OrderBy("a.created_at DESC")
	}
	query = appendPagination(query, filter.Limit, filter.Offset)

	return s.queryArticles(ctx, query)
}

// FindEmbeddable returns un-embedded articles created since the given time.
// Completed scrapes come first, then anything with usable text, so articles
// that will be skipped never crowd out embeddable ones.
func (s *ArticleService) FindEmbeddable(ctx context.Context, since time.Time, limit int) ([]*sigmatch.Article, error) {
	query := sq.Select(articleColumns).
		From("articles a").
		Join("sources s ON s.id = a.source_id").
		Where("a.embedding IS NULL").
		Where(sq.Eq{"a.scrape_status": []string{
			string(sigmatch.ScrapeCompleted),
			string(sigmatch.ScrapeMetadataOnly),
			string(sigmatch.ScrapePending),
		}}).
		Where(sq.GtOrEq{"a.created_at": formatTime(since)}).
		OrderBy(
			"CASE a.scrape_status WHEN 'completed' THEN 0 ELSE 1 END",
			"CASE WHEN a.full_text <> '' OR a.description <> '' THEN 0 ELSE 1 END",
			"a.scrape_priority DESC",
			"a.created_at DESC",
		)
	query = appendPagination(query, limit, 0)

	return s.queryArticles(ctx, query)
}

// SetEmbeddings attaches vectors to articles in a single transaction.
func (s *ArticleService) SetEmbeddings(ctx context.Context, embeddings []sigmatch.ArticleEmbedding, at time.Time) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE articles SET embedding = ?, embedded_at = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	embeddedAt := formatTime(at)
	for _, e := range embeddings {
		if len(e.Vector) == 0 {
			return sigmatch.Errorf(sigmatch.EINVALID, "empty embedding for article %s", e.ArticleID)
		}
		result, err := stmt.ExecContext(ctx, encodeVector(e.Vector), embeddedAt, e.ArticleID)
		if err != nil {
			return err
		}
		if err := requireRowsAffected(result, fmt.Sprintf("article %s not found", e.ArticleID)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateScrape records the outcome of a content-fetch attempt.
func (s *ArticleService) UpdateScrape(ctx context.Context, id string, upd sigmatch.ScrapeUpdate) error {
	query := sq.Update("articles").
		Set("scrape_status", string(upd.Status)).
		Set("scrape_attempts", upd.Attempts).
		Where(sq.Eq{"id": id})

	if upd.FullText != nil {
		query = query.Set("full_text", *upd.FullText)
		contentHash := ""
		if *upd.FullText != "" {
			contentHash = hashString(*upd.FullText)
		}
		query = query.Set("content_hash", contentHash)
	}
	if upd.Topics != nil {
		topics, err := encodeStrings(upd.Topics)
		if err != nil {
			return err
		}
		query = query.Set("topics", topics)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return err
	}
	return requireRowsAffected(result, "article not found")
}

// SimilarArticles returns embedded articles within the window whose cosine
// similarity to the embedding meets the threshold. Similarity is computed in
// Go over the window's candidates; the window keeps that set small.
func (s *ArticleService) SimilarArticles(ctx context.Context, embedding []float32, q sigmatch.SimilarityQuery) ([]*sigmatch.SimilarArticle, error) {
	if len(embedding) == 0 {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "query embedding required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.title, a.source_id, s.name, a.embedding
		FROM articles a JOIN sources s ON s.id = a.source_id
		WHERE a.embedding IS NOT NULL
		AND COALESCE(a.published_at, a.created_at) >= ?
	`, formatTime(q.Since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []*sigmatch.SimilarArticle
	for rows.Next() {
		var hit sigmatch.SimilarArticle
		var blob []byte
		if err := rows.Scan(&hit.ArticleID, &hit.Title, &hit.SourceID, &hit.SourceName, &blob); err != nil {
			return nil, err
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", hit.ArticleID, err)
		}
		hit.Similarity = sigmatch.CosineSimilarity(embedding, vector)
		if hit.Similarity >= q.Threshold {
			hits = append(hits, &hit)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ArticleID < hits[j].ArticleID
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	return hits, nil
}

// queryArticles runs a select built over articleColumns.
func (s *ArticleService) queryArticles(ctx context.Context, query sq.SelectBuilder) ([]*sigmatch.Article, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*sigmatch.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}

	return articles, rows.Err()
}

// scanArticle reads an article row selected with articleColumns.
func scanArticle(row scanner) (*sigmatch.Article, error) {
	var a sigmatch.Article
	var status, topics, createdAt string
	var publishedAt, embeddedAt sql.NullString
	var blob []byte

	if err := row.Scan(&a.ID, &a.SourceID, &a.SourceName, &a.URL, &a.Title, &a.Description, &a.Author,
		&publishedAt, &a.FullText, &topics, &a.ContentHash, &status, &a.ScrapePriority, &a.ScrapeAttempts,
		&blob, &embeddedAt, &createdAt); err != nil {
		return nil, err
	}

	a.ScrapeStatus = sigmatch.ScrapeStatus(status)

	var err error
	if a.Topics, err = decodeStrings(topics, "topics"); err != nil {
		return nil, err
	}
	if a.PublishedAt, err = parseNullRFC3339(publishedAt, "published_at"); err != nil {
		return nil, err
	}
	if a.EmbeddedAt, err = parseNullRFC3339(embeddedAt, "embedded_at"); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if a.Embedding, err = decodeVector(blob); err != nil {
		return nil, err
	}

	return &a, nil
}
