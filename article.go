package sigmatch

import (
	"context"
	"time"
)

// ScrapeStatus is the content-fetch state of a queued article.
type ScrapeStatus string

// Scrape states.
const (
	ScrapePending      ScrapeStatus = "pending"
	ScrapeCompleted    ScrapeStatus = "completed"
	ScrapeFailed       ScrapeStatus = "failed"
	ScrapeMetadataOnly ScrapeStatus = "metadata_only"
)

// Article represents a discovered article in the persisted queue.
type Article struct {
	ID             string       `json:"id"`
	SourceID       string       `json:"sourceId"`
	SourceName     string       `json:"sourceName,omitempty"` // Read-side only
	URL            string       `json:"url"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Author         string       `json:"author,omitempty"`
	PublishedAt    *time.Time   `json:"publishedAt,omitempty"`
	FullText       string       `json:"fullText,omitempty"`
	Topics         []string     `json:"topics,omitempty"`
	ContentHash    string       `json:"contentHash,omitempty"`
	ScrapeStatus   ScrapeStatus `json:"scrapeStatus"`
	ScrapePriority int          `json:"scrapePriority"`
	ScrapeAttempts int          `json:"scrapeAttempts"`
	Embedding      []float32    `json:"embedding,omitempty"`
	EmbeddedAt     *time.Time   `json:"embeddedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Validate returns an error if the article contains invalid fields.
func (a *Article) Validate() error {
	if a.SourceID == "" {
		return Errorf(EINVALID, "article source ID required")
	}
	if a.URL == "" {
		return Errorf(EINVALID, "article URL required")
	}
	return nil
}

// HasUsableText reports whether the article carries any text beyond its title.
func (a *Article) HasUsableText() bool {
	return a.FullText != "" || a.Description != ""
}

// ArticleService represents a service for managing the article queue.
type ArticleService interface {
	// CreateArticle inserts a new pending article.
	// Returns created=false without error when (source_id, url) already exists.
	CreateArticle(ctx context.Context, article *Article) (created bool, err error)

	// ArticleExists reports whether an article with the URL exists for the source.
	ArticleExists(ctx context.Context, sourceID, url string) (bool, error)

	// FindArticleByID retrieves an article by ID.
	// Returns ENOTFOUND if article does not exist.
	FindArticleByID(ctx context.Context, id string) (*Article, error)

	// FindArticles retrieves articles matching the filter.
	FindArticles(ctx context.Context, filter ArticleFilter) ([]*Article, error)

	// FindEmbeddable returns un-embedded articles created since the given
	// time, preferring completed scrapes, then articles with usable text.
	FindEmbeddable(ctx context.Context, since time.Time, limit int) ([]*Article, error)

	// SetEmbeddings attaches vectors to articles in a single transaction.
	// Either every embedding in the batch is written or none is.
	SetEmbeddings(ctx context.Context, embeddings []ArticleEmbedding, at time.Time) error

	// UpdateScrape records the outcome of a content-fetch attempt.
	// Returns ENOTFOUND if article does not exist.
	UpdateScrape(ctx context.Context, id string, upd ScrapeUpdate) error

	// SimilarArticles returns embedded articles within the window whose
	// cosine similarity to the embedding is at least the threshold,
	// ordered by similarity descending.
	SimilarArticles(ctx context.Context, embedding []float32, q SimilarityQuery) ([]*SimilarArticle, error)
}

// ArticleFilter represents a filter for FindArticles.
type ArticleFilter struct {
	ID           *string       `json:"id"`
	SourceID     *string       `json:"sourceId"`
	ScrapeStatus *ScrapeStatus `json:"scrapeStatus"`
	MaxAttempts  *int          `json:"maxAttempts"` // Only articles with fewer attempts
	Embedded     *bool         `json:"embedded"`

	// SortByPriority orders by scrape priority descending, then newest first.
	SortByPriority bool `json:"sortByPriority"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ArticleEmbedding pairs an article with its vector.
type ArticleEmbedding struct {
	ArticleID string
	Vector    []float32
}

// ScrapeUpdate represents the outcome of a content-fetch attempt.
type ScrapeUpdate struct {
	Status   ScrapeStatus
	FullText *string
	Topics   []string
	Attempts int
}

// SimilarityQuery configures a vector-similarity query.
type SimilarityQuery struct {
	Threshold float64
	Limit     int
	Since     time.Time
}

// SimilarArticle is a similarity query hit.
type SimilarArticle struct {
	ArticleID  string
	Title      string
	SourceID   string
	SourceName string
	Similarity float64
}
