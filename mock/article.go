package mock

import (
	"context"
	"time"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.ArticleService = (*ArticleService)(nil)

// ArticleService is a mock implementation of sigmatch.ArticleService.
type ArticleService struct {
	CreateArticleFn   func(ctx context.Context, article *sigmatch.Article) (bool, error)
	ArticleExistsFn   func(ctx context.Context, sourceID, url string) (bool, error)
	FindArticleByIDFn func(ctx context.Context, id string) (*sigmatch.Article, error)
	FindArticlesFn    func(ctx context.Context, filter sigmatch.ArticleFilter) ([]*sigmatch.Article, error)
	FindEmbeddableFn  func(ctx context.Context, since time.Time, limit int) ([]*sigmatch.Article, error)
	SetEmbeddingsFn   func(ctx context.Context, embeddings []sigmatch.ArticleEmbedding, at time.Time) error
	UpdateScrapeFn    func(ctx context.Context, id string, upd sigmatch.ScrapeUpdate) error
	SimilarArticlesFn func(ctx context.Context, embedding []float32, q sigmatch.SimilarityQuery) ([]*sigmatch.SimilarArticle, error)
}

func (s *ArticleService) CreateArticle(ctx context.Context, article *sigmatch.Article) (bool, error) {
	return s.CreateArticleFn(ctx, article)
}

func (s *ArticleService) ArticleExists(ctx context.Context, sourceID, url string) (bool, error) {
	return s.ArticleExistsFn(ctx, sourceID, url)
}

func (s *ArticleService) FindArticleByID(ctx context.Context, id string) (*sigmatch.Article, error) {
	return s.FindArticleByIDFn(ctx, id)
}

func (s *ArticleService) FindArticles(ctx context.Context, filter sigmatch.ArticleFilter) ([]*sigmatch.Article, error) {
	return s.FindArticlesFn(ctx, filter)
}

func (s *ArticleService) FindEmbeddable(ctx context.Context, since time.Time, limit int) ([]*sigmatch.Article, error) {
	return s.FindEmbeddableFn(ctx, since, limit)
}

func (s *ArticleService) SetEmbeddings(ctx context.Context, embeddings []sigmatch.ArticleEmbedding, at time.Time) error {
	return s.SetEmbeddingsFn(ctx, embeddings, at)
}

func (s *ArticleService) UpdateScrape(ctx context.Context, id string, upd sigmatch.ScrapeUpdate) error {
	return s.UpdateScrapeFn(ctx, id, upd)
}

func (s *ArticleService) SimilarArticles(ctx context.Context, embedding []float32, q sigmatch.SimilarityQuery) ([]*sigmatch.SimilarArticle, error) {
	return s.SimilarArticlesFn(ctx, embedding, q)
}
