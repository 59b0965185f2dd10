package sqlite_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/stretchr/testify/require"
)

// BenchmarkDiscoveryInserts measures article inserts, half of them duplicates,
// the mix a repeated discovery run produces.
func BenchmarkDiscoveryInserts(b *testing.B) {
	db := sqlite.NewDB(filepath.Join(b.TempDir(), "bench.db"))
	require.NoError(b, db.Open())
	defer db.Close()

	ctx := context.Background()
	source := &sigmatch.Source{Name: "bench", URL: "https://bench.example.com/rss", Tier: 1, DiscoveryMethod: sigmatch.DiscoveryFeed, Active: true}
	require.NoError(b, sqlite.NewSourceService(db).CreateSource(ctx, source))
	svc := sqlite.NewArticleService(db)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		article := &sigmatch.Article{
			SourceID:    source.ID,
			URL:         fmt.Sprintf("https://bench.example.com/story/%d", i/2),
			Title:       fmt.Sprintf("Story %d", i),
			Description: "A short feed description for the benchmark story.",
		}
		if _, err := svc.CreateArticle(ctx, article); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSimilarArticles measures a similarity scan over a day's worth of
// embedded articles at a realistic embedding width.
func BenchmarkSimilarArticles(b *testing.B) {
	const (
		articles   = 2000
		dimensions = 768
	)

	db := sqlite.NewDB(filepath.Join(b.TempDir(), "bench.db"))
	require.NoError(b, db.Open())
	defer db.Close()

	ctx := context.Background()
	source := &sigmatch.Source{Name: "bench", URL: "https://bench.example.com/rss", Tier: 1, DiscoveryMethod: sigmatch.DiscoveryFeed, Active: true}
	require.NoError(b, sqlite.NewSourceService(db).CreateSource(ctx, source))
	svc := sqlite.NewArticleService(db)

	rng := rand.New(rand.NewPCG(1, 2))
	randomVector := func() []float32 {
		v := make([]float32, dimensions)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		return v
	}

	var embeddings []sigmatch.ArticleEmbedding
	for i := range articles {
		article := &sigmatch.Article{SourceID: source.ID, URL: fmt.Sprintf("https://bench.example.com/%d", i)}
		_, err := svc.CreateArticle(ctx, article)
		require.NoError(b, err)
		embeddings = append(embeddings, sigmatch.ArticleEmbedding{ArticleID: article.ID, Vector: randomVector()})
	}
	require.NoError(b, svc.SetEmbeddings(ctx, embeddings, time.Now()))

	query := randomVector()
	q := sigmatch.SimilarityQuery{Threshold: 0.05, Limit: 50, Since: time.Now().Add(-24 * time.Hour)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.SimilarArticles(ctx, query, q); err != nil {
			b.Fatal(err)
		}
	}
}
