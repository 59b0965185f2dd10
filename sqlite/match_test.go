package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchService_UpsertMatch(t *testing.T) {
	t.Parallel()

	t.Run("second upsert overwrites the first", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		source := createTestSource(t, db, "TechSite", 1)
		article := createTestArticle(t, db, source, "https://techsite.example.com/a")
		target := createTestTarget(t, db, "org-1", "Acme Corp", sigmatch.TargetCompetitor, []float32{1, 0})
		svc := sqlite.NewMatchService(db)
		ctx := context.Background()

		first := &sigmatch.Match{
			OrganizationID:  "org-1",
			TargetID:        target.ID,
			ArticleID:       article.ID,
			SimilarityScore: 0.36,
			SignalStrength:  sigmatch.SignalWeak,
			SignalCategory:  "competitive_intelligence",
		}
		created, err := svc.UpsertMatch(ctx, first)
		require.NoError(t, err)
		assert.True(t, created)

		second := &sigmatch.Match{
			OrganizationID:  "org-1",
			TargetID:        target.ID,
			ArticleID:       article.ID,
			SimilarityScore: 0.52,
			SignalStrength:  sigmatch.SignalStrong,
			SignalCategory:  "competitive_intelligence",
			MatchReason:     "rematched",
		}
		created, err = svc.UpsertMatch(ctx, second)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		matches, err := svc.FindMatches(ctx, sigmatch.MatchFilter{TargetID: &target.ID})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.InDelta(t, 0.52, matches[0].SimilarityScore, 1e-9)
		assert.Equal(t, sigmatch.SignalStrong, matches[0].SignalStrength)
		assert.Equal(t, "rematched", matches[0].MatchReason)
	})

	t.Run("sets expiry from match time", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		source := createTestSource(t, db, "s", 1)
		article := createTestArticle(t, db, source, "https://s.example.com/a")
		target := createTestTarget(t, db, "org-1", "Acme", sigmatch.TargetCompetitor, []float32{1})

		matchedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		match := &sigmatch.Match{
			OrganizationID: "org-1", TargetID: target.ID, ArticleID: article.ID,
			SimilarityScore: 0.4, MatchedAt: matchedAt,
		}
		_, err := sqlite.NewMatchService(db).UpsertMatch(context.Background(), match)
		require.NoError(t, err)
		assert.Equal(t, matchedAt.Add(30*24*time.Hour), match.ExpiresAt)
	})

	t.Run("rejects similarity out of range", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		_, err := sqlite.NewMatchService(db).UpsertMatch(context.Background(), &sigmatch.Match{
			OrganizationID: "org-1", TargetID: "t", ArticleID: "a", SimilarityScore: 1.2,
		})
		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
	})
}

func TestMatchService_FindCandidates(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	source := createTestSource(t, db, "TechSite", 1)
	fresh := createTestArticle(t, db, source, "https://techsite.example.com/fresh")
	weak := createTestArticle(t, db, source, "https://techsite.example.com/weak")
	expired := createTestArticle(t, db, source, "https://techsite.example.com/expired")
	acme := createTestTarget(t, db, "org-1", "Acme Corp", sigmatch.TargetCompetitor, []float32{1})
	other := createTestTarget(t, db, "org-2", "Globex", sigmatch.TargetCompetitor, []float32{1})
	svc := sqlite.NewMatchService(db)
	ctx := context.Background()

	now := time.Now().UTC()
	upsert := func(target *sigmatch.Target, article *sigmatch.Article, sim float64, matchedAt time.Time) {
		t.Helper()
		_, err := svc.UpsertMatch(ctx, &sigmatch.Match{
			OrganizationID:  target.OrganizationID,
			TargetID:        target.ID,
			ArticleID:       article.ID,
			SimilarityScore: sim,
			SignalStrength:  sigmatch.ClassifyStrength(sim),
			SignalCategory:  sigmatch.SignalCategory(target.TargetType),
			MatchedAt:       matchedAt,
		})
		require.NoError(t, err)
	}
	upsert(acme, weak, 0.33, now)
	upsert(acme, fresh, 0.41, now)
	upsert(acme, expired, 0.9, now.Add(-31*24*time.Hour))
	upsert(other, fresh, 0.8, now)

	candidates, err := svc.FindCandidates(ctx, sigmatch.CandidateFilter{
		OrganizationID: "org-1",
		MinSimilarity:  0.32,
		Now:            now,
		Limit:          200,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, fresh.ID, candidates[0].Match.ArticleID)
	assert.Equal(t, "Acme Corp", candidates[0].TargetName)
	assert.Equal(t, "TechSite", candidates[0].SourceName)
	assert.Equal(t, weak.ID, candidates[1].Match.ArticleID)

	_, err = svc.FindCandidates(ctx, sigmatch.CandidateFilter{})
	assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
}
