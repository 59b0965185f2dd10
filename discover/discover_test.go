package discover_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/bloom"
	"github.com/fwojciec/sigmatch/discover"
	"github.com/fwojciec/sigmatch/mock"
	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

// fakeStore is an in-memory source and article store for engine tests.
type fakeStore struct {
	mu        sync.Mutex
	sources   []*sigmatch.Source
	articles  map[string]*sigmatch.Article
	failures  map[string]int
	successes map[string]int
	granted   int
	reserved  int
}

func newFakeStore(sources ...*sigmatch.Source) *fakeStore {
	return &fakeStore{
		sources:   sources,
		articles:  make(map[string]*sigmatch.Article),
		failures:  make(map[string]int),
		successes: make(map[string]int),
		granted:   -1,
	}
}

func (s *fakeStore) sourceService() *mock.SourceService {
	return &mock.SourceService{
		FindSourcesFn: func(_ context.Context, filter sigmatch.SourceFilter) ([]*sigmatch.Source, error) {
			var out []*sigmatch.Source
			for _, src := range s.sources {
				if filter.Active != nil && src.Active != *filter.Active {
					continue
				}
				out = append(out, src)
			}
			return out, nil
		},
		RecordSourceSuccessFn: func(_ context.Context, id string, _ time.Time) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.successes[id]++
			s.failures[id] = 0
			return nil
		},
		RecordSourceFailureFn: func(_ context.Context, id string, _ string, ceiling int) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.failures[id]++
			return ceiling > 0 && s.failures[id] >= ceiling, nil
		},
	}
}

func (s *fakeStore) articleService() *mock.ArticleService {
	return &mock.ArticleService{
		ArticleExistsFn: func(_ context.Context, sourceID, url string) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			_, ok := s.articles[sourceID+"|"+url]
			return ok, nil
		},
		CreateArticleFn: func(_ context.Context, a *sigmatch.Article) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			key := a.SourceID + "|" + a.URL
			if _, ok := s.articles[key]; ok {
				return false, nil
			}
			s.articles[key] = a
			return true, nil
		},
	}
}

func (s *fakeStore) quotaService() *mock.QuotaService {
	return &mock.QuotaService{
		ReserveSearchCallsFn: func(_ context.Context, _ time.Time, n, _ int) (int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			granted := n
			if s.granted >= 0 {
				granted = min(n, s.granted)
			}
			s.reserved += granted
			return granted, nil
		},
		SearchCallsUsedFn: func(_ context.Context, _ time.Time) (int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.reserved, nil
		},
	}
}

func newEngine(store *fakeStore, feeds sigmatch.FeedClient, search sigmatch.SearchClient) (*discover.Engine, *mock.JobRecorder) {
	jobs := mock.NewJobRecorder()
	return &discover.Engine{
		Sources:  store.sourceService(),
		Articles: store.articleService(),
		Quota:    store.quotaService(),
		Jobs:     jobs,
		Feeds:    feeds,
		Search:   search,
		NewSeenFilter: func() sigmatch.SeenFilter {
			return bloom.NewFilter(1000, 0.01)
		},
		Config: discover.Config{FailureCeiling: 3},
		Now:    func() time.Time { return fixedNow },
	}, jobs
}

func feedSource(id, name string, tier int) *sigmatch.Source {
	return &sigmatch.Source{
		ID:              id,
		Name:            name,
		URL:             "https://" + id + ".example/feed",
		Tier:            tier,
		DiscoveryMethod: sigmatch.DiscoveryFeed,
		Active:          true,
	}
}

func searchSource(id, name string, tier int) *sigmatch.Source {
	return &sigmatch.Source{
		ID:              id,
		Name:            name,
		Query:           name,
		Tier:            tier,
		DiscoveryMethod: sigmatch.DiscoverySearchAPI,
		Active:          true,
	}
}

func staticFeed(items map[string][]sigmatch.FeedItem) *mock.FeedClient {
	return &mock.FeedClient{
		FetchFeedFn: func(_ context.Context, url string) ([]sigmatch.FeedItem, error) {
			it, ok := items[url]
			if !ok {
				return nil, fmt.Errorf("HTTP 404 for %s", url)
			}
			return it, nil
		},
	}
}

func TestEngine_Run_Feeds(t *testing.T) {
	t.Parallel()

	t.Run("enqueues new articles with tier-derived priority", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("techsite", "TechSite", 1), feedSource("blog", "Blog", 3))
		feeds := staticFeed(map[string][]sigmatch.FeedItem{
			"https://techsite.example/feed": {
				{Title: " Acme raises $50M ", URL: "https://techsite.example/acme", Description: "Series C"},
			},
			"https://blog.example/feed": {
				{Title: "Notes", URL: "https://blog.example/notes"},
			},
		})
		engine, jobs := newEngine(store, feeds, nil)

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, result.SourcesAttempted)
		assert.Equal(t, 2, result.SourcesSucceeded)
		assert.Equal(t, 2, result.New)
		assert.Equal(t, 0, result.Duplicate)

		acme := store.articles["techsite|https://techsite.example/acme"]
		require.NotNil(t, acme)
		assert.Equal(t, "Acme raises $50M", acme.Title)
		assert.Equal(t, sigmatch.ScrapePending, acme.ScrapeStatus)
		assert.Equal(t, sigmatch.ScrapePriority(1), acme.ScrapePriority)
		assert.Greater(t, acme.ScrapePriority, store.articles["blog|https://blog.example/notes"].ScrapePriority)
		assert.Equal(t, 1, store.successes["techsite"])

		last, ok := jobs.Last()
		require.True(t, ok)
		assert.Equal(t, sigmatch.JobCompleted, last.Status)
		assert.Equal(t, 2, last.ItemsTotal)
		assert.Equal(t, 2, last.Metadata["new"])
	})

	t.Run("counts repeated URLs within a run as duplicates", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("techsite", "TechSite", 1))
		feeds := staticFeed(map[string][]sigmatch.FeedItem{
			"https://techsite.example/feed": {
				{Title: "A", URL: "https://techsite.example/a"},
				{Title: "A again", URL: "https://techsite.example/a"},
				{Title: "No URL"},
			},
		})
		engine, _ := newEngine(store, feeds, nil)

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, result.Discovered)
		assert.Equal(t, 1, result.New)
		assert.Equal(t, 1, result.Duplicate)
	})

	t.Run("records a failing source and continues with the rest", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("broken", "Broken", 2), feedSource("techsite", "TechSite", 1))
		feeds := staticFeed(map[string][]sigmatch.FeedItem{
			"https://techsite.example/feed": {{Title: "A", URL: "https://techsite.example/a"}},
		})
		engine, _ := newEngine(store, feeds, nil)

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, result.SourcesAttempted)
		assert.Equal(t, 1, result.SourcesFailed)
		assert.Equal(t, 1, result.SourcesSucceeded)
		assert.Equal(t, 1, result.New)
		assert.Equal(t, 1, store.failures["broken"])
		require.Len(t, result.Sources, 2)
		assert.Contains(t, result.Sources[0].Error, "404")
	})

	t.Run("disables a source at the failure ceiling", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("broken", "Broken", 2))
		store.failures["broken"] = 2
		engine, _ := newEngine(store, staticFeed(nil), nil)

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, result.SourcesDisabled)
		assert.True(t, result.Sources[0].Disabled)
	})

	t.Run("never disables when the ceiling is zero", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("broken", "Broken", 2))
		store.failures["broken"] = 50
		engine, _ := newEngine(store, staticFeed(nil), nil)
		engine.Config.FailureCeiling = 0

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, result.SourcesDisabled)
	})

	t.Run("aborts and fails the job when the store is unreachable", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("techsite", "TechSite", 1))
		feeds := staticFeed(map[string][]sigmatch.FeedItem{
			"https://techsite.example/feed": {{Title: "A", URL: "https://techsite.example/a"}},
		})
		engine, jobs := newEngine(store, feeds, nil)
		engine.Articles.(*mock.ArticleService).CreateArticleFn = func(_ context.Context, _ *sigmatch.Article) (bool, error) {
			return false, errors.New("disk I/O error")
		}

		result, err := engine.Run(context.Background())

		require.Error(t, err)
		require.NotNil(t, result)
		last, ok := jobs.Last()
		require.True(t, ok)
		assert.Equal(t, sigmatch.JobFailed, last.Status)
		assert.Contains(t, last.Error, "disk I/O error")
	})

	t.Run("stops scheduling sources once the run budget is spent", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("a", "A", 1), feedSource("b", "B", 1))
		var mu sync.Mutex
		now := fixedNow
		feeds := &mock.FeedClient{
			FetchFeedFn: func(_ context.Context, _ string) ([]sigmatch.FeedItem, error) {
				mu.Lock()
				defer mu.Unlock()
				now = now.Add(time.Minute)
				return nil, nil
			},
		}
		engine, _ := newEngine(store, feeds, nil)
		engine.Config.MaxDuration = 30 * time.Second
		engine.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.True(t, result.Truncated)
		assert.Equal(t, 1, result.SourcesAttempted)
		assert.Equal(t, 1, result.SourcesSkipped)
	})
}

func TestEngine_Run_Canceled(t *testing.T) {
	t.Parallel()

	t.Run("stops at the canceled feed and still finishes the job", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(feedSource("a", "A", 1), feedSource("b", "B", 1), feedSource("c", "C", 1))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var fetched []string
		feeds := &mock.FeedClient{
			FetchFeedFn: func(ctx context.Context, url string) ([]sigmatch.FeedItem, error) {
				fetched = append(fetched, url)
				cancel()
				return nil, ctx.Err()
			},
		}
		engine, jobs := newEngine(store, feeds, nil)

		result, err := engine.Run(ctx)

		require.NoError(t, err)
		assert.True(t, result.Truncated)
		assert.Len(t, fetched, 1)
		assert.Equal(t, 0, result.SourcesFailed)
		assert.Equal(t, 3, result.SourcesSkipped)
		assert.Zero(t, store.failures["a"], "an interrupted fetch is not a source failure")

		last, ok := jobs.Last()
		require.True(t, ok)
		assert.Equal(t, sigmatch.JobCompleted, last.Status)
		assert.Equal(t, true, last.Metadata["truncated"])
	})

	t.Run("stops search batches on cancellation without recording failures", func(t *testing.T) {
		t.Parallel()

		var sources []*sigmatch.Source
		for i := range 4 {
			sources = append(sources, searchSource(fmt.Sprintf("s%d", i), fmt.Sprintf("q%d", i), 1))
		}
		store := newFakeStore(sources...)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		search := &mock.SearchClient{
			SearchFn: func(ctx context.Context, _ string) ([]sigmatch.FeedItem, error) {
				cancel()
				return nil, ctx.Err()
			},
		}
		engine, jobs := newEngine(store, staticFeed(nil), search)
		engine.Config.SearchBatchSize = 2

		result, err := engine.Run(ctx)

		require.NoError(t, err)
		assert.True(t, result.Truncated)
		assert.Equal(t, 0, result.SourcesFailed)
		assert.Equal(t, 4, result.SourcesSkipped)
		for _, src := range sources {
			assert.Zero(t, store.failures[src.ID])
		}

		last, ok := jobs.Last()
		require.True(t, ok)
		assert.Equal(t, sigmatch.JobCompleted, last.Status)
	})
}

func TestEngine_Run_Search(t *testing.T) {
	t.Parallel()

	countingSearch := func(calls *[]string, mu *sync.Mutex) *mock.SearchClient {
		return &mock.SearchClient{
			SearchFn: func(_ context.Context, query string) ([]sigmatch.FeedItem, error) {
				mu.Lock()
				defer mu.Unlock()
				*calls = append(*calls, query)
				return []sigmatch.FeedItem{{Title: query, URL: "https://wire.example/" + query}}, nil
			},
		}
	}

	t.Run("caps search sources in tier then name order", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(
			searchSource("s1", "zeta", 1),
			searchSource("s2", "alpha", 2),
			searchSource("s3", "beta", 1),
		)
		var mu sync.Mutex
		var calls []string
		engine, _ := newEngine(store, staticFeed(nil), countingSearch(&calls, &mu))
		engine.Config.MaxSearchSources = 2

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"beta", "zeta"}, calls)
		assert.Equal(t, 1, result.SourcesSkipped)
		assert.Equal(t, 2, store.reserved)
	})

	t.Run("processes only the sources the quota grants", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(
			searchSource("s1", "a", 1),
			searchSource("s2", "b", 1),
			searchSource("s3", "c", 1),
		)
		store.granted = 1
		var mu sync.Mutex
		var calls []string
		engine, jobs := newEngine(store, staticFeed(nil), countingSearch(&calls, &mu))

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, calls)
		assert.True(t, result.QuotaExhausted)
		assert.Equal(t, 2, result.SourcesSkipped)
		assert.Equal(t, 1, result.SearchCallsUsed)
		assert.Equal(t, discover.DefaultDailySearchQuota, result.SearchQuota)
		last, _ := jobs.Last()
		assert.Equal(t, true, last.Metadata["quota_exhausted"])
		assert.Equal(t, 1, last.Metadata["search_calls_used"])
	})

	t.Run("stops further batches after the provider reports quota exhaustion", func(t *testing.T) {
		t.Parallel()

		var sources []*sigmatch.Source
		for i := range 5 {
			sources = append(sources, searchSource(fmt.Sprintf("s%d", i), fmt.Sprintf("q%d", i), 1))
		}
		store := newFakeStore(sources...)
		var mu sync.Mutex
		var calls []string
		search := &mock.SearchClient{
			SearchFn: func(_ context.Context, query string) ([]sigmatch.FeedItem, error) {
				mu.Lock()
				defer mu.Unlock()
				calls = append(calls, query)
				return nil, sigmatch.Errorf(sigmatch.EQUOTA, "rate limited")
			},
		}
		feeds := staticFeed(map[string][]sigmatch.FeedItem{
			"https://techsite.example/feed": {{Title: "A", URL: "https://techsite.example/a"}},
		})
		store.sources = append(store.sources, feedSource("techsite", "TechSite", 1))
		engine, _ := newEngine(store, feeds, search)
		engine.Config.SearchBatchSize = 2

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Len(t, calls, 2)
		assert.True(t, result.QuotaExhausted)
		assert.Equal(t, 1, result.New, "feed work completes normally")
		assert.Equal(t, 5, result.SourcesSkipped)
		for _, src := range sources {
			assert.Zero(t, store.failures[src.ID], "quota refusals are not source failures")
		}
	})

	t.Run("skips search sources without a search client", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore(searchSource("s1", "acme", 1))
		engine, _ := newEngine(store, staticFeed(nil), nil)

		result, err := engine.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, result.SourcesAttempted)
		assert.Equal(t, 1, result.SourcesSkipped)
		assert.Equal(t, 0, store.reserved)
	})
}

func TestEngine_Run_Idempotent(t *testing.T) {
	t.Parallel()

	db := sqlite.NewDB(":memory:")
	require.NoError(t, db.Open())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	sources := sqlite.NewSourceService(db)
	techsite := &sigmatch.Source{
		Name:            "TechSite",
		URL:             "https://techsite.example/feed",
		Tier:            1,
		DiscoveryMethod: sigmatch.DiscoveryFeed,
		Active:          true,
	}
	require.NoError(t, sources.CreateSource(ctx, techsite))

	feeds := staticFeed(map[string][]sigmatch.FeedItem{
		"https://techsite.example/feed": {
			{Title: "A", URL: "https://techsite.example/a"},
			{Title: "B", URL: "https://techsite.example/b"},
			{Title: "C", URL: "https://techsite.example/c"},
		},
	})
	engine := &discover.Engine{
		Sources:  sources,
		Articles: sqlite.NewArticleService(db),
		Quota:    sqlite.NewQuotaService(db),
		Jobs:     sqlite.NewJobService(db),
		Feeds:    feeds,
		NewSeenFilter: func() sigmatch.SeenFilter {
			return bloom.NewFilter(1000, 0.01)
		},
	}

	first, err := engine.Run(ctx)
	require.NoError(t, err)
	second, err := engine.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, first.New)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 3, second.Duplicate)

	articles, err := sqlite.NewArticleService(db).FindArticles(ctx, sigmatch.ArticleFilter{})
	require.NoError(t, err)
	assert.Len(t, articles, 3)

	jobType := sigmatch.JobDiscovery
	jobs, err := sqlite.NewJobService(db).FindJobs(ctx, sigmatch.JobFilter{JobType: &jobType})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
