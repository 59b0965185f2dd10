package mock

import (
	"context"
	"time"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.FeedClient = (*FeedClient)(nil)

// FeedClient is a mock implementation of sigmatch.FeedClient.
type FeedClient struct {
	FetchFeedFn func(ctx context.Context, url string) ([]sigmatch.FeedItem, error)
}

func (c *FeedClient) FetchFeed(ctx context.Context, url string) ([]sigmatch.FeedItem, error) {
	return c.FetchFeedFn(ctx, url)
}

var _ sigmatch.SearchClient = (*SearchClient)(nil)

// SearchClient is a mock implementation of sigmatch.SearchClient.
type SearchClient struct {
	SearchFn func(ctx context.Context, query string) ([]sigmatch.FeedItem, error)
}

func (c *SearchClient) Search(ctx context.Context, query string) ([]sigmatch.FeedItem, error) {
	return c.SearchFn(ctx, query)
}

var _ sigmatch.QuotaService = (*QuotaService)(nil)

// QuotaService is a mock implementation of sigmatch.QuotaService.
type QuotaService struct {
	ReserveSearchCallsFn func(ctx context.Context, day time.Time, n, limit int) (int, error)
	SearchCallsUsedFn    func(ctx context.Context, day time.Time) (int, error)
}

func (s *QuotaService) ReserveSearchCalls(ctx context.Context, day time.Time, n, limit int) (int, error) {
	return s.ReserveSearchCallsFn(ctx, day, n, limit)
}

func (s *QuotaService) SearchCallsUsed(ctx context.Context, day time.Time) (int, error) {
	return s.SearchCallsUsedFn(ctx, day)
}

var _ sigmatch.SeenFilter = (*SeenFilter)(nil)

// SeenFilter is a mock implementation of sigmatch.SeenFilter.
type SeenFilter struct {
	TestAndAddFn func(sourceID, url string) bool
}

func (f *SeenFilter) TestAndAdd(sourceID, url string) bool {
	return f.TestAndAddFn(sourceID, url)
}
