package sigmatch

import (
	"context"
	"time"
)

// FeedItem is a candidate article returned by a discovery provider.
type FeedItem struct {
	Title       string
	URL         string
	Description string
	Author      string
	PublishedAt *time.Time
}

// FeedClient discovers candidate articles from a syndication feed.
type FeedClient interface {
	// FetchFeed retrieves and parses the feed at url.
	// Returns EINVALID if the document is not a recognizable feed.
	FetchFeed(ctx context.Context, url string) ([]FeedItem, error)
}

// SearchClient discovers candidate articles through a quota-limited search API.
type SearchClient interface {
	// Search runs a query for a source.
	// Returns EQUOTA when the provider reports the quota as exhausted.
	Search(ctx context.Context, query string) ([]FeedItem, error)
}

// QuotaService tracks the daily search-API call budget shared by all runs.
type QuotaService interface {
	// ReserveSearchCalls atomically reserves up to n calls against the daily
	// limit for day and returns how many were granted.
	ReserveSearchCalls(ctx context.Context, day time.Time, n, limit int) (granted int, err error)

	// SearchCallsUsed returns the number of calls reserved for day.
	SearchCallsUsed(ctx context.Context, day time.Time) (int, error)
}

// SeenFilter is an in-run pre-screen of (source ID, URL) pairs. Positives
// may be false and must be confirmed against the store.
type SeenFilter interface {
	// TestAndAdd records the pair and reports whether it may have been seen before.
	TestAndAdd(sourceID, url string) bool
}
