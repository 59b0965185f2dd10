package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Ensure LoggingFeedClient implements sigmatch.FeedClient.
var _ sigmatch.FeedClient = (*LoggingFeedClient)(nil)

// LoggingFeedClient wraps a FeedClient with logging.
type LoggingFeedClient struct {
	next   sigmatch.FeedClient
	logger *slog.Logger
}

// NewLoggingFeedClient creates a new LoggingFeedClient.
func NewLoggingFeedClient(next sigmatch.FeedClient, logger *slog.Logger) *LoggingFeedClient {
	return &LoggingFeedClient{next: next, logger: logger}
}

// FetchFeed delegates to the wrapped client and logs the operation.
func (c *LoggingFeedClient) FetchFeed(ctx context.Context, url string) (items []sigmatch.FeedItem, err error) {
	defer func(begin time.Time) {
		c.logger.Info("feed fetch",
			"url", url,
			"items", len(items),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.FetchFeed(ctx, url)
}

// Ensure LoggingSearchClient implements sigmatch.SearchClient.
var _ sigmatch.SearchClient = (*LoggingSearchClient)(nil)

// LoggingSearchClient wraps a SearchClient with logging.
type LoggingSearchClient struct {
	next   sigmatch.SearchClient
	logger *slog.Logger
}

// NewLoggingSearchClient creates a new LoggingSearchClient.
func NewLoggingSearchClient(next sigmatch.SearchClient, logger *slog.Logger) *LoggingSearchClient {
	return &LoggingSearchClient{next: next, logger: logger}
}

// Search delegates to the wrapped client and logs the operation.
func (c *LoggingSearchClient) Search(ctx context.Context, query string) (items []sigmatch.FeedItem, err error) {
	defer func(begin time.Time) {
		c.logger.Info("search",
			"query", query,
			"items", len(items),
			"quota", sigmatch.ErrorCode(err) == sigmatch.EQUOTA,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.Search(ctx, query)
}
