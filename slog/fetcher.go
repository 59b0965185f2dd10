package slog

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Ensure LoggingFetcher implements sigmatch.Fetcher.
var _ sigmatch.Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher wraps an article Fetcher. Each page is logged at debug
// level with its host; failures are logged as warnings. Close logs a
// summary of the fetcher's lifetime.
type LoggingFetcher struct {
	next   sigmatch.Fetcher
	logger *slog.Logger

	pages    atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next sigmatch.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher and logs the page.
func (f *LoggingFetcher) Fetch(ctx context.Context, rawURL string) (html string, err error) {
	defer func(begin time.Time) {
		f.pages.Add(1)
		f.bytes.Add(int64(len(html)))
		attrs := []any{
			"host", host(rawURL),
			"url", rawURL,
			"bytes", len(html),
			"duration", time.Since(begin),
		}
		if err != nil {
			f.failures.Add(1)
			f.logger.Warn("article fetch failed", append(attrs, "code", sigmatch.ErrorCode(err), "err", err)...)
			return
		}
		f.logger.Debug("article fetch", attrs...)
	}(time.Now())
	return f.next.Fetch(ctx, rawURL)
}

// Close delegates to the wrapped fetcher and logs the totals. A browser
// fetcher also reports how often its browser was replaced.
func (f *LoggingFetcher) Close() error {
	attrs := []any{
		"pages", f.pages.Load(),
		"failures", f.failures.Load(),
		"bytes", f.bytes.Load(),
	}
	if r, ok := f.next.(interface{ Recycles() int }); ok {
		attrs = append(attrs, "browser_recycles", r.Recycles())
	}
	err := f.next.Close()
	f.logger.Info("fetcher closed", append(attrs, "err", err)...)
	return err
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
