// Package rod fetches JavaScript-rendered article pages with a headless
// browser. Sources that publish through client-side rendering opt into it;
// everything else uses the plain HTTP fetcher.
package rod

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultFetchTimeout bounds a single page load.
const DefaultFetchTimeout = 10 * time.Second

// Ensure Fetcher implements sigmatch.Fetcher at compile time.
var _ sigmatch.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves rendered article HTML using Chrome browser automation.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	pool    *pool
	timeout time.Duration
}

// Option configures a Fetcher.
type Option func(*config)

type config struct {
	timeout      time.Duration
	recycleAfter int
	failureLimit int
	logger       *slog.Logger
}

// WithFetchTimeout sets the per-page load timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRecycleAfter sets how many article pages one browser serves before it
// is replaced. Zero disables page-count recycling.
func WithRecycleAfter(pages int) Option {
	return func(c *config) {
		c.recycleAfter = pages
	}
}

// WithFailureLimit sets how many consecutive failed pages replace the
// browser. Zero disables failure recycling.
func WithFailureLimit(n int) Option {
	return func(c *config) {
		c.failureLimit = n
	}
}

// WithLogger reports browser recycling.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewFetcher launches a headless browser.
// Close must be called when the Fetcher is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	cfg := config{
		timeout:      DefaultFetchTimeout,
		recycleAfter: DefaultRecycleAfter,
		failureLimit: DefaultFailureLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := newPool(launchChrome, cfg.recycleAfter, cfg.failureLimit, cfg.logger)
	if err != nil {
		return nil, err
	}
	return &Fetcher{pool: p, timeout: cfg.timeout}, nil
}

// Fetch navigates to the URL and returns the rendered HTML. A page that
// fails for any reason other than the caller's own cancellation counts
// against the browser's failure limit.
func (f *Fetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s, err := f.pool.acquire()
	if err != nil {
		return "", err
	}
	defer func() {
		f.pool.release(s, err == nil || ctx.Err() != nil)
	}()

	pageCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", err
	}
	defer page.Close()

	page = page.Context(pageCtx)
	if err := page.Navigate(url); err != nil {
		return "", fetchErr(pageCtx, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fetchErr(pageCtx, err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", fetchErr(pageCtx, err)
	}
	return html, nil
}

// Recycles reports how many times the browser has been replaced.
func (f *Fetcher) Recycles() int {
	return f.pool.Recycles()
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	f.pool.close()
	return nil
}

// fetchErr prefers the context error so callers can match deadlines.
func fetchErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
