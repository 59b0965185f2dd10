// Package scrape fills in article bodies for queued articles. It fetches
// pending articles in scrape-priority order, extracts the main content and
// records the outcome on the article's scrape state machine.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/sigmatch"
	"golang.org/x/sync/errgroup"
)

// Defaults for a scrape run.
const (
	DefaultConcurrency  = 5
	DefaultBatchSize    = 100
	DefaultMaxAttempts  = 3
	DefaultFetchTimeout = 15 * time.Second
)

// Scraper fetches article pages and stores their extracted text.
type Scraper struct {
	Articles    sigmatch.ArticleService
	Jobs        sigmatch.JobService
	Fetcher     sigmatch.Fetcher
	Extractor   sigmatch.Extractor
	Fallback    sigmatch.Extractor // optional, used when Extractor finds no body
	Converter   sigmatch.Converter
	RateLimiter sigmatch.DomainLimiter // optional
	Logger      *slog.Logger

	Concurrency  int
	BatchSize    int
	MaxAttempts  int
	FetchTimeout time.Duration
	RetryDelays  []time.Duration

	Now func() time.Time
}

// Result summarizes one scrape run.
type Result struct {
	Total        int           `json:"total"`
	Completed    int           `json:"completed"`
	MetadataOnly int           `json:"metadataOnly"`
	Failed       int           `json:"failed"`
	GaveUp       int           `json:"gaveUp"` // failures that exhausted the attempt budget
	Truncated    bool          `json:"truncated"`
	Duration     time.Duration `json:"duration"`
}

// outcome is the result of processing a single article.
type outcome struct {
	status sigmatch.ScrapeStatus
	err    error

	// interrupted is set when cancellation stopped the article before its
	// outcome was recorded; the article stays queued untouched.
	interrupted bool
}

// Run processes one batch of pending articles.
// Only a failure to read the queue or write the job record is returned as an
// error; per-article failures are counted in the result.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	logger := s.logger()
	start := s.now()

	job := &sigmatch.Job{JobType: sigmatch.JobScrape, StartedAt: start}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	maxAttempts := s.maxAttempts()
	status := sigmatch.ScrapePending
	articles, err := s.Articles.FindArticles(ctx, sigmatch.ArticleFilter{
		ScrapeStatus:   &status,
		MaxAttempts:    &maxAttempts,
		SortByPriority: true,
		Limit:          s.batchSize(),
	})
	if err != nil {
		_ = s.finish(ctx, job, &Result{}, err)
		return nil, fmt.Errorf("find pending articles: %w", err)
	}

	result := &Result{Total: len(articles)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, article := range articles {
		g.Go(func() error {
			var out outcome
			if gctx.Err() != nil {
				out.interrupted = true
			} else {
				out = s.process(gctx, article, maxAttempts)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case out.interrupted:
				result.Truncated = true
			case out.err != nil:
				result.Failed++
				if out.status == sigmatch.ScrapeFailed {
					result.GaveUp++
				}
				logger.Warn("scrape failed", "url", article.URL, "attempt", article.ScrapeAttempts+1, "err", out.err)
			case out.status == sigmatch.ScrapeMetadataOnly:
				result.MetadataOnly++
			default:
				result.Completed++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = s.now().Sub(start)
	logger.Info("scrape finished",
		"total", result.Total,
		"completed", result.Completed,
		"metadata_only", result.MetadataOnly,
		"failed", result.Failed,
		"truncated", result.Truncated,
		"duration", result.Duration,
	)
	if err := s.finish(ctx, job, result, nil); err != nil {
		return result, err
	}
	return result, nil
}

// process fetches, extracts and stores one article.
func (s *Scraper) process(ctx context.Context, article *sigmatch.Article, maxAttempts int) outcome {
	attempts := article.ScrapeAttempts + 1

	text, topics, err := s.scrape(ctx, article.URL)
	if err != nil && ctx.Err() != nil {
		return outcome{interrupted: true}
	}
	if err != nil {
		status := sigmatch.ScrapePending
		if attempts >= maxAttempts {
			status = sigmatch.ScrapeFailed
		}
		if uerr := s.Articles.UpdateScrape(ctx, article.ID, sigmatch.ScrapeUpdate{
			Status:   status,
			Attempts: attempts,
		}); uerr != nil {
			err = fmt.Errorf("%w (recording failure: %v)", err, uerr)
		}
		return outcome{status: status, err: err}
	}

	upd := sigmatch.ScrapeUpdate{
		Status:   sigmatch.ScrapeCompleted,
		Attempts: attempts,
		Topics:   topics,
	}
	if text == "" {
		upd.Status = sigmatch.ScrapeMetadataOnly
	} else {
		upd.FullText = &text
	}
	if err := s.Articles.UpdateScrape(ctx, article.ID, upd); err != nil {
		return outcome{err: fmt.Errorf("update scrape: %w", err)}
	}
	return outcome{status: upd.Status}
}

// scrape returns the article's body text and topics. An empty body with a
// nil error means the page was fetched but held no extractable article.
func (s *Scraper) scrape(ctx context.Context, rawURL string) (string, []string, error) {
	if s.RateLimiter != nil {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			if err := s.RateLimiter.Wait(ctx, u.Host); err != nil {
				return "", nil, err
			}
		}
	}

	fetch := func(ctx context.Context, target string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
		defer cancel()
		return s.Fetcher.Fetch(ctx, target)
	}
	delays := s.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	html, err := FetchWithRetry(ctx, rawURL, fetch, s.Logger, delays)
	if err != nil {
		return "", nil, err
	}

	extracted := s.extract(html)
	if !hasBody(extracted) {
		return "", topicsOf(extracted), nil
	}

	text, err := s.Converter.Convert(extracted.ContentHTML)
	if err != nil {
		return "", nil, fmt.Errorf("convert: %w", err)
	}
	return strings.TrimSpace(text), extracted.Topics, nil
}

// extract runs the primary extractor, falling back when it finds no body.
// It returns nil when neither extractor could parse the page.
func (s *Scraper) extract(html string) *sigmatch.ExtractResult {
	primary, err := s.Extractor.Extract(html)
	if err != nil {
		primary = nil
	}
	if hasBody(primary) || s.Fallback == nil {
		return primary
	}

	fallback, err := s.Fallback.Extract(html)
	if err != nil || !hasBody(fallback) {
		return primary
	}
	if primary != nil && len(fallback.Topics) == 0 {
		fallback.Topics = primary.Topics
	}
	return fallback
}

func hasBody(r *sigmatch.ExtractResult) bool {
	return r != nil && strings.TrimSpace(r.ContentHTML) != ""
}

func (s *Scraper) finish(ctx context.Context, job *sigmatch.Job, result *Result, runErr error) error {
	upd := sigmatch.JobUpdate{
		Status:         sigmatch.JobCompleted,
		ItemsTotal:     result.Total,
		ItemsProcessed: result.Completed + result.MetadataOnly,
		ItemsFailed:    result.Failed,
		CompletedAt:    s.now(),
		Metadata: map[string]any{
			"metadata_only": result.MetadataOnly,
			"gave_up":       result.GaveUp,
			"truncated":     result.Truncated,
			"duration_ms":   result.Duration.Milliseconds(),
		},
	}
	if runErr != nil {
		upd.Status = sigmatch.JobFailed
		upd.Error = runErr.Error()
	}
	if err := s.Jobs.FinishJob(context.WithoutCancel(ctx), job.ID, upd); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func topicsOf(r *sigmatch.ExtractResult) []string {
	if r == nil {
		return nil
	}
	return r.Topics
}

func (s *Scraper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s *Scraper) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func (s *Scraper) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

func (s *Scraper) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

func (s *Scraper) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *Scraper) fetchTimeout() time.Duration {
	if s.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return s.FetchTimeout
}
