// Package discover turns active sources into queued articles.
//
// Feed sources are polled one after another. Search-API sources share a
// daily call quota, so they are capped per run, reserved against the quota
// ledger up front and processed in parallel batches with a pause between
// batches. A failing source is recorded against its health counters and
// never aborts the run; only store failures do.
package discover

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/fwojciec/sigmatch"
	"golang.org/x/sync/errgroup"
)

// Defaults for a discovery run.
const (
	DefaultSearchBatchSize   = 10
	DefaultBatchPause        = 2 * time.Second
	DefaultMaxSearchSources  = 50
	DefaultDailySearchQuota  = 100
	DefaultFailureCeiling    = 10
	DefaultFeedTimeout       = 10 * time.Second
	DefaultSearchTimeout     = 15 * time.Second
	DefaultMaxItemsPerSource = 100
)

// Config tunes a discovery run. Zero values fall back to the defaults with
// two exceptions: a zero BatchPause means no pause, and a FailureCeiling of
// zero or less never disables a source.
type Config struct {
	SearchBatchSize   int
	BatchPause        time.Duration
	MaxSearchSources  int
	DailySearchQuota  int
	FailureCeiling    int
	FeedTimeout       time.Duration
	SearchTimeout     time.Duration
	MaxItemsPerSource int

	// MaxDuration is the run budget. Once spent, no new source or batch is
	// started and the result is flagged truncated. Zero means unlimited.
	MaxDuration time.Duration
}

// DefaultConfig returns the default discovery configuration.
func DefaultConfig() Config {
	return Config{
		SearchBatchSize:   DefaultSearchBatchSize,
		BatchPause:        DefaultBatchPause,
		MaxSearchSources:  DefaultMaxSearchSources,
		DailySearchQuota:  DefaultDailySearchQuota,
		FailureCeiling:    DefaultFailureCeiling,
		FeedTimeout:       DefaultFeedTimeout,
		SearchTimeout:     DefaultSearchTimeout,
		MaxItemsPerSource: DefaultMaxItemsPerSource,
	}
}

// Engine discovers candidate articles from the source registry.
type Engine struct {
	Sources  sigmatch.SourceService
	Articles sigmatch.ArticleService
	Quota    sigmatch.QuotaService
	Jobs     sigmatch.JobService
	Feeds    sigmatch.FeedClient
	Search   sigmatch.SearchClient // optional; search sources are skipped without it

	// NewSeenFilter returns the in-run (source, URL) pre-screen. Optional.
	NewSeenFilter func() sigmatch.SeenFilter

	// Cleaner strips markup from provider descriptions. Optional.
	Cleaner sigmatch.TextCleaner

	Logger *slog.Logger
	Config Config
	Now    func() time.Time
}

// Result summarizes one discovery run.
type Result struct {
	SourcesAttempted int            `json:"sourcesAttempted"`
	SourcesSucceeded int            `json:"sourcesSucceeded"`
	SourcesFailed    int            `json:"sourcesFailed"`
	SourcesDisabled  int            `json:"sourcesDisabled"`
	SourcesSkipped   int            `json:"sourcesSkipped"`
	Discovered       int            `json:"discovered"`
	New              int            `json:"new"`
	Duplicate        int            `json:"duplicate"`
	QuotaExhausted   bool           `json:"quotaExhausted"`
	SearchCallsUsed  int            `json:"searchCallsUsed"` // today's ledger after this run's reservation
	SearchQuota      int            `json:"searchQuota"`
	Truncated        bool           `json:"truncated"`
	Duration         time.Duration  `json:"duration"`
	Sources          []SourceResult `json:"sources"`
}

// SourceResult is the per-source breakdown of a run.
type SourceResult struct {
	SourceID   string                   `json:"sourceId"`
	Name       string                   `json:"name"`
	Method     sigmatch.DiscoveryMethod `json:"method"`
	Discovered int                      `json:"discovered"`
	New        int                      `json:"new"`
	Duplicate  int                      `json:"duplicate"`
	Error      string                   `json:"error,omitempty"`
	Disabled   bool                     `json:"disabled,omitempty"`

	quota bool
}

// Run performs one discovery pass over all active sources. The returned
// error is non-nil only when the store failed; the result is still
// populated with the work done before the failure. Cancellation stops
// scheduling sources and marks the result truncated.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	logger := e.logger()

	job := &sigmatch.Job{JobType: sigmatch.JobDiscovery, StartedAt: start}
	if err := e.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	result := &Result{}
	err := e.run(ctx, start, result)
	result.Duration = e.now().Sub(start)

	logger.Info("discovery finished",
		"attempted", result.SourcesAttempted,
		"succeeded", result.SourcesSucceeded,
		"failed", result.SourcesFailed,
		"new", result.New,
		"duplicate", result.Duplicate,
		"quota_exhausted", result.QuotaExhausted,
		"search_calls_used", result.SearchCallsUsed,
		"truncated", result.Truncated,
		"duration", result.Duration,
		"err", err,
	)

	if ferr := e.finish(ctx, job, result, err); ferr != nil && err == nil {
		err = ferr
	}
	return result, err
}

func (e *Engine) run(ctx context.Context, start time.Time, result *Result) error {
	active := true
	sources, err := e.Sources.FindSources(ctx, sigmatch.SourceFilter{Active: &active})
	if err != nil {
		return fmt.Errorf("find sources: %w", err)
	}

	var feeds, searches []*sigmatch.Source
	for _, src := range sources {
		switch src.DiscoveryMethod {
		case sigmatch.DiscoveryFeed:
			feeds = append(feeds, src)
		case sigmatch.DiscoverySearchAPI:
			searches = append(searches, src)
		}
	}

	seen := e.seenFilter()
	if c, ok := seen.(interface{ EstimatedCount() uint }); ok {
		defer func() {
			e.logger().Debug("seen filter", "estimated_pairs", c.EstimatedCount())
		}()
	}

	for i, src := range feeds {
		if ctx.Err() != nil || e.expired(start) {
			result.Truncated = true
			result.SourcesSkipped += len(feeds) - i
			break
		}
		sr, err := e.processSource(ctx, src, seen)
		if err != nil && ctx.Err() != nil {
			result.interrupted(sr)
			result.Truncated = true
			result.SourcesSkipped += len(feeds) - i - 1
			break
		}
		result.add(sr)
		if err != nil {
			return err
		}
	}

	return e.runSearch(ctx, start, searches, seen, result)
}

// runSearch processes search sources in quota-reserved parallel batches.
func (e *Engine) runSearch(ctx context.Context, start time.Time, sources []*sigmatch.Source, seen sigmatch.SeenFilter, result *Result) error {
	if len(sources) == 0 {
		return nil
	}
	logger := e.logger()

	if e.Search == nil {
		logger.Warn("no search client configured, skipping search sources", "count", len(sources))
		result.SourcesSkipped += len(sources)
		return nil
	}

	slices.SortStableFunc(sources, func(a, b *sigmatch.Source) int {
		return cmp.Or(cmp.Compare(a.Tier, b.Tier), strings.Compare(a.Name, b.Name))
	})
	if limit := e.maxSearchSources(); len(sources) > limit {
		result.SourcesSkipped += len(sources) - limit
		sources = sources[:limit]
	}
	if result.Truncated || ctx.Err() != nil || e.expired(start) {
		result.Truncated = true
		result.SourcesSkipped += len(sources)
		return nil
	}

	granted, err := e.Quota.ReserveSearchCalls(ctx, start, len(sources), e.dailyQuota())
	if err != nil {
		return fmt.Errorf("reserve search quota: %w", err)
	}
	result.SearchQuota = e.dailyQuota()
	if used, err := e.Quota.SearchCallsUsed(ctx, start); err != nil {
		logger.Warn("read search quota usage", "err", err)
	} else {
		result.SearchCallsUsed = used
	}
	if granted < len(sources) {
		logger.Warn("search quota exhausted", "requested", len(sources), "granted", granted)
		result.QuotaExhausted = true
		result.SourcesSkipped += len(sources) - granted
		sources = sources[:granted]
	}

	batchSize := e.searchBatchSize()
	for i := 0; i < len(sources); i += batchSize {
		batch := sources[i:min(i+batchSize, len(sources))]
		remaining := len(sources) - i

		if i > 0 {
			_ = sleep(ctx, e.batchPause())
		}
		if ctx.Err() != nil || e.expired(start) {
			result.Truncated = true
			result.SourcesSkipped += remaining
			return nil
		}

		results := make([]SourceResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for j, src := range batch {
			g.Go(func() error {
				sr, err := e.processSource(gctx, src, seen)
				results[j] = sr
				return err
			})
		}
		err := g.Wait()

		canceled := err != nil && ctx.Err() != nil
		quotaHit := false
		for _, sr := range results {
			if sr.SourceID == "" {
				continue
			}
			if canceled && sr.Error != "" {
				result.interrupted(sr)
				continue
			}
			result.add(sr)
			quotaHit = quotaHit || sr.quota
		}
		if canceled {
			result.Truncated = true
			result.SourcesSkipped += remaining - len(batch)
			return nil
		}
		if err != nil {
			return err
		}
		if quotaHit {
			logger.Warn("search provider reported quota exhaustion, stopping search batches")
			result.QuotaExhausted = true
			result.SourcesSkipped += remaining - len(batch)
			return nil
		}
	}
	return nil
}

// processSource fetches one source's candidates and enqueues the new ones.
// The returned error is an infrastructure failure that must abort the run.
func (e *Engine) processSource(ctx context.Context, src *sigmatch.Source, seen sigmatch.SeenFilter) (sr SourceResult, err error) {
	sr = SourceResult{SourceID: src.ID, Name: src.Name, Method: src.DiscoveryMethod}
	defer func() {
		if err != nil && sr.Error == "" {
			sr.Error = err.Error()
		}
	}()
	logger := e.logger().With("source", src.Name)

	items, err := e.fetch(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return sr, ctx.Err()
		}
		sr.Error = err.Error()
		if sigmatch.ErrorCode(err) == sigmatch.EQUOTA {
			sr.quota = true
			return sr, nil
		}
		disabled, rerr := e.Sources.RecordSourceFailure(ctx, src.ID, err.Error(), e.Config.FailureCeiling)
		if rerr != nil {
			return sr, fmt.Errorf("record source failure: %w", rerr)
		}
		sr.Disabled = disabled
		logger.Warn("source failed", "err", err, "disabled", disabled)
		return sr, nil
	}

	if limit := e.maxItems(); len(items) > limit {
		items = items[:limit]
	}

	for _, item := range items {
		url := strings.TrimSpace(item.URL)
		if url == "" {
			continue
		}
		sr.Discovered++

		if seen != nil && seen.TestAndAdd(src.ID, url) {
			exists, err := e.Articles.ArticleExists(ctx, src.ID, url)
			if err != nil {
				return sr, fmt.Errorf("check article: %w", err)
			}
			if exists {
				sr.Duplicate++
				continue
			}
		}

		created, err := e.Articles.CreateArticle(ctx, e.newArticle(src, url, item))
		if err != nil {
			if sigmatch.ErrorCode(err) == sigmatch.EINVALID {
				logger.Debug("skipping invalid item", "url", url, "err", err)
				sr.Discovered--
				continue
			}
			return sr, fmt.Errorf("create article: %w", err)
		}
		if created {
			sr.New++
		} else {
			sr.Duplicate++
		}
	}

	if err := e.Sources.RecordSourceSuccess(ctx, src.ID, e.now()); err != nil {
		return sr, fmt.Errorf("record source success: %w", err)
	}
	logger.Debug("source processed", "discovered", sr.Discovered, "new", sr.New, "duplicate", sr.Duplicate)
	return sr, nil
}

// fetch calls the source's discovery provider under a per-call timeout.
func (e *Engine) fetch(ctx context.Context, src *sigmatch.Source) ([]sigmatch.FeedItem, error) {
	switch src.DiscoveryMethod {
	case sigmatch.DiscoveryFeed:
		ctx, cancel := context.WithTimeout(ctx, e.feedTimeout())
		defer cancel()
		return e.Feeds.FetchFeed(ctx, src.URL)
	case sigmatch.DiscoverySearchAPI:
		ctx, cancel := context.WithTimeout(ctx, e.searchTimeout())
		defer cancel()
		return e.Search.Search(ctx, src.Query)
	default:
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "unknown discovery method %q", src.DiscoveryMethod)
	}
}

func (e *Engine) newArticle(src *sigmatch.Source, url string, item sigmatch.FeedItem) *sigmatch.Article {
	description := strings.TrimSpace(item.Description)
	if e.Cleaner != nil && description != "" {
		description = e.Cleaner.Clean(description)
	}
	return &sigmatch.Article{
		SourceID:       src.ID,
		URL:            url,
		Title:          strings.TrimSpace(item.Title),
		Description:    description,
		Author:         strings.TrimSpace(item.Author),
		PublishedAt:    item.PublishedAt,
		ScrapeStatus:   sigmatch.ScrapePending,
		ScrapePriority: sigmatch.ScrapePriority(src.Tier),
	}
}

func (e *Engine) finish(ctx context.Context, job *sigmatch.Job, result *Result, runErr error) error {
	upd := sigmatch.JobUpdate{
		Status:         sigmatch.JobCompleted,
		ItemsTotal:     result.SourcesAttempted,
		ItemsProcessed: result.SourcesSucceeded,
		ItemsFailed:    result.SourcesFailed,
		CompletedAt:    e.now(),
		Metadata: map[string]any{
			"discovered":        result.Discovered,
			"new":               result.New,
			"duplicate":         result.Duplicate,
			"sources_disabled":  result.SourcesDisabled,
			"sources_skipped":   result.SourcesSkipped,
			"quota_exhausted":   result.QuotaExhausted,
			"search_calls_used": result.SearchCallsUsed,
			"truncated":         result.Truncated,
			"duration_ms":       result.Duration.Milliseconds(),
			"sources":           result.Sources,
		},
	}
	if runErr != nil {
		upd.Status = sigmatch.JobFailed
		upd.Error = runErr.Error()
	}
	if err := e.Jobs.FinishJob(context.WithoutCancel(ctx), job.ID, upd); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// interrupted folds in a source cut short by cancellation. Its inserted
// articles count; the source itself counts as skipped.
func (r *Result) interrupted(sr SourceResult) {
	r.SourcesSkipped++
	r.Discovered += sr.Discovered
	r.New += sr.New
	r.Duplicate += sr.Duplicate
}

// add folds a source outcome into the run totals. A source whose call was
// refused for quota counts as skipped, not failed.
func (r *Result) add(sr SourceResult) {
	r.Sources = append(r.Sources, sr)
	if sr.quota {
		r.SourcesSkipped++
		return
	}
	r.SourcesAttempted++
	r.Discovered += sr.Discovered
	r.New += sr.New
	r.Duplicate += sr.Duplicate
	if sr.Error == "" {
		r.SourcesSucceeded++
	} else {
		r.SourcesFailed++
	}
	if sr.Disabled {
		r.SourcesDisabled++
	}
}

func (e *Engine) expired(start time.Time) bool {
	return e.Config.MaxDuration > 0 && e.now().Sub(start) >= e.Config.MaxDuration
}

func (e *Engine) seenFilter() sigmatch.SeenFilter {
	if e.NewSeenFilter == nil {
		return nil
	}
	return e.NewSeenFilter()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Engine) searchBatchSize() int {
	if e.Config.SearchBatchSize <= 0 {
		return DefaultSearchBatchSize
	}
	return e.Config.SearchBatchSize
}

func (e *Engine) batchPause() time.Duration {
	if e.Config.BatchPause < 0 {
		return 0
	}
	return e.Config.BatchPause
}

func (e *Engine) maxSearchSources() int {
	if e.Config.MaxSearchSources <= 0 {
		return DefaultMaxSearchSources
	}
	return e.Config.MaxSearchSources
}

func (e *Engine) dailyQuota() int {
	if e.Config.DailySearchQuota <= 0 {
		return DefaultDailySearchQuota
	}
	return e.Config.DailySearchQuota
}

func (e *Engine) feedTimeout() time.Duration {
	if e.Config.FeedTimeout <= 0 {
		return DefaultFeedTimeout
	}
	return e.Config.FeedTimeout
}

func (e *Engine) searchTimeout() time.Duration {
	if e.Config.SearchTimeout <= 0 {
		return DefaultSearchTimeout
	}
	return e.Config.SearchTimeout
}

func (e *Engine) maxItems() int {
	if e.Config.MaxItemsPerSource <= 0 {
		return DefaultMaxItemsPerSource
	}
	return e.Config.MaxItemsPerSource
}
