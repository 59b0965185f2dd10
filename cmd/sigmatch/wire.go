package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/bloom"
	"github.com/fwojciec/sigmatch/decay"
	"github.com/fwojciec/sigmatch/discover"
	"github.com/fwojciec/sigmatch/embed"
	"github.com/fwojciec/sigmatch/gemini"
	"github.com/fwojciec/sigmatch/goquery"
	"github.com/fwojciec/sigmatch/htmltomarkdown"
	sighttp "github.com/fwojciec/sigmatch/http"
	"github.com/fwojciec/sigmatch/match"
	"github.com/fwojciec/sigmatch/readability"
	"github.com/fwojciec/sigmatch/rod"
	"github.com/fwojciec/sigmatch/scrape"
	"github.com/fwojciec/sigmatch/selector"
	sigslog "github.com/fwojciec/sigmatch/slog"
	"github.com/fwojciec/sigmatch/trafilatura"
	"github.com/fwojciec/sigmatch/yaml"
	"google.golang.org/genai"
)

// wiring turns configuration into job engines on a Dependencies value.
// External collaborators are wrapped in logging decorators.
type wiring struct {
	cfg    *yaml.Config
	logger *slog.Logger
	deps   *Dependencies
}

func (w *wiring) discoverer() {
	dc := w.cfg.Discovery
	feeds := sighttp.NewFeedClient(
		&http.Client{Timeout: dc.FeedTimeout},
		sighttp.WithMaxItems(dc.MaxItemsPerSource),
	)

	engine := &discover.Engine{
		Sources:  w.deps.Sources,
		Articles: w.deps.Articles,
		Quota:    w.deps.Quota,
		Jobs:     w.deps.Jobs,
		Feeds:    sigslog.NewLoggingFeedClient(feeds, w.logger),
		Cleaner:  goquery.NewCleaner(),
		NewSeenFilter: func() sigmatch.SeenFilter {
			return bloom.NewFilter(dc.SeenCapacity, dc.SeenFalsePositive)
		},
		Logger: w.logger,
		Config: discover.Config{
			SearchBatchSize:   dc.SearchBatchSize,
			BatchPause:        dc.BatchPause,
			MaxSearchSources:  dc.MaxSearchSources,
			DailySearchQuota:  dc.DailySearchQuota,
			FailureCeiling:    dc.FailureCeiling,
			FeedTimeout:       dc.FeedTimeout,
			SearchTimeout:     dc.SearchTimeout,
			MaxItemsPerSource: dc.MaxItemsPerSource,
			MaxDuration:       dc.MaxDuration,
		},
	}

	if sc := w.cfg.Search; sc.Endpoint != "" {
		search := sighttp.NewSearchClient(
			&http.Client{Timeout: dc.SearchTimeout},
			sc.Endpoint,
			sc.APIKey,
			sighttp.WithPageSize(sc.PageSize),
			sighttp.WithRateLimit(sc.RateLimit),
		)
		engine.Search = sigslog.NewLoggingSearchClient(search, w.logger)
	} else {
		w.logger.Debug("search endpoint not configured, search sources will be skipped", "env", yaml.SearchEndpointEnv)
	}

	w.deps.Discoverer = engine
}

// fetcher returns the page fetcher for the scrape stage: headless Chrome
// when scrape.browser is set, plain HTTP otherwise.
func (w *wiring) fetcher() (sigmatch.Fetcher, error) {
	sc := w.cfg.Scrape
	var fetcher sigmatch.Fetcher
	if sc.Browser {
		f, err := rod.NewFetcher(
			rod.WithFetchTimeout(sc.FetchTimeout),
			rod.WithRecycleAfter(sc.BrowserRecycleAfter),
			rod.WithFailureLimit(sc.BrowserFailureLimit),
			rod.WithLogger(w.logger),
		)
		if err != nil {
			return nil, err
		}
		fetcher = f
	} else {
		fetcher = sighttp.NewFetcher(
			sighttp.WithTimeout(sc.FetchTimeout),
			sighttp.WithMaxBodyBytes(sc.MaxBodyBytes),
		)
	}
	return sigslog.NewLoggingFetcher(fetcher, w.logger), nil
}

func (w *wiring) scraper(fetcher sigmatch.Fetcher) {
	sc := w.cfg.Scrape
	s := &scrape.Scraper{
		Articles:     w.deps.Articles,
		Jobs:         w.deps.Jobs,
		Fetcher:      fetcher,
		Extractor:    trafilatura.NewExtractor(),
		Fallback:     readability.NewExtractor(),
		Converter:    htmltomarkdown.NewConverter(),
		Logger:       w.logger,
		Concurrency:  sc.Concurrency,
		BatchSize:    sc.BatchSize,
		MaxAttempts:  sc.MaxAttempts,
		FetchTimeout: sc.FetchTimeout,
	}
	if sc.DomainRate > 0 {
		s.RateLimiter = scrape.NewDomainLimiter(sc.DomainRate)
	}
	w.deps.Scraper = s
}

func (w *wiring) embedder(ctx context.Context) (sigmatch.Embedder, error) {
	ec := w.cfg.Embedding
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  ec.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	embedder := gemini.NewEmbedder(client, gemini.WithModel(ec.Model), gemini.WithDimensions(ec.Dimensions))
	return sigslog.NewLoggingEmbedder(embedder, w.logger), nil
}

func (w *wiring) worker(embedder sigmatch.Embedder) {
	ec := w.cfg.Embedding
	w.deps.Embedder = &embed.Worker{
		Articles:     w.deps.Articles,
		Targets:      w.deps.Targets,
		Jobs:         w.deps.Jobs,
		Embedder:     embedder,
		Cleaner:      goquery.NewCleaner(),
		Logger:       w.logger,
		BatchSize:    ec.BatchSize,
		MaxBatches:   ec.MaxBatches,
		Window:       ec.Window,
		BatchTimeout: ec.BatchTimeout,
	}
}

func (w *wiring) matcher() {
	mc := w.cfg.Matching
	w.deps.Matcher = &match.Matcher{
		Targets:        w.deps.Targets,
		Articles:       w.deps.Articles,
		Matches:        w.deps.Matches,
		Jobs:           w.deps.Jobs,
		Logger:         w.logger,
		Thresholds:     mc.Thresholds,
		Lookback:       mc.Lookback,
		PerTargetLimit: mc.PerTargetLimit,
		MatchTTL:       mc.MatchTTL,
	}
}

func (w *wiring) selector() {
	sc := w.cfg.Selection
	w.deps.Selector = &selector.Selector{
		Matches:       w.deps.Matches,
		Logger:        w.logger,
		CandidatePool: sc.CandidatePool,
		Floor:         sc.Floor,
		PerSourceCap:  sc.PerSourceCap,
		OutputCap:     sc.OutputCap,
		Window:        sc.Window,
	}
}

func (w *wiring) decayer() {
	dc := w.cfg.Decay
	w.deps.Decayer = &decay.Engine{
		Content:    w.deps.Content,
		Jobs:       w.deps.Jobs,
		Logger:     w.logger,
		Floor:      dc.Floor,
		ClassRates: dc.ClassRates,
	}
}
