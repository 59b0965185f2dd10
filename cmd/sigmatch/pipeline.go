package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/decay"
)

// Run executes the discover command.
func (c *DiscoverCmd) Run(deps *Dependencies) error {
	return discoverOnce(deps)
}

// Run executes the scrape command.
func (c *ScrapeCmd) Run(deps *Dependencies) error {
	return scrapeOnce(deps)
}

// Run executes the embed command.
func (c *EmbedCmd) Run(deps *Dependencies) error {
	return embedOnce(deps)
}

// Run executes the match command.
func (c *MatchCmd) Run(deps *Dependencies) error {
	return matchOnce(deps, c.Org)
}

// Run executes the run command.
func (c *RunCmd) Run(deps *Dependencies) error {
	return runPipeline(deps)
}

// Run executes the schedule command. The pipeline runs immediately and then
// on every tick; decay runs on its own interval. A failed pass is logged and
// retried on the next tick. Returns nil once the context is canceled.
func (c *ScheduleCmd) Run(deps *Dependencies) error {
	every := c.Every
	if every <= 0 {
		every = deps.Config.Schedule.Interval
	}
	decayEvery := deps.Config.Schedule.DecayInterval
	if every <= 0 || decayEvery <= 0 {
		return sigmatch.Errorf(sigmatch.EINVALID, "schedule intervals must be positive")
	}

	logger := deps.Logger
	logger.Info("scheduler started", "every", every, "decay_every", decayEvery)

	pipeline := time.NewTicker(every)
	defer pipeline.Stop()
	decayTicker := time.NewTicker(decayEvery)
	defer decayTicker.Stop()

	runPass := func() {
		if err := runPipeline(deps); err != nil {
			logger.Error("pipeline pass failed", "err", err)
		}
	}
	runDecay := func() {
		if _, err := deps.Decayer.Run(deps.Ctx, decay.Options{}); err != nil {
			logger.Error("decay pass failed", "err", err)
		}
	}

	runPass()
	runDecay()
	for {
		select {
		case <-deps.Ctx.Done():
			logger.Info("scheduler stopped")
			return nil
		case <-pipeline.C:
			runPass()
		case <-decayTicker.C:
			runDecay()
		}
	}
}

// runPipeline runs one discover, scrape, embed and match pass. It stops at
// the first stage that fails outright.
func runPipeline(deps *Dependencies) error {
	if err := discoverOnce(deps); err != nil {
		return err
	}
	if err := scrapeOnce(deps); err != nil {
		return err
	}
	if _, err := deps.Embedder.EmbedTargets(deps.Ctx, ""); err != nil {
		fmt.Fprintf(deps.Stderr, "error: embed targets: %s\n", sigmatch.ErrorMessage(err))
		return err
	}
	if err := embedOnce(deps); err != nil {
		return err
	}
	return matchOnce(deps, "")
}

func discoverOnce(deps *Dependencies) error {
	result, err := deps.Discoverer.Run(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: discover: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Discover: %d sources (%d failed, %d disabled, %d skipped), %d new articles, %d duplicates",
		result.SourcesAttempted, result.SourcesFailed, result.SourcesDisabled, result.SourcesSkipped, result.New, result.Duplicate)
	if result.SearchQuota > 0 {
		fmt.Fprintf(deps.Stdout, ", search quota %d/%d used", result.SearchCallsUsed, result.SearchQuota)
	}
	if result.QuotaExhausted {
		fmt.Fprint(deps.Stdout, ", search quota exhausted")
	}
	if result.Truncated {
		fmt.Fprint(deps.Stdout, ", truncated")
	}
	fmt.Fprintf(deps.Stdout, " in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func scrapeOnce(deps *Dependencies) error {
	result, err := deps.Scraper.Run(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: scrape: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Scrape: %d articles, %d completed, %d metadata only, %d failed (%d gave up)",
		result.Total, result.Completed, result.MetadataOnly, result.Failed, result.GaveUp)
	if result.Truncated {
		fmt.Fprint(deps.Stdout, ", truncated")
	}
	fmt.Fprintf(deps.Stdout, " in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func embedOnce(deps *Dependencies) error {
	result, err := deps.Embedder.Run(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: embed: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Embed: %d articles, %d embedded, %d failed, %d skipped in %d batches",
		result.Total, result.Processed, result.Failed, result.Skipped, result.Batches)
	if result.Truncated {
		fmt.Fprint(deps.Stdout, ", truncated")
	}
	fmt.Fprintf(deps.Stdout, " in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func matchOnce(deps *Dependencies, org string) error {
	result, err := deps.Matcher.Run(deps.Ctx, org)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: match: %s\n", sigmatch.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Match: %d targets (%d failed), %d matches, %d new",
		result.TargetsProcessed, result.TargetsFailed, result.Matches, result.NewMatches)
	if result.Truncated {
		fmt.Fprint(deps.Stdout, ", truncated")
	}
	fmt.Fprintf(deps.Stdout, " in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}
