// Package decay erodes the salience of content that has not been accessed
// recently.
package decay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Per-day decay rates for content classes.
const (
	DefaultRate    = 0.005
	BrandAssetRate = 0.002
)

// DefaultClassRates returns the default per-class decay rates. The "default"
// key applies to classes without their own entry.
func DefaultClassRates() map[string]float64 {
	return map[string]float64{
		"default":     DefaultRate,
		"brand_asset": BrandAssetRate,
	}
}

// Engine applies exponential decay to stored content items.
type Engine struct {
	Content sigmatch.ContentService
	Jobs    sigmatch.JobService
	Logger  *slog.Logger

	// Floor defaults to sigmatch.SalienceFloor and is never set lower.
	Floor float64

	// ClassRates maps content types to per-day decay rates. An item's own
	// DecayRate takes precedence when set.
	ClassRates map[string]float64

	Now func() time.Time
}

// Options scopes a decay run.
type Options struct {
	DryRun         bool
	OrganizationID string
	ContentType    string
}

// Stats summarizes a decay run.
type Stats struct {
	DryRun       bool          `json:"dryRun"`
	Eligible     int           `json:"eligible"`
	UpdatedCount int           `json:"updatedCount"`
	AvgDecay     float64       `json:"avgDecay"`
	MinSalience  float64       `json:"minSalience"`
	MaxSalience  float64       `json:"maxSalience"`
	Skipped      int           `json:"skipped"` // changed or removed after they were read
	Duration     time.Duration `json:"duration"`
}

// Run decays every eligible item. In dry-run mode the new scores are
// computed and reported but nothing is written and no job is recorded.
// Live runs write all scores in a single transaction; items accessed,
// re-scored or deleted since they were read are left alone and counted as
// skipped.
func (e *Engine) Run(ctx context.Context, opts Options) (*Stats, error) {
	start := e.now()
	logger := e.logger()

	var job *sigmatch.Job
	if !opts.DryRun {
		job = &sigmatch.Job{JobType: sigmatch.JobDecay, StartedAt: start, Metadata: scope(opts)}
		if err := e.Jobs.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	}

	filter := sigmatch.DecayFilter{Floor: e.floor()}
	if opts.OrganizationID != "" {
		filter.OrganizationID = &opts.OrganizationID
	}
	if opts.ContentType != "" {
		filter.ContentType = &opts.ContentType
	}

	stats := &Stats{DryRun: opts.DryRun}
	items, err := e.Content.FindDecayable(ctx, filter)
	if err != nil {
		err = fmt.Errorf("find decayable content: %w", err)
		if job != nil {
			_ = e.finish(ctx, job, stats, err)
		}
		return nil, err
	}
	stats.Eligible = len(items)

	updates, stats := e.compute(items, stats)

	if !opts.DryRun && len(updates) > 0 {
		applied, err := e.Content.UpdateSalience(ctx, updates)
		if err != nil {
			err = fmt.Errorf("update salience: %w", err)
			_ = e.finish(ctx, job, stats, err)
			return nil, err
		}
		stats.Skipped = len(updates) - applied
		stats.UpdatedCount = applied
		if stats.Skipped > 0 {
			logger.Debug("salience changed during decay, items skipped", "skipped", stats.Skipped)
		}
	}

	stats.Duration = e.now().Sub(start)
	logger.Info("decay finished",
		"dry_run", opts.DryRun,
		"eligible", stats.Eligible,
		"updated", stats.UpdatedCount,
		"skipped", stats.Skipped,
		"avg_decay", stats.AvgDecay,
		"min", stats.MinSalience,
		"max", stats.MaxSalience,
		"duration", stats.Duration,
	)
	if job != nil {
		if err := e.finish(ctx, job, stats, nil); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// compute returns the score changes for items together with the run stats.
// Items whose score would not change are left out.
func (e *Engine) compute(items []*sigmatch.ContentItem, stats *Stats) ([]sigmatch.SalienceUpdate, *Stats) {
	now, floor := e.now(), e.floor()

	var updates []sigmatch.SalienceUpdate
	var totalDecay float64
	stats.MinSalience, stats.MaxSalience = math.Inf(1), math.Inf(-1)
	for _, item := range items {
		days := sigmatch.DaysElapsed(item.LastAccessedAt, now)
		score := sigmatch.DecaySalience(item.SalienceScore, e.Rate(item), days, floor)

		stats.MinSalience = min(stats.MinSalience, score)
		stats.MaxSalience = max(stats.MaxSalience, score)
		if score >= item.SalienceScore {
			continue
		}
		updates = append(updates, sigmatch.SalienceUpdate{
			ID:             item.ID,
			Score:          score,
			Previous:       item.SalienceScore,
			LastAccessedAt: item.LastAccessedAt,
		})
		totalDecay += item.SalienceScore - score
	}

	if len(items) == 0 {
		stats.MinSalience, stats.MaxSalience = 0, 0
	}
	stats.UpdatedCount = len(updates)
	if len(updates) > 0 {
		stats.AvgDecay = totalDecay / float64(len(updates))
	}
	return updates, stats
}

// Rate returns the per-day decay rate for an item.
func (e *Engine) Rate(item *sigmatch.ContentItem) float64 {
	if item.DecayRate > 0 {
		return item.DecayRate
	}
	rates := e.ClassRates
	if rates == nil {
		rates = DefaultClassRates()
	}
	if rate, ok := rates[item.ContentType]; ok {
		return rate
	}
	if rate, ok := rates["default"]; ok {
		return rate
	}
	return DefaultRate
}

func scope(opts Options) map[string]any {
	m := map[string]any{}
	if opts.OrganizationID != "" {
		m["organization_id"] = opts.OrganizationID
	}
	if opts.ContentType != "" {
		m["content_type"] = opts.ContentType
	}
	return m
}

func (e *Engine) finish(ctx context.Context, job *sigmatch.Job, stats *Stats, runErr error) error {
	upd := sigmatch.JobUpdate{
		Status:         sigmatch.JobCompleted,
		ItemsTotal:     stats.Eligible,
		ItemsProcessed: stats.UpdatedCount,
		CompletedAt:    e.now(),
		Metadata: map[string]any{
			"avg_decay":    stats.AvgDecay,
			"min_salience": stats.MinSalience,
			"max_salience": stats.MaxSalience,
			"skipped":      stats.Skipped,
			"duration_ms":  stats.Duration.Milliseconds(),
		},
	}
	for k, v := range job.Metadata {
		upd.Metadata[k] = v
	}
	if runErr != nil {
		upd.Status = sigmatch.JobFailed
		upd.ItemsProcessed = 0
		upd.Error = runErr.Error()
	}
	if err := e.Jobs.FinishJob(context.WithoutCancel(ctx), job.ID, upd); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (e *Engine) floor() float64 {
	return max(e.Floor, sigmatch.SalienceFloor)
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
