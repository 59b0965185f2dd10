// Package match records target/article matches.
//
// For every active target with an embedding the matcher finds recent
// articles whose similarity clears the target type's threshold, classifies
// each hit and upserts it keyed on (target, article).
package match

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Defaults for a matching run.
const (
	DefaultLookback       = 24 * time.Hour
	DefaultPerTargetLimit = 50
	DefaultQueryTimeout   = 30 * time.Second
)

// Matcher matches embedded articles against intelligence targets.
type Matcher struct {
	Targets  sigmatch.TargetService
	Articles sigmatch.ArticleService
	Matches  sigmatch.MatchService
	Jobs     sigmatch.JobService
	Logger   *slog.Logger

	// Thresholds defaults to sigmatch.DefaultThresholds when its ByType is nil.
	Thresholds     sigmatch.ThresholdTable
	Lookback       time.Duration
	PerTargetLimit int
	MatchTTL       time.Duration
	QueryTimeout   time.Duration

	Now func() time.Time
}

// Result summarizes one matching run.
type Result struct {
	TargetsProcessed int            `json:"targetsProcessed"`
	TargetsFailed    int            `json:"targetsFailed"`
	Matches          int            `json:"matches"`
	NewMatches       int            `json:"newMatches"`
	Truncated        bool           `json:"truncated"`
	Duration         time.Duration  `json:"duration"`
	Targets          []TargetResult `json:"targets"`
}

// TargetResult is the per-target breakdown of a run.
type TargetResult struct {
	TargetID   string              `json:"targetId"`
	Name       string              `json:"name"`
	TargetType sigmatch.TargetType `json:"targetType"`
	Threshold  float64             `json:"threshold"`
	Matches    int                 `json:"matches"`
	NewMatches int                 `json:"newMatches"`
	Error      string              `json:"error,omitempty"`
}

// Run matches every active embedded target, optionally scoped to one
// organization. A failing target is counted and skipped. Only failing to
// load targets or record the job is returned as an error. A canceled context
// stops the run between targets and the partial result is marked truncated.
func (m *Matcher) Run(ctx context.Context, organizationID string) (*Result, error) {
	start := m.now()
	logger := m.logger()

	job := &sigmatch.Job{JobType: sigmatch.JobMatching, StartedAt: start}
	if organizationID != "" {
		job.Metadata = map[string]any{"organization_id": organizationID}
	}
	if err := m.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	active, embedded := true, true
	filter := sigmatch.TargetFilter{Active: &active, HasEmbedding: &embedded}
	if organizationID != "" {
		filter.OrganizationID = &organizationID
	}
	targets, err := m.Targets.FindTargets(ctx, filter)
	if err != nil {
		_ = m.finish(ctx, job, &Result{}, organizationID, err)
		return nil, fmt.Errorf("find targets: %w", err)
	}

	result := &Result{}
	since := start.Add(-m.lookback())
	for _, target := range targets {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}
		if len(target.Embedding) == 0 {
			continue
		}

		tr, err := m.matchTarget(ctx, target, since)
		if err != nil && ctx.Err() != nil {
			// Interrupted mid-target: its upserts so far are complete rows.
			result.Truncated = true
			result.Matches += tr.Matches
			result.NewMatches += tr.NewMatches
			break
		}
		result.Targets = append(result.Targets, tr)
		if err != nil {
			result.TargetsFailed++
			logger.Warn("target matching failed", "target", target.Name, "err", err)
			continue
		}
		result.TargetsProcessed++
		result.Matches += tr.Matches
		result.NewMatches += tr.NewMatches
		logger.Debug("target matched", "target", target.Name, "threshold", tr.Threshold, "matches", tr.Matches, "new", tr.NewMatches)
	}

	result.Duration = m.now().Sub(start)
	logger.Info("matching finished",
		"targets", result.TargetsProcessed,
		"failed", result.TargetsFailed,
		"matches", result.Matches,
		"new", result.NewMatches,
		"truncated", result.Truncated,
		"duration", result.Duration,
	)
	if err := m.finish(ctx, job, result, organizationID, nil); err != nil {
		return result, err
	}
	return result, nil
}

// matchTarget queries and upserts the matches for one target.
func (m *Matcher) matchTarget(ctx context.Context, target *sigmatch.Target, since time.Time) (TargetResult, error) {
	threshold := m.thresholds().For(target.TargetType)
	tr := TargetResult{
		TargetID:   target.ID,
		Name:       target.Name,
		TargetType: target.TargetType,
		Threshold:  threshold,
	}

	queryCtx, cancel := context.WithTimeout(ctx, m.queryTimeout())
	hits, err := m.Articles.SimilarArticles(queryCtx, target.Embedding, sigmatch.SimilarityQuery{
		Threshold: threshold,
		Limit:     m.perTargetLimit(),
		Since:     since,
	})
	cancel()
	if err != nil {
		tr.Error = err.Error()
		return tr, fmt.Errorf("similarity query: %w", err)
	}

	category := sigmatch.SignalCategory(target.TargetType)
	for _, hit := range hits {
		if hit.Similarity < threshold {
			continue
		}

		matchedAt := m.now()
		match := &sigmatch.Match{
			OrganizationID:  target.OrganizationID,
			TargetID:        target.ID,
			ArticleID:       hit.ArticleID,
			SimilarityScore: min(1, hit.Similarity),
			SignalStrength:  sigmatch.ClassifyStrength(hit.Similarity),
			SignalCategory:  category,
			MatchReason:     Reason(target, hit.Similarity),
			MatchedAt:       matchedAt,
			ExpiresAt:       matchedAt.Add(m.matchTTL()),
		}
		created, err := m.Matches.UpsertMatch(ctx, match)
		if err != nil {
			tr.Error = err.Error()
			return tr, fmt.Errorf("upsert match: %w", err)
		}
		tr.Matches++
		if created {
			tr.NewMatches++
		}
	}
	return tr, nil
}

// Reason describes why an article matched a target.
func Reason(target *sigmatch.Target, similarity float64) string {
	return fmt.Sprintf("%s similarity %.2f to %s %q", sigmatch.ClassifyStrength(similarity), similarity, target.TargetType, target.Name)
}

func (m *Matcher) finish(ctx context.Context, job *sigmatch.Job, result *Result, organizationID string, runErr error) error {
	upd := sigmatch.JobUpdate{
		Status:         sigmatch.JobCompleted,
		ItemsTotal:     result.TargetsProcessed + result.TargetsFailed,
		ItemsProcessed: result.TargetsProcessed,
		ItemsFailed:    result.TargetsFailed,
		CompletedAt:    m.now(),
		Metadata: map[string]any{
			"matches":     result.Matches,
			"new_matches": result.NewMatches,
			"truncated":   result.Truncated,
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
	if organizationID != "" {
		upd.Metadata["organization_id"] = organizationID
	}
	if runErr != nil {
		upd.Status = sigmatch.JobFailed
		upd.Error = runErr.Error()
	}
	if err := m.Jobs.FinishJob(context.WithoutCancel(ctx), job.ID, upd); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (m *Matcher) thresholds() sigmatch.ThresholdTable {
	if m.Thresholds.ByType == nil {
		return sigmatch.DefaultThresholds()
	}
	return m.Thresholds
}

func (m *Matcher) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.Logger
}

func (m *Matcher) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}

func (m *Matcher) lookback() time.Duration {
	if m.Lookback <= 0 {
		return DefaultLookback
	}
	return m.Lookback
}

func (m *Matcher) perTargetLimit() int {
	if m.PerTargetLimit <= 0 {
		return DefaultPerTargetLimit
	}
	return m.PerTargetLimit
}

func (m *Matcher) matchTTL() time.Duration {
	if m.MatchTTL <= 0 {
		return sigmatch.DefaultMatchTTL
	}
	return m.MatchTTL
}

func (m *Matcher) queryTimeout() time.Duration {
	if m.QueryTimeout <= 0 {
		return DefaultQueryTimeout
	}
	return m.QueryTimeout
}
