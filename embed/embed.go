// Package embed turns queued articles into vectors.
//
// The worker picks recent un-embedded articles, builds an embedding
// document for each, and sends them to the provider in bounded batches. A
// failed batch leaves its articles un-embedded for the next run.
package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Defaults for an embedding run.
const (
	DefaultBatchSize    = 100
	DefaultMaxBatches   = 10
	DefaultWindow       = 24 * time.Hour
	DefaultBatchTimeout = 60 * time.Second
)

// MaxBodyChars caps the cleaned body inside an embedding document.
const MaxBodyChars = 6000

// Worker embeds queued articles and intelligence targets.
type Worker struct {
	Articles sigmatch.ArticleService
	Targets  sigmatch.TargetService
	Jobs     sigmatch.JobService
	Embedder sigmatch.Embedder
	Cleaner  sigmatch.TextCleaner // optional
	Logger   *slog.Logger

	BatchSize    int
	MaxBatches   int
	Window       time.Duration
	BatchTimeout time.Duration

	Now func() time.Time
}

// Result summarizes one embedding run.
type Result struct {
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Batches   int           `json:"batches"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Run embeds up to MaxBatches batches of recent un-embedded articles.
// Articles without a body or description are skipped, not failed.
// Only a failure to read the queue or record the job is returned as an error.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	start := w.now()
	logger := w.logger()

	job := &sigmatch.Job{JobType: sigmatch.JobEmbedding, StartedAt: start}
	if err := w.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	batchSize := w.batchSize()
	limit := batchSize * w.maxBatches()

	articles, err := w.Articles.FindEmbeddable(ctx, start.Add(-w.window()), limit+1)
	if err != nil {
		_ = w.finish(ctx, job, &Result{}, err)
		return nil, fmt.Errorf("find embeddable articles: %w", err)
	}

	result := &Result{}
	if len(articles) > limit {
		result.Truncated = true
		articles = articles[:limit]
	}
	result.Total = len(articles)

	var pending []*sigmatch.Article
	for _, a := range articles {
		if !a.HasUsableText() {
			result.Skipped++
			continue
		}
		pending = append(pending, a)
	}

	for i := 0; i < len(pending); i += batchSize {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}
		batch := pending[i:min(i+batchSize, len(pending))]
		result.Batches++

		err := w.embedBatch(ctx, batch)
		if err == nil {
			result.Processed += len(batch)
			continue
		}
		if ctx.Err() != nil {
			// The batch's vectors are written in one transaction, so an
			// interrupted batch left nothing behind.
			result.Truncated = true
			break
		}

		result.Failed += len(batch)
		logger.Warn("embedding batch failed", "batch", result.Batches, "size", len(batch), "err", err)
		if sigmatch.ErrorCode(err) == sigmatch.EQUOTA {
			result.Truncated = result.Truncated || i+batchSize < len(pending)
			break
		}
	}

	result.Duration = w.now().Sub(start)
	logger.Info("embedding finished",
		"total", result.Total,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"batches", result.Batches,
		"truncated", result.Truncated,
		"duration", result.Duration,
	)
	if err := w.finish(ctx, job, result, nil); err != nil {
		return result, err
	}
	return result, nil
}

// embedBatch embeds one batch and stores all of its vectors or none.
func (w *Worker) embedBatch(ctx context.Context, batch []*sigmatch.Article) error {
	texts := make([]string, len(batch))
	for i, a := range batch {
		texts[i] = Document(a, w.Cleaner)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.batchTimeout())
	defer cancel()

	vectors, err := w.Embedder.Embed(callCtx, texts, sigmatch.EmbedDocument)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return sigmatch.Errorf(sigmatch.EINTERNAL, "provider returned %d vectors for %d texts", len(vectors), len(batch))
	}

	embeddings := make([]sigmatch.ArticleEmbedding, len(batch))
	for i, a := range batch {
		embeddings[i] = sigmatch.ArticleEmbedding{ArticleID: a.ID, Vector: vectors[i]}
	}
	if err := w.Articles.SetEmbeddings(ctx, embeddings, w.now()); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	return nil
}

// TargetResult summarizes an EmbedTargets run.
type TargetResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// EmbedTargets computes embeddings for active targets that do not have one.
// Targets are embedded in query mode since they are matched against
// documents. A failing batch is counted and the next batch still runs.
func (w *Worker) EmbedTargets(ctx context.Context, organizationID string) (*TargetResult, error) {
	logger := w.logger()

	active, missing := true, false
	filter := sigmatch.TargetFilter{Active: &active, HasEmbedding: &missing}
	if organizationID != "" {
		filter.OrganizationID = &organizationID
	}
	targets, err := w.Targets.FindTargets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find targets: %w", err)
	}

	result := &TargetResult{Total: len(targets)}
	batchSize := min(w.batchSize(), sigmatch.MaxEmbedBatch)
	for i := 0; i < len(targets); i += batchSize {
		if ctx.Err() != nil {
			break
		}
		batch := targets[i:min(i+batchSize, len(targets))]

		texts := make([]string, len(batch))
		for j, t := range batch {
			texts[j] = TargetDocument(t)
		}

		callCtx, cancel := context.WithTimeout(ctx, w.batchTimeout())
		vectors, err := w.Embedder.Embed(callCtx, texts, sigmatch.EmbedQuery)
		cancel()
		if err == nil && len(vectors) != len(batch) {
			err = sigmatch.Errorf(sigmatch.EINTERNAL, "provider returned %d vectors for %d texts", len(vectors), len(batch))
		}
		if err != nil && ctx.Err() != nil {
			break
		}
		if err != nil {
			result.Failed += len(batch)
			logger.Warn("target embedding batch failed", "size", len(batch), "err", err)
			continue
		}

		for j, t := range batch {
			if err := w.Targets.SetTargetEmbedding(ctx, t.ID, vectors[j]); err != nil {
				return result, fmt.Errorf("store target embedding: %w", err)
			}
			result.Processed++
		}
	}

	logger.Info("target embedding finished", "total", result.Total, "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

// Document builds the embedding document for an article: title, source
// name, the cleaned body (or the description when there is no body) and
// topics, capped at sigmatch.MaxEmbedTextChars characters.
func Document(a *sigmatch.Article, cleaner sigmatch.TextCleaner) string {
	var parts []string
	if title := strings.TrimSpace(a.Title); title != "" {
		parts = append(parts, title)
	}
	if a.SourceName != "" {
		parts = append(parts, "Source: "+a.SourceName)
	}

	body := clean(a.FullText, cleaner)
	if body == "" {
		body = clean(a.Description, cleaner)
	}
	if body != "" {
		parts = append(parts, sigmatch.TruncateRunes(body, MaxBodyChars))
	}

	if len(a.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(a.Topics, ", "))
	}

	return sigmatch.TruncateRunes(strings.Join(parts, "\n"), sigmatch.MaxEmbedTextChars)
}

// TargetDocument builds the text a target is embedded from.
func TargetDocument(t *sigmatch.Target) string {
	doc := t.Name + " (" + string(t.TargetType) + ")"
	if d := strings.TrimSpace(t.Description); d != "" {
		doc += "\n" + d
	}
	return sigmatch.TruncateRunes(doc, sigmatch.MaxEmbedTextChars)
}

func clean(text string, cleaner sigmatch.TextCleaner) string {
	text = strings.TrimSpace(text)
	if text == "" || cleaner == nil {
		return strings.Join(strings.Fields(text), " ")
	}
	return cleaner.Clean(text)
}

func (w *Worker) finish(ctx context.Context, job *sigmatch.Job, result *Result, runErr error) error {
	upd := sigmatch.JobUpdate{
		Status:         sigmatch.JobCompleted,
		ItemsTotal:     result.Total,
		ItemsProcessed: result.Processed,
		ItemsFailed:    result.Failed,
		CompletedAt:    w.now(),
		Metadata: map[string]any{
			"skipped":     result.Skipped,
			"batches":     result.Batches,
			"truncated":   result.Truncated,
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
	if runErr != nil {
		upd.Status = sigmatch.JobFailed
		upd.Error = runErr.Error()
	}
	if err := w.Jobs.FinishJob(context.WithoutCancel(ctx), job.ID, upd); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return w.Logger
}

func (w *Worker) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now()
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return min(w.BatchSize, sigmatch.MaxEmbedBatch)
}

func (w *Worker) maxBatches() int {
	if w.MaxBatches <= 0 {
		return DefaultMaxBatches
	}
	return w.MaxBatches
}

func (w *Worker) window() time.Duration {
	if w.Window <= 0 {
		return DefaultWindow
	}
	return w.Window
}

func (w *Worker) batchTimeout() time.Duration {
	if w.BatchTimeout <= 0 {
		return DefaultBatchTimeout
	}
	return w.BatchTimeout
}
