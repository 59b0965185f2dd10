package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Ensure LoggingEmbedder implements sigmatch.Embedder.
var _ sigmatch.Embedder = (*LoggingEmbedder)(nil)

// LoggingEmbedder wraps an Embedder and logs each provider call.
type LoggingEmbedder struct {
	next   sigmatch.Embedder
	logger *slog.Logger
}

// NewLoggingEmbedder creates a new LoggingEmbedder.
func NewLoggingEmbedder(next sigmatch.Embedder, logger *slog.Logger) *LoggingEmbedder {
	return &LoggingEmbedder{next: next, logger: logger}
}

// Embed delegates to the wrapped embedder and logs batch size and outcome.
func (e *LoggingEmbedder) Embed(ctx context.Context, texts []string, mode sigmatch.EmbedMode) (vectors [][]float32, err error) {
	defer func(begin time.Time) {
		chars := 0
		for _, text := range texts {
			chars += len(text)
		}
		e.logger.Info("embed",
			"mode", mode,
			"texts", len(texts),
			"chars", chars,
			"vectors", len(vectors),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Embed(ctx, texts, mode)
}
