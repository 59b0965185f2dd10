package mock

import (
	"context"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.Embedder = (*Embedder)(nil)

// Embedder is a mock implementation of sigmatch.Embedder.
type Embedder struct {
	EmbedFn func(ctx context.Context, texts []string, mode sigmatch.EmbedMode) ([][]float32, error)
}

func (e *Embedder) Embed(ctx context.Context, texts []string, mode sigmatch.EmbedMode) ([][]float32, error) {
	return e.EmbedFn(ctx, texts, mode)
}
