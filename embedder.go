package sigmatch

import "context"

// EmbedMode tells the provider how the vectors will be used.
type EmbedMode string

// Embedding modes.
const (
	EmbedDocument EmbedMode = "document"
	EmbedQuery    EmbedMode = "query"
)

// Embedding provider limits.
const (
	MaxEmbedBatch     = 128
	MaxEmbedTextChars = 8000
)

// Embedder converts texts to vectors using an external provider.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	// Callers send at most MaxEmbedBatch texts of at most MaxEmbedTextChars.
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}
