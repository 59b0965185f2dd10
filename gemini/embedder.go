// Package gemini implements the embedding provider using Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fwojciec/sigmatch"
	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "gemini-embedding-001"

// Ensure Embedder implements sigmatch.Embedder at compile time.
var _ sigmatch.Embedder = (*Embedder)(nil)

// Embedder implements sigmatch.Embedder using the Gemini embeddings API.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithDimensions sets the output dimensionality. Zero uses the model default.
func WithDimensions(n int) Option {
	return func(e *Embedder) {
		e.dimensions = n
	}
}

// NewEmbedder creates a new Embedder.
func NewEmbedder(client *genai.Client, opts ...Option) *Embedder {
	e := &Embedder{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string, mode sigmatch.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > sigmatch.MaxEmbedBatch {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "batch of %d texts exceeds provider limit of %d", len(texts), sigmatch.MaxEmbedBatch)
	}
	config, err := BuildEmbedConfig(mode, e.dimensions)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(sigmatch.TruncateRunes(text, sigmatch.MaxEmbedTextChars), genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}
	if result == nil {
		return nil, sigmatch.Errorf(sigmatch.EINTERNAL, "gemini returned nil result")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, sigmatch.Errorf(sigmatch.EINTERNAL, "gemini returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, embedding := range result.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, sigmatch.Errorf(sigmatch.EINTERNAL, "gemini returned empty embedding at index %d", i)
		}
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

// BuildEmbedConfig returns the EmbedContentConfig for a mode.
// Documents and queries use the asymmetric retrieval task types.
func BuildEmbedConfig(mode sigmatch.EmbedMode, dimensions int) (*genai.EmbedContentConfig, error) {
	config := &genai.EmbedContentConfig{}
	switch mode {
	case sigmatch.EmbedDocument, "":
		config.TaskType = "RETRIEVAL_DOCUMENT"
	case sigmatch.EmbedQuery:
		config.TaskType = "RETRIEVAL_QUERY"
	default:
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "unknown embed mode %q", mode)
	}
	if dimensions > 0 {
		d := int32(dimensions)
		config.OutputDimensionality = &d
	}
	return config, nil
}

// classifyError maps provider quota errors to EQUOTA so callers can stop
// issuing further batches.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return sigmatch.Errorf(sigmatch.EQUOTA, "gemini: %s", apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code == http.StatusTooManyRequests {
		return sigmatch.Errorf(sigmatch.EQUOTA, "gemini: %s", apiErrPtr.Message)
	}
	return fmt.Errorf("gemini embed: %w", err)
}
