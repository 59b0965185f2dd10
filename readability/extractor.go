// Package readability provides the fallback article extractor.
package readability

import (
	"strings"

	"github.com/fwojciec/sigmatch"
	"github.com/go-shiori/go-readability"
)

// Ensure Extractor implements sigmatch.Extractor at compile time.
var _ sigmatch.Extractor = (*Extractor)(nil)

// Extractor wraps go-readability to extract main content from HTML.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract processes raw HTML and returns the main content.
func (e *Extractor) Extract(rawHTML string) (*sigmatch.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err != nil {
		return nil, err
	}

	result := &sigmatch.ExtractResult{
		Title:       article.Title,
		Description: article.Excerpt,
		ContentHTML: article.Content,
	}
	if article.PublishedTime != nil {
		published := article.PublishedTime.UTC()
		result.PublishedAt = &published
	}
	return result, nil
}
