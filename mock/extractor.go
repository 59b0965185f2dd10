package mock

import "github.com/fwojciec/sigmatch"

var _ sigmatch.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of sigmatch.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*sigmatch.ExtractResult, error)
}

func (e *Extractor) Extract(html string) (*sigmatch.ExtractResult, error) {
	return e.ExtractFn(html)
}

var _ sigmatch.TextCleaner = (*TextCleaner)(nil)

// TextCleaner is a mock implementation of sigmatch.TextCleaner.
type TextCleaner struct {
	CleanFn func(text string) string
}

func (c *TextCleaner) Clean(text string) string {
	return c.CleanFn(text)
}
