// Package trafilatura extracts article bodies and metadata with go-trafilatura.
package trafilatura

import (
	"bytes"
	"strings"

	"github.com/fwojciec/sigmatch"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// Ensure Extractor implements sigmatch.Extractor at compile time.
var _ sigmatch.Extractor = (*Extractor)(nil)

// Extractor wraps go-trafilatura to extract main content from HTML.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract processes raw HTML and returns the article body and metadata.
func (e *Extractor) Extract(rawHTML string) (*sigmatch.ExtractResult, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "empty HTML input")
	}

	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return nil, err
	}

	var contentHTML string
	if result.ContentNode != nil {
		contentHTML, err = renderNode(result.ContentNode)
		if err != nil {
			return nil, err
		}
	}

	extracted := &sigmatch.ExtractResult{
		Title:       result.Metadata.Title,
		Description: result.Metadata.Description,
		ContentHTML: contentHTML,
		Topics:      mergeTopics(result.Metadata.Categories, result.Metadata.Tags),
	}
	if !result.Metadata.Date.IsZero() {
		date := result.Metadata.Date.UTC()
		extracted.PublishedAt = &date
	}
	return extracted, nil
}

// mergeTopics joins categories and tags, dropping blanks and case-insensitive duplicates.
func mergeTopics(lists ...[]string) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, list := range lists {
		for _, topic := range list {
			topic = strings.TrimSpace(topic)
			key := strings.ToLower(topic)
			if topic == "" || seen[key] {
				continue
			}
			seen[key] = true
			topics = append(topics, topic)
		}
	}
	return topics
}

// renderNode converts an html.Node to a string.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
