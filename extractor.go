package sigmatch

import "time"

// ExtractResult holds the main content extracted from an article page.
type ExtractResult struct {
	// Title is the page title from metadata.
	Title string

	// Description is the page summary from metadata, if any.
	Description string

	// ContentHTML is the article body as clean HTML with boilerplate removed.
	ContentHTML string

	// Topics are categories and tags declared by the page.
	Topics []string

	// PublishedAt is the publication date found in the page, if any.
	PublishedAt *time.Time
}

// Extractor extracts the main article content from HTML pages.
type Extractor interface {
	// Extract processes raw HTML and returns the article content.
	// Returns EINVALID for empty input.
	Extract(html string) (*ExtractResult, error)
}

// TextCleaner turns markup-laden article text into plain prose.
type TextCleaner interface {
	// Clean strips markup, navigation and boilerplate and collapses whitespace.
	Clean(text string) string
}
