package sigmatch

// Converter converts extracted article HTML into text with paragraph structure.
type Converter interface {
	// Convert transforms clean HTML (e.g., from an Extractor) into Markdown.
	// Paragraphs are separated by blank lines.
	Convert(html string) (string, error)
}
