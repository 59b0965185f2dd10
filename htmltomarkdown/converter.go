// Package htmltomarkdown converts extracted article HTML into full text.
package htmltomarkdown

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/fwojciec/sigmatch"
)

// Ensure Converter implements sigmatch.Converter at compile time.
var _ sigmatch.Converter = (*Converter)(nil)

var blankLinesRe = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

// Converter wraps html-to-markdown to convert HTML to Markdown.
// Paragraphs are separated by exactly one blank line so that paragraph
// structure survives into the stored full text.
type Converter struct {
	conv *converter.Converter
}

// NewConverter creates a new Converter.
func NewConverter() *Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Converter{conv: conv}
}

// Convert transforms HTML content into Markdown.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", sigmatch.Errorf(sigmatch.EINVALID, "empty HTML input")
	}

	result, err := c.conv.ConvertString(html)
	if err != nil {
		return "", err
	}

	result = blankLinesRe.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result), nil
}
