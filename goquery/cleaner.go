// Package goquery cleans article text for the embedding document.
package goquery

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sigmatch"
)

// Ensure Cleaner implements sigmatch.TextCleaner at compile time.
var _ sigmatch.TextCleaner = (*Cleaner)(nil)

// chromeSelector matches page chrome that never carries article prose.
const chromeSelector = `script, style, noscript, template, iframe, svg, nav, header, footer, aside, form, button,
	[role=navigation], [role=banner], [role=contentinfo], [aria-hidden=true],
	.share, .social, .newsletter, .advert, .ad, .ads, .related, .comments, .cookie, #cookie-banner`

// blockSelector matches elements whose text ends a line.
const blockSelector = "p, div, br, li, h1, h2, h3, h4, h5, h6, tr, blockquote, pre, section, article, figcaption"

var (
	markupRe      = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdDecorRe     = regexp.MustCompile(`(?m)^\s*(#{1,6}\s+|[-*+]\s+|>\s*)`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	boilerplateRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(advertisement|sponsored( content)?|skip to (main )?content)$`),
		regexp.MustCompile(`(?i)^(share|tweet|email|print)( this( article| story)?)?( on \w+)?:?$`),
		regexp.MustCompile(`(?i)^follow us( on .*)?$`),
		regexp.MustCompile(`(?i)^(read more|related( articles| stories)?|recommended( for you)?|more from .*)$`),
		regexp.MustCompile(`(?i)^sign up (for|to) (our|the) .*newsletter.*$`),
		regexp.MustCompile(`(?i)^(©|copyright)\s.*$`),
		regexp.MustCompile(`(?i)^all rights reserved\.?$`),
		regexp.MustCompile(`(?i)^(photo|image)( credit)?:.*$`),
	}
)

// Cleaner strips markup, page chrome and boilerplate lines from article
// text and collapses whitespace into single spaces.
type Cleaner struct{}

// NewCleaner creates a new Cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Clean returns the prose of text. HTML input is parsed and stripped of
// chrome; Markdown link and heading syntax is reduced to its text.
func (c *Cleaner) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	if markupRe.MatchString(text) {
		text = htmlText(text)
	}

	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdDecorRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line == "" || isBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// htmlText extracts text from HTML with one line per block element.
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return markupRe.ReplaceAllString(html, " ")
	}

	doc.Find(chromeSelector).Remove()
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		sel.AfterHtml("\n")
	})

	return doc.Find("body").Text()
}

func isBoilerplate(line string) bool {
	for _, re := range boilerplateRe {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
