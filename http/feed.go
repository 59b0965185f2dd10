package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/beevik/etree"
	"github.com/fwojciec/sigmatch"
)

// DefaultFeedTimeout bounds a single feed request.
const DefaultFeedTimeout = 10 * time.Second

// maxSitemapDepth bounds sitemap index recursion.
const maxSitemapDepth = 2

// Ensure FeedClient implements sigmatch.FeedClient.
var _ sigmatch.FeedClient = (*FeedClient)(nil)

// FeedClient fetches and parses syndication feeds. RSS 2.0, Atom, RSS 1.0
// (RDF) and news sitemaps (urlset and sitemapindex) are supported.
type FeedClient struct {
	client   *http.Client
	maxItems int
}

// FeedOption configures a FeedClient.
type FeedOption func(*FeedClient)

// WithMaxItems caps the items returned per feed. Zero means no cap.
func WithMaxItems(n int) FeedOption {
	return func(c *FeedClient) {
		c.maxItems = n
	}
}

// NewFeedClient creates a new FeedClient with the given HTTP client.
// If client is nil, a client with DefaultFeedTimeout is used.
func NewFeedClient(client *http.Client, opts ...FeedOption) *FeedClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultFeedTimeout}
	}
	c := &FeedClient{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFeed retrieves the feed at feedURL and returns its items in
// document order. Items without a link are dropped; relative links are
// resolved against the feed URL.
func (c *FeedClient) FetchFeed(ctx context.Context, feedURL string) ([]sigmatch.FeedItem, error) {
	items, err := c.fetch(ctx, feedURL, map[string]bool{}, 0)
	if err != nil {
		return nil, err
	}
	if c.maxItems > 0 && len(items) > c.maxItems {
		items = items[:c.maxItems]
	}
	return items, nil
}

func (c *FeedClient) fetch(ctx context.Context, feedURL string, seen map[string]bool, depth int) ([]sigmatch.FeedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Sitemap indexes can list a child more than once or point back at
	// themselves.
	if seen[feedURL] {
		return nil, nil
	}
	seen[feedURL] = true

	base, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}

	body, err := get(ctx, c.client, feedURL, "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := ParseXML(io.LimitReader(body, DefaultMaxBodyBytes))
	if err != nil {
		return nil, err
	}
	root := doc.Root()

	if root.Tag == "sitemapindex" {
		if depth >= maxSitemapDepth {
			return nil, nil
		}
		var items []sigmatch.FeedItem
		for _, loc := range sitemapLocations(root) {
			child, err := c.fetch(ctx, resolve(base, loc), seen, depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, child...)
		}
		return items, nil
	}

	return ParseFeed(doc, base)
}

// ParseXML reads an XML document and rejects empty input.
func ParseXML(r io.Reader) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "malformed feed XML: %v", err)
	}
	if doc.Root() == nil {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "empty feed XML")
	}
	return doc, nil
}

// ParseFeed extracts items from a parsed feed document. base resolves
// relative links and may be nil.
func ParseFeed(doc *etree.Document, base *url.URL) ([]sigmatch.FeedItem, error) {
	root := doc.Root()
	switch root.Tag {
	case "rss":
		channel := root.SelectElement("channel")
		if channel == nil {
			return nil, sigmatch.Errorf(sigmatch.EINVALID, "rss feed has no channel")
		}
		return parseRSSItems(channel.SelectElements("item"), base), nil
	case "RDF":
		return parseRSSItems(root.SelectElements("item"), base), nil
	case "feed":
		return parseAtomEntries(root.SelectElements("entry"), base), nil
	case "urlset":
		return parseURLSet(root, base), nil
	default:
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "unsupported feed format <%s>", root.Tag)
	}
}

func parseRSSItems(elements []*etree.Element, base *url.URL) []sigmatch.FeedItem {
	items := make([]sigmatch.FeedItem, 0, len(elements))
	for _, el := range elements {
		// Only the unprefixed <link>; <atom:link rel="self"> points at the
		// feed, not the story.
		link := plainChildText(el, "link")
		if link == "" {
			// Permalink guids stand in for missing links.
			if guid := el.SelectElement("guid"); guid != nil && guid.SelectAttrValue("isPermaLink", "true") == "true" {
				link = strings.TrimSpace(guid.Text())
			}
		}
		if link == "" {
			continue
		}

		author := childText(el, "author")
		if author == "" {
			author = childText(el, "creator") // dc:creator
		}
		date := childText(el, "pubDate")
		if date == "" {
			date = childText(el, "date") // dc:date
		}

		description := childText(el, "description")
		if description == "" {
			description = childText(el, "encoded") // content:encoded
		}

		items = append(items, sigmatch.FeedItem{
			Title:       plainChildText(el, "title"),
			URL:         resolve(base, link),
			Description: description,
			Author:      author,
			PublishedAt: parseDate(date),
		})
	}
	return items
}

func parseAtomEntries(elements []*etree.Element, base *url.URL) []sigmatch.FeedItem {
	items := make([]sigmatch.FeedItem, 0, len(elements))
	for _, el := range elements {
		link := atomLink(el)
		if link == "" {
			continue
		}

		var author string
		if a := el.SelectElement("author"); a != nil {
			author = childText(a, "name")
		}
		date := childText(el, "published")
		if date == "" {
			date = childText(el, "updated")
		}
		description := childText(el, "summary")
		if description == "" {
			description = childText(el, "content")
		}

		items = append(items, sigmatch.FeedItem{
			Title:       childText(el, "title"),
			URL:         resolve(base, link),
			Description: description,
			Author:      author,
			PublishedAt: parseDate(date),
		})
	}
	return items
}

// atomLink returns the alternate link of an Atom entry.
func atomLink(entry *etree.Element) string {
	var fallback string
	for _, l := range entry.SelectElements("link") {
		href := strings.TrimSpace(l.SelectAttrValue("href", ""))
		if href == "" {
			continue
		}
		switch l.SelectAttrValue("rel", "alternate") {
		case "alternate":
			return href
		default:
			if fallback == "" {
				fallback = href
			}
		}
	}
	return fallback
}

// parseURLSet extracts items from a <urlset> element. Google News sitemap
// extensions supply the title and publication date when present.
func parseURLSet(root *etree.Element, base *url.URL) []sigmatch.FeedItem {
	var items []sigmatch.FeedItem
	for _, urlEl := range root.SelectElements("url") {
		loc := childText(urlEl, "loc")
		if loc == "" {
			continue
		}
		item := sigmatch.FeedItem{URL: resolve(base, loc)}
		if news := urlEl.SelectElement("news"); news != nil {
			item.Title = childText(news, "title")
			item.PublishedAt = parseDate(childText(news, "publication_date"))
		} else {
			item.PublishedAt = parseDate(childText(urlEl, "lastmod"))
		}
		items = append(items, item)
	}
	return items
}

// sitemapLocations lists the child sitemaps of a <sitemapindex>.
func sitemapLocations(root *etree.Element) []string {
	var locs []string
	for _, sitemap := range root.SelectElements("sitemap") {
		if loc := childText(sitemap, "loc"); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs
}

// childText returns the trimmed text of the first child with the tag.
// Tags match regardless of namespace prefix.
func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// plainChildText is childText restricted to children without a namespace
// prefix, so extension elements such as atom:link or media:title are
// ignored.
func plainChildText(el *etree.Element, tag string) string {
	for _, child := range el.ChildElements() {
		if child.Space == "" && child.Tag == tag {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// parseDate parses the date formats seen in feeds. Unparseable dates are
// treated as absent.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
