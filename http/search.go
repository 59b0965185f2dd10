package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/sigmatch"
	"golang.org/x/time/rate"
)

// DefaultSearchTimeout bounds a single search call.
const DefaultSearchTimeout = 15 * time.Second

// DefaultSearchPageSize is the number of results requested per query.
const DefaultSearchPageSize = 20

// Ensure SearchClient implements sigmatch.SearchClient.
var _ sigmatch.SearchClient = (*SearchClient)(nil)

// SearchClient queries a news search API with a NewsAPI-compatible
// "everything" endpoint: GET {endpoint}?q=...&pageSize=...&sortBy=publishedAt
// with the key in the X-Api-Key header.
type SearchClient struct {
	client   *http.Client
	endpoint string
	apiKey   string
	pageSize int
	limiter  *rate.Limiter
}

// SearchOption configures a SearchClient.
type SearchOption func(*SearchClient)

// WithPageSize sets the number of results requested per query.
func WithPageSize(n int) SearchOption {
	return func(c *SearchClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit paces calls to at most rps requests per second.
func WithRateLimit(rps float64) SearchOption {
	return func(c *SearchClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewSearchClient creates a new SearchClient. If client is nil, a client with
// DefaultSearchTimeout is used.
func NewSearchClient(client *http.Client, endpoint, apiKey string, opts ...SearchOption) *SearchClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultSearchTimeout}
	}
	c := &SearchClient{
		client:   client,
		endpoint: endpoint,
		apiKey:   apiKey,
		pageSize: DefaultSearchPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Status   string          `json:"status"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Articles []searchArticle `json:"articles"`
}

type searchArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Author      string `json:"author"`
	PublishedAt string `json:"publishedAt"`
}

// Search runs query against the provider. Returns EQUOTA when the provider
// reports the daily quota as exhausted.
func (c *SearchClient) Search(ctx context.Context, query string) ([]sigmatch.FeedItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "search query required")
	}
	if c.endpoint == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "search endpoint not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("sortBy", "publishedAt")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodyBytes))
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	decodeErr := json.Unmarshal(body, &sr)

	if resp.StatusCode == http.StatusTooManyRequests || sr.Code == "rateLimited" || sr.Code == "maximumResultsReached" {
		return nil, sigmatch.Errorf(sigmatch.EQUOTA, "search quota exhausted: %s", sr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		if sr.Message != "" {
			return nil, fmt.Errorf("HTTP %d from search API: %s", resp.StatusCode, sr.Message)
		}
		return nil, fmt.Errorf("HTTP %d from search API", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding search response: %w", decodeErr)
	}
	if sr.Status == "error" {
		return nil, fmt.Errorf("search API error %s: %s", sr.Code, sr.Message)
	}

	items := make([]sigmatch.FeedItem, 0, len(sr.Articles))
	for _, a := range sr.Articles {
		if a.URL == "" {
			continue
		}
		items = append(items, sigmatch.FeedItem{
			Title:       strings.TrimSpace(a.Title),
			URL:         a.URL,
			Description: strings.TrimSpace(a.Description),
			Author:      strings.TrimSpace(a.Author),
			PublishedAt: parseDate(a.PublishedAt),
		})
	}
	return items, nil
}
