// Package search enriches requirement analysis with external web context. A
// Provider returns ranked results for a query; the Client layers result
// caching, graceful degradation and concurrent page-content enrichment on
// top.
package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devteam-ai/devteam/logging"
)

// Result is one ranked search hit. Content is filled in by enrichment.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// Provider returns ranked results for a query.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Options configure the search client.
type Options struct {
	Provider   Provider
	MaxResults int
	EnrichTop  int
	ResultTTL  time.Duration
	Logger     logging.Logger
}

// Client wraps a Provider with a short-lived result cache and concurrent
// content enrichment. Search failures degrade to an empty result set so the
// workflow can always continue without external context.
type Client struct {
	provider   Provider
	maxResults int
	enrichTop  int
	ttl        time.Duration
	logger     logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	results []Result
	expires time.Time
}

// NewClient creates a search client. A nil Provider yields a client whose
// searches always return empty results.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		MaxResults: 5,
		EnrichTop:  3,
		ResultTTL:  time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		provider:   opts.Provider,
		maxResults: opts.MaxResults,
		enrichTop:  opts.EnrichTop,
		ttl:        opts.ResultTTL,
		logger:     logging.OrNoOp(opts.Logger),
		cache:      map[string]cacheEntry{},
	}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool { return c.provider != nil }

// Search returns ranked, content-enriched results for the query. Provider
// errors are logged and reported as an empty result set, never as an error.
func (c *Client) Search(ctx context.Context, query string) []Result {
	if c.provider == nil {
		return nil
	}
	if cached, ok := c.lookup(query); ok {
		return cached
	}

	results, err := c.provider.Search(ctx, query, c.maxResults)
	if err != nil {
		c.logger.Warn("search failed, continuing without external context", "query", query, "error", err)
		return nil
	}
	c.enrich(ctx, results)
	c.store(query, results)
	return results
}

func (c *Client) lookup(query string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[query]
	if !ok || time.Now().After(entry.expires) {
		delete(c.cache, query)
		return nil, false
	}
	return entry.results, true
}

func (c *Client) store(query string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// lazy prune keeps the map from growing unbounded between hits
	now := time.Now()
	for q, entry := range c.cache {
		if now.After(entry.expires) {
			delete(c.cache, q)
		}
	}
	c.cache[query] = cacheEntry{results: results, expires: now.Add(c.ttl)}
}

// enrich fetches page content for the top results concurrently. A fetch
// failure leaves that result with its snippet only.
func (c *Client) enrich(ctx context.Context, results []Result) {
	fetcher, ok := c.provider.(ContentFetcher)
	if !ok {
		return
	}
	top := len(results)
	if top > c.enrichTop {
		top = c.enrichTop
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < top; i++ {
		g.Go(func() error {
			content, err := fetcher.FetchContent(gctx, results[i].Link)
			if err != nil {
				c.logger.Debug("content fetch failed", "url", results[i].Link, "error", err)
				return nil
			}
			results[i].Content = content
			return nil
		})
	}
	g.Wait()
}

// ContentFetcher is implemented by providers that can retrieve readable page
// content for a result link.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

const snippetLimit = 500

// FormatResults renders results as a markdown digest for inclusion in an
// agent prompt. Enriched content is preferred over the snippet and truncated
// to keep the prompt bounded. An empty result set still yields a note, so the
// re-analysis step downstream always has something to work from.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("## Search results for: %s\n\nNo results were found. Proceed with the information already available.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for: %s\n\n", query)
	for i, r := range results {
		body := r.Content
		if body == "" {
			body = r.Snippet
		}
		if len(body) > snippetLimit {
			body = body[:snippetLimit] + "..."
		}
		fmt.Fprintf(&sb, "### %d. %s\n%s\nSource: %s\n\n", i+1, r.Title, body, r.Link)
	}
	return strings.TrimRight(sb.String(), "\n")
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

const contentLimit = 5000

// StripHTML reduces an HTML document to readable text: script and style
// blocks removed, tags stripped, whitespace collapsed, capped in length.
func StripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > contentLimit {
		text = text[:contentLimit]
	}
	return text
}
