package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/devteam-ai/devteam/logging"
)

// GoogleOptions configure the Google Custom Search provider.
type GoogleOptions struct {
	APIKey         string
	SearchEngineID string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         logging.Logger
}

// GoogleClient is a Provider backed by the Google Custom Search JSON API. It
// also implements ContentFetcher by downloading and stripping result pages.
type GoogleClient struct {
	apiKey   string
	engineID string
	baseURL  string
	http     *http.Client
	logger   logging.Logger
}

// NewGoogleClient creates a Google Custom Search provider.
func NewGoogleClient(optFns ...func(o *GoogleOptions)) *GoogleClient {
	opts := GoogleOptions{
		BaseURL: "https://www.googleapis.com/customsearch/v1",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &GoogleClient{
		apiKey:   opts.APIKey,
		engineID: opts.SearchEngineID,
		baseURL:  opts.BaseURL,
		http:     httpClient,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search queries the Custom Search JSON API.
func (g *GoogleClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if g.apiKey == "" || g.engineID == "" {
		return nil, fmt.Errorf("google search: api key and engine id required")
	}
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	q := url.Values{}
	q.Set("key", g.apiKey)
	q.Set("cx", g.engineID)
	q.Set("q", query)
	q.Set("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google search: unexpected status %d", resp.StatusCode)
	}

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("google search: decode response: %w", err)
	}
	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, Result{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	g.logger.Debug("google search completed", "query", query, "results", len(results))
	return results, nil
}

// FetchContent downloads a result page and reduces it to readable text.
func (g *GoogleClient) FetchContent(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; devteam/1.0)")
	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return StripHTML(string(body)), nil
}

var (
	_ Provider       = (*GoogleClient)(nil)
	_ ContentFetcher = (*GoogleClient)(nil)
)
