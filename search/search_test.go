package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls   atomic.Int32
	results []Result
	err     error
	content map[string]string
}

func (f *fakeProvider) Search(_ context.Context, _ string, _ int) ([]Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Result, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *fakeProvider) FetchContent(_ context.Context, url string) (string, error) {
	if c, ok := f.content[url]; ok {
		return c, nil
	}
	return "", errors.New("unreachable")
}

func TestSearchReturnsProviderResults(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "Go docs", Link: "https://go.dev", Snippet: "The Go site"}}}
	c := NewClient(func(o *Options) { o.Provider = p })

	got := c.Search(context.Background(), "golang")
	require.Len(t, got, 1)
	assert.Equal(t, "Go docs", got[0].Title)
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	p := &fakeProvider{err: errors.New("quota exceeded")}
	c := NewClient(func(o *Options) { o.Provider = p })

	assert.Empty(t, c.Search(context.Background(), "anything"))
}

func TestSearchWithoutProviderReturnsEmpty(t *testing.T) {
	c := NewClient()
	assert.False(t, c.Enabled())
	assert.Empty(t, c.Search(context.Background(), "anything"))
}

func TestSearchCachesWithinTTL(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "hit", Link: "https://example.com"}}}
	c := NewClient(func(o *Options) {
		o.Provider = p
		o.ResultTTL = time.Hour
	})

	c.Search(context.Background(), "repeated")
	c.Search(context.Background(), "repeated")
	assert.EqualValues(t, 1, p.calls.Load())

	c.Search(context.Background(), "different")
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSearchCacheExpires(t *testing.T) {
	p := &fakeProvider{results: []Result{{Title: "hit", Link: "https://example.com"}}}
	c := NewClient(func(o *Options) {
		o.Provider = p
		o.ResultTTL = time.Millisecond
	})

	c.Search(context.Background(), "q")
	time.Sleep(5 * time.Millisecond)
	c.Search(context.Background(), "q")
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestEnrichFillsTopResultsAndToleratesFailures(t *testing.T) {
	p := &fakeProvider{
		results: []Result{
			{Title: "a", Link: "https://a.example", Snippet: "sa"},
			{Title: "b", Link: "https://b.example", Snippet: "sb"},
			{Title: "c", Link: "https://c.example", Snippet: "sc"},
		},
		content: map[string]string{
			"https://a.example": "full content a",
			// b.example fails on purpose
			"https://c.example": "full content c",
		},
	}
	c := NewClient(func(o *Options) {
		o.Provider = p
		o.EnrichTop = 2
	})

	got := c.Search(context.Background(), "q")
	require.Len(t, got, 3)
	assert.Equal(t, "full content a", got[0].Content)
	assert.Empty(t, got[1].Content)
	// third result is beyond EnrichTop
	assert.Empty(t, got[2].Content)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults("rate limiting", []Result{
		{Title: "Token buckets", Link: "https://example.com/tb", Snippet: "short snippet"},
	})
	assert.Contains(t, out, "## Search results for: rate limiting")
	assert.Contains(t, out, "### 1. Token buckets")
	assert.Contains(t, out, "short snippet")
	assert.Contains(t, out, "https://example.com/tb")

}

func TestFormatResultsEmptyEmitsNote(t *testing.T) {
	out := FormatResults("rate limiting", nil)
	assert.Contains(t, out, "## Search results for: rate limiting")
	assert.Contains(t, out, "No results were found")
}

func TestFormatResultsTruncatesLongContent(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	out := FormatResults("q", []Result{{Title: "t", Link: "l", Content: string(long)}})
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, string(long))
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><script>var x = 1;</script><style>.a{color:red}</style></head>
	<body><h1>Title</h1><p>Hello <b>world</b></p></body></html>`
	got := StripHTML(html)
	assert.Equal(t, "Title Hello world", got)
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "color:red")
}

func TestGoogleClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-cx", q.Get("cx"))
		assert.Equal(t, "golang testing", q.Get("q"))
		assert.Equal(t, "3", q.Get("num"))
		w.Write([]byte(`{"items":[{"title":"Result","link":"https://example.com","snippet":"a snippet"}]}`))
	}))
	defer srv.Close()

	g := NewGoogleClient(func(o *GoogleOptions) {
		o.APIKey = "test-key"
		o.SearchEngineID = "test-cx"
		o.BaseURL = srv.URL
	})

	got, err := g.Search(context.Background(), "golang testing", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Result", got[0].Title)
	assert.Equal(t, "a snippet", got[0].Snippet)
}

func TestGoogleClientRequiresCredentials(t *testing.T) {
	g := NewGoogleClient()
	_, err := g.Search(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestGoogleClientFetchContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>page text</p></body></html>"))
	}))
	defer srv.Close()

	g := NewGoogleClient()
	got, err := g.FetchContent(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "page text", got)
}
