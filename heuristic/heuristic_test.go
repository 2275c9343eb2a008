package heuristic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsAdditionalInfo(t *testing.T) {
	c := NewKeywordClassifier()

	assert.True(t, c.NeedsAdditionalInfo("I need more information about OAuth2 token refresh flows."))
	assert.True(t, c.NeedsAdditionalInfo("The requirements are unclear; further research is required."))
	assert.True(t, c.NeedsAdditionalInfo("INSUFFICIENT INFORMATION to size the database."))
	assert.False(t, c.NeedsAdditionalInfo("The requirements are complete. Proceed to implementation."))
	assert.False(t, c.NeedsAdditionalInfo("All good, the analysis covers every case."))
	assert.False(t, c.NeedsAdditionalInfo(""))
}

func TestNeedsRevision(t *testing.T) {
	c := NewKeywordClassifier()

	assert.True(t, c.NeedsRevision("Found a bug: the login handler crashes on empty input."))
	assert.True(t, c.NeedsRevision("Test case 3 FAILED, the output is incorrect."))
	assert.True(t, c.NeedsRevision("The pagination does not work and needs fixing."))
	assert.False(t, c.NeedsRevision("All tests passed. The code meets the requirements."))
	assert.False(t, c.NeedsRevision(""))
}

func TestExtractSearchQueryFromPattern(t *testing.T) {
	c := NewKeywordClassifier()

	q := c.ExtractSearchQuery("I need more information about WebSocket reconnection strategies.", "build a chat app")
	assert.Equal(t, "WebSocket reconnection strategies", q)

	q = c.ExtractSearchQuery("We should research rate limiting algorithms before proceeding", "build an API")
	assert.Equal(t, "rate limiting algorithms before proceeding", q)
}

func TestExtractSearchQueryFallsBackToAnalysisKeywords(t *testing.T) {
	c := NewKeywordClassifier()

	analysis := "Not enough data. The authentication layer needs OAuth tokens; authentication " +
		"against the user database and database sharding remain undecided."
	q := c.ExtractSearchQuery(analysis, "build a chat app")
	tokens := strings.Fields(q)
	assert.NotEmpty(t, tokens)
	assert.LessOrEqual(t, len(tokens), 5)
	// the query derives from the analysis, not the original request
	assert.Contains(t, tokens, "authentication")
	assert.Contains(t, tokens, "database")
	assert.NotContains(t, tokens, "chat")
}

func TestExtractSearchQueryLastResortUsesUserRequest(t *testing.T) {
	c := NewKeywordClassifier()

	// an analysis of only stopwords and short words yields no keywords
	q := c.ExtractSearchQuery("it is all to be and so on", "build a todo list application")
	tokens := strings.Fields(q)
	assert.NotEmpty(t, tokens)
	assert.LessOrEqual(t, len(tokens), 5)
	assert.Contains(t, tokens, "todo")
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Build a REST API. The API must serve JSON. The API needs auth.", 3)
	assert.Len(t, got, 3)
	// "api" appears three times and must rank first
	assert.Equal(t, "api", got[0])

	assert.Empty(t, ExtractKeywords("", 5))
	assert.Empty(t, ExtractKeywords("a an to of", 5))
	assert.Nil(t, ExtractKeywords("hello world", 0))
}

func TestExtractKeywordsFiltersShortAndStopwords(t *testing.T) {
	got := ExtractKeywords("the cat and the dog ran to the big park", 10)
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "to")
	assert.NotContains(t, got, "and")
	assert.Contains(t, got, "cat")
	assert.Contains(t, got, "park")
}
