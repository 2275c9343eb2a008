// Package heuristic provides the lexical classifiers the workflow uses to
// branch: whether an analysis asks for more information, whether a test
// report signals defects, and how to turn an analysis into a search query.
//
// The classifiers are deliberately dumb substring scans. They read agent
// output, not user input, so the vocabulary only needs to cover the phrasings
// the prompts steer the agents toward.
package heuristic

import (
	"regexp"
	"sort"
	"strings"
)

// Classifier decides workflow branches from agent output.
type Classifier interface {
	// NeedsAdditionalInfo reports whether an analysis asks for outside
	// information before implementation can proceed.
	NeedsAdditionalInfo(analysis string) bool

	// NeedsRevision reports whether a test report signals defects that the
	// developer should fix.
	NeedsRevision(testReport string) bool

	// ExtractSearchQuery derives a short search query from the analysis,
	// falling back to the user's original request when nothing usable is
	// found.
	ExtractSearchQuery(analysis, userRequest string) string
}

// infoCues are phrases an analyst uses when the request is underspecified.
var infoCues = []string{
	"need more information",
	"need additional information",
	"insufficient information",
	"not enough information",
	"not enough data",
	"need clarification",
	"requires clarification",
	"further research",
	"additional research",
	"need to research",
	"need to look up",
	"look up more",
	"more details needed",
	"more detail is needed",
	"unclear requirement",
	"requirements are unclear",
	"missing information",
	"cannot determine",
	"search for more",
}

// revisionCues are phrases a tester uses when the code has defects.
var revisionCues = []string{
	"error",
	"bug",
	"defect",
	"issue",
	"fail",
	"failed",
	"failure",
	"incorrect",
	"does not work",
	"doesn't work",
	"not working",
	"needs fixing",
	"needs to be fixed",
	"must be fixed",
	"should be fixed",
	"needs improvement",
	"needs revision",
	"missing",
	"broken",
	"crash",
	"wrong",
}

// queryPatterns pull an explicit topic out of phrasings like "need more
// information about X" or "research X".
var queryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:more information|additional information|clarification|details?) (?:about|on|regarding) ([^.\n]+)`),
	regexp.MustCompile(`(?i)(?:research|look up|search for) ([^.\n]+)`),
}

// KeywordClassifier is the default Classifier. The zero value is usable.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default lexical classifier.
func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func containsAny(text string, cues []string) bool {
	lower := strings.ToLower(text)
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// NeedsAdditionalInfo scans the analysis for information-request cues.
func (c *KeywordClassifier) NeedsAdditionalInfo(analysis string) bool {
	return containsAny(analysis, infoCues)
}

// NeedsRevision scans the test report for defect cues.
func (c *KeywordClassifier) NeedsRevision(testReport string) bool {
	return containsAny(testReport, revisionCues)
}

// ExtractSearchQuery tries the explicit topic patterns first, then falls back
// to the top keywords of the analysis itself. The user request is only a last
// resort for an analysis that yields no keywords at all.
func (c *KeywordClassifier) ExtractSearchQuery(analysis, userRequest string) string {
	for _, re := range queryPatterns {
		if m := re.FindStringSubmatch(analysis); m != nil {
			if q := strings.TrimSpace(m[1]); q != "" {
				return q
			}
		}
	}
	if keywords := ExtractKeywords(analysis, 5); len(keywords) > 0 {
		return strings.Join(keywords, " ")
	}
	if keywords := ExtractKeywords(userRequest, 5); len(keywords) > 0 {
		return strings.Join(keywords, " ")
	}
	return strings.TrimSpace(userRequest)
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "had": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "been": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "there": {}, "their": {},
	"what": {}, "which": {}, "when": {}, "where": {}, "who": {}, "how": {},
	"why": {}, "about": {}, "into": {}, "than": {}, "then": {}, "them": {},
	"some": {}, "more": {}, "very": {}, "just": {}, "also": {}, "please": {},
	"want": {}, "need": {}, "make": {}, "like": {}, "using": {}, "use": {},
}

var wordRe = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// ExtractKeywords returns the top-n most frequent words of the text, after
// lowercasing, dropping stopwords and words of two characters or fewer. Ties
// keep first-occurrence order so the result is deterministic.
func ExtractKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	counts := map[string]int{}
	firstSeen := map[string]int{}
	for i, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, seen := counts[w]; !seen {
			firstSeen[w] = i
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

var _ Classifier = (*KeywordClassifier)(nil)
