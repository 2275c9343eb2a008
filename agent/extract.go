package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CodeFile is one file emitted by the Developer.
type CodeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

var codeBlockRe = regexp.MustCompile("(?s)```file:([^\n]+)\n(.*?)```")

// ExtractCodeFiles parses the Developer's fenced `file:<path>` blocks. A
// response without such blocks yields no files; the caller then stores the
// raw response as a single unstructured code artifact.
func ExtractCodeFiles(response string) []CodeFile {
	var files []CodeFile
	for _, m := range codeBlockRe.FindAllStringSubmatch(response, -1) {
		path := strings.TrimSpace(m[1])
		if path == "" {
			continue
		}
		files = append(files, CodeFile{Path: path, Content: strings.TrimRight(m[2], "\n")})
	}
	return files
}

// TestCase is one entry of the Tester's plan.
type TestCase struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	Expected    string   `json:"expected,omitempty"`
}

// TestPlan is the Tester's structured plan.
type TestPlan struct {
	TestCases []TestCase `json:"test_cases"`
	Overview  string     `json:"overview,omitempty"`
}

// Issue is one defect reported by the Tester.
type Issue struct {
	TestCase    string `json:"test_case,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description"`
}

// TestResults is the Tester's structured verification report.
type TestResults struct {
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Issues   []Issue `json:"issues,omitempty"`
	Overview string  `json:"overview,omitempty"`
}

var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n(\\{.*?\\})\\s*```")

// jsonDocuments returns every parseable JSON object embedded in the
// response, fenced blocks first, then a bare top-level object if present.
func jsonDocuments(response string) []json.RawMessage {
	var docs []json.RawMessage
	for _, m := range jsonBlockRe.FindAllStringSubmatch(response, -1) {
		raw := json.RawMessage(m[1])
		if json.Valid(raw) {
			docs = append(docs, raw)
		}
	}
	if len(docs) == 0 {
		if start := strings.Index(response, "{"); start >= 0 {
			if end := strings.LastIndex(response, "}"); end > start {
				raw := json.RawMessage(response[start : end+1])
				if json.Valid(raw) {
					docs = append(docs, raw)
				}
			}
		}
	}
	return docs
}

// ExtractTestPlan pulls the test plan out of the Tester's response. When no
// structured plan can be recovered, it substitutes a default whose overview
// carries the raw response so nothing is lost.
func ExtractTestPlan(response string) (TestPlan, bool) {
	for _, doc := range jsonDocuments(response) {
		var plan TestPlan
		if err := json.Unmarshal(doc, &plan); err == nil && len(plan.TestCases) > 0 {
			return plan, true
		}
	}
	return TestPlan{Overview: "Test plan could not be parsed as JSON. Raw response:\n" + response}, false
}

// ExtractTestResults pulls the verification report out of the Tester's
// response, substituting a default on failure.
func ExtractTestResults(response string) (TestResults, bool) {
	for _, doc := range jsonDocuments(response) {
		var shape struct {
			Passed *int `json:"passed"`
			Failed *int `json:"failed"`
		}
		if err := json.Unmarshal(doc, &shape); err != nil || (shape.Passed == nil && shape.Failed == nil) {
			continue
		}
		var results TestResults
		if err := json.Unmarshal(doc, &results); err == nil {
			return results, true
		}
	}
	return TestResults{Overview: "Test results could not be parsed as JSON. Raw response:\n" + response}, false
}
