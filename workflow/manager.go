package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devteam-ai/devteam/agent"
	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/heuristic"
	"github.com/devteam-ai/devteam/logging"
	"github.com/devteam-ai/devteam/search"
	"github.com/devteam-ai/devteam/store"
)

// Agents groups the three role agents a Manager drives.
type Agents struct {
	BA     *agent.Agent
	Dev    *agent.Agent
	Tester *agent.Agent
}

// Options configure a Manager.
type Options struct {
	Classifier heuristic.Classifier
	Search     *search.Client
	// RetainFinished is how long finished runs stay pollable.
	RetainFinished time.Duration
	// SerializeProjects makes runs for the same project execute one at a
	// time. Off by default; concurrent runs then interleave their messages
	// in the shared conversation.
	SerializeProjects bool
	Logger            logging.Logger
}

// Manager runs workflows against a store and a set of agents.
type Manager struct {
	store      *store.Store
	agents     Agents
	classifier heuristic.Classifier
	search     *search.Client
	hub        *Hub
	registry   *registry
	serialize  bool
	logger     logging.Logger

	projMu    sync.Mutex
	projLocks map[string]*sync.Mutex
}

// NewManager creates a Manager.
func NewManager(s *store.Store, agents Agents, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Classifier:     heuristic.NewKeywordClassifier(),
		RetainFinished: 60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RetainFinished <= 0 {
		opts.RetainFinished = 60 * time.Second
	}
	return &Manager{
		store:      s,
		agents:     agents,
		classifier: opts.Classifier,
		search:     opts.Search,
		hub:        NewHub(opts.Logger),
		registry:   newRegistry(opts.RetainFinished),
		serialize:  opts.SerializeProjects,
		logger:     logging.OrNoOp(opts.Logger),
	}
}

// Hub returns the manager's event hub for project subscriptions.
func (m *Manager) Hub() *Hub { return m.hub }

// Run is a handle on one started workflow.
type Run struct {
	WorkflowID string
	ProjectID  string
	MessageID  string

	done    chan struct{}
	summary string
	err     error
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx is cancelled. Cancelling only
// abandons the wait; the run itself continues.
func (r *Run) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.summary, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Start appends the user message and launches one workflow run. An empty
// projectID creates a fresh project named after the message; a non-empty
// unknown one is rejected with store.ErrProjectNotFound. The run executes
// detached from ctx: once started it always runs to completion or failure.
func (m *Manager) Start(ctx context.Context, projectID, text string) (*Run, error) {
	if projectID == "" {
		projectID = m.store.CreateProject(projectName(text), nil)
	} else if !m.store.HasProject(projectID) {
		return nil, fmt.Errorf("start workflow: %w", store.ErrProjectNotFound)
	}

	msg := m.store.AddMessage(projectID, core.RoleUser, text, nil)
	wf := newWorkflow(projectID)
	m.registry.add(wf)

	run := &Run{
		WorkflowID: wf.ID(),
		ProjectID:  projectID,
		MessageID:  msg.ID,
		done:       make(chan struct{}),
	}
	m.logger.Info("workflow started", "workflow_id", wf.ID(), "project_id", projectID)

	go m.execute(context.WithoutCancel(ctx), wf, run, text)
	return run, nil
}

// Run starts a workflow and waits for it.
func (m *Manager) Run(ctx context.Context, projectID, text string) (string, error) {
	run, err := m.Start(ctx, projectID, text)
	if err != nil {
		return "", err
	}
	return run.Wait(ctx)
}

// Status returns the run's current view by workflow id.
func (m *Manager) Status(workflowID string) (View, bool) {
	wf, ok := m.registry.get(workflowID)
	if !ok {
		return View{}, false
	}
	return wf.View(), true
}

// StatusByProject returns the view of the project's most recent run.
func (m *Manager) StatusByProject(projectID string) (View, bool) {
	wf, ok := m.registry.getByProject(projectID)
	if !ok {
		return View{}, false
	}
	return wf.View(), true
}

func (m *Manager) execute(ctx context.Context, wf *Workflow, run *Run, userText string) {
	if m.serialize {
		lock := m.projectLock(wf.ProjectID())
		lock.Lock()
		defer lock.Unlock()
	}
	defer func() {
		m.registry.markDone(wf.ID())
		close(run.done)
	}()

	summary, err := m.runPipeline(ctx, wf, userText)
	if err != nil {
		wf.fail(err)
		run.err = err
		m.logger.Error("workflow failed", "workflow_id", wf.ID(), "project_id", wf.ProjectID(), "error", err)
		return
	}
	wf.complete()
	run.summary = summary
	m.logger.Info("workflow completed", "workflow_id", wf.ID(), "project_id", wf.ProjectID(), "steps", len(wf.View().Steps))
}

// runPipeline executes the fixed step sequence and returns the summary.
func (m *Manager) runPipeline(ctx context.Context, wf *Workflow, userText string) (string, error) {
	projectID := wf.ProjectID()

	analysis, err := m.runAgent(ctx, wf, StepBAAnalysis, m.agents.BA, userText)
	if err != nil {
		return "", err
	}

	// Conditional search augmentation. When the analysis asks for outside
	// information and search is configured, gather context and have the BA
	// re-analyze. The re-analysis always follows the search step, even when
	// the search came back empty; the augmented analysis supersedes the
	// original.
	currentAnalysis := analysis
	if m.classifier.NeedsAdditionalInfo(analysis) && m.search != nil && m.search.Enabled() {
		formatted := m.runSearch(ctx, wf, analysis, userText)
		augmented, err := m.runAgent(ctx, wf, StepBAAnalysisWithSearch, m.agents.BA,
			agent.SearchReanalysisPrompt+formatted)
		if err != nil {
			return "", err
		}
		currentAnalysis = augmented
	}
	m.saveArtifact(projectID, core.ArtifactRequirement, "requirements_analysis", currentAnalysis, StepBAAnalysis)

	code, err := m.runAgent(ctx, wf, StepDevImplementation, m.agents.Dev,
		agent.DevHandoffPrompt+currentAnalysis)
	if err != nil {
		return "", err
	}
	m.saveCodeArtifacts(projectID, code, StepDevImplementation)

	report, err := m.runAgent(ctx, wf, StepTesterVerification, m.agents.Tester,
		agent.TesterHandoffPrompt+code)
	if err != nil {
		return "", err
	}
	m.saveTestArtifacts(projectID, report, StepTesterVerification)

	// Single revision round. The second verdict is recorded but never
	// triggers further looping.
	currentCode, currentReport := code, report
	if m.needsRevision(report) {
		revised, err := m.runAgent(ctx, wf, StepDevRevision, m.agents.Dev,
			agent.RevisionPrompt+report)
		if err != nil {
			return "", err
		}
		m.saveCodeArtifacts(projectID, revised, StepDevRevision)

		finalReport, err := m.runAgent(ctx, wf, StepTesterFinalVerification, m.agents.Tester,
			agent.FinalVerificationPrompt+revised)
		if err != nil {
			return "", err
		}
		m.saveTestArtifacts(projectID, finalReport, StepTesterFinalVerification)
		currentCode, currentReport = revised, finalReport
	}

	summary := assembleSummary(currentAnalysis, currentCode, currentReport)
	m.store.UpdateContext(projectID, store.ContextUpdate{Summary: &summary})
	return summary, nil
}

// runAgent executes one streaming agent step, fanning start/chunk/end events
// out to the project's subscribers.
func (m *Manager) runAgent(ctx context.Context, wf *Workflow, step string, a *agent.Agent, input string) (string, error) {
	idx := wf.beginStep(step, a.Role())
	m.publish(wf, step, a.Role(), core.StreamStart, "", "")

	msg, err := a.Respond(ctx, wf.ProjectID(), input, func(chunk string) {
		m.publish(wf, step, a.Role(), core.StreamChunk, chunk, "")
	})
	if err != nil {
		err = fmt.Errorf("step %s: %w", step, err)
		wf.finishStep(idx, StatusFailed, err.Error())
		return "", err
	}

	m.publish(wf, step, a.Role(), core.StreamEnd, "", msg.ID)
	wf.finishStep(idx, StatusCompleted, "")
	wf.setResult(step, msg.Content)
	return msg.Content, nil
}

// needsRevision prefers the Tester's structured verdict when the report
// parses; the lexical classifier would trip on the "failed" key of a clean
// report. Prose-only reports fall back to the classifier.
func (m *Manager) needsRevision(report string) bool {
	if results, ok := agent.ExtractTestResults(report); ok {
		return results.Failed > 0 || len(results.Issues) > 0
	}
	return m.classifier.NeedsRevision(report)
}

// runSearch executes the search step. It cannot fail the workflow; an empty
// result just skips augmentation.
func (m *Manager) runSearch(ctx context.Context, wf *Workflow, analysis, userText string) string {
	idx := wf.beginStep(StepSearchAdditionalInfo, "")
	query := m.classifier.ExtractSearchQuery(analysis, userText)
	results := m.search.Search(ctx, query)
	formatted := search.FormatResults(query, results)
	wf.finishStep(idx, StatusCompleted, "")
	wf.setResult(StepSearchAdditionalInfo, formatted)
	m.logger.Info("search step finished", "workflow_id", wf.ID(), "query", query, "results", len(results))
	return formatted
}

func (m *Manager) publish(wf *Workflow, step string, role core.Role, kind core.StreamEventKind, text, finalMessageID string) {
	m.hub.Publish(core.StreamEvent{
		Kind:           kind,
		Agent:          role,
		Step:           step,
		WorkflowID:     wf.ID(),
		ProjectID:      wf.ProjectID(),
		Text:           text,
		FinalMessageID: finalMessageID,
		Timestamp:      time.Now().UTC(),
	})
}

func (m *Manager) saveArtifact(projectID string, typ core.ArtifactType, name, content, step string) {
	if _, err := m.store.AddArtifact(projectID, typ, name, content, map[string]any{"step": step}); err != nil {
		m.logger.Warn("artifact save failed", "project_id", projectID, "name", name, "error", err)
	}
}

// saveCodeArtifacts stores the Developer's file blocks as individual code
// artifacts, or the raw response when no blocks were emitted.
func (m *Manager) saveCodeArtifacts(projectID, response, step string) {
	files := agent.ExtractCodeFiles(response)
	if len(files) == 0 {
		m.saveArtifact(projectID, core.ArtifactCode, "implementation", response, step)
		return
	}
	for _, f := range files {
		m.saveArtifact(projectID, core.ArtifactCode, f.Path, f.Content, step)
	}
}

// saveTestArtifacts stores the Tester's plan and results as structured JSON
// artifacts, substituting defaults when the response is not parseable.
func (m *Manager) saveTestArtifacts(projectID, response, step string) {
	plan, ok := agent.ExtractTestPlan(response)
	if !ok {
		m.logger.Warn("test plan not parseable, storing default", "project_id", projectID, "step", step)
	}
	if data, err := json.Marshal(plan); err == nil {
		m.saveArtifact(projectID, core.ArtifactTestPlan, "test_plan", string(data), step)
	}

	results, ok := agent.ExtractTestResults(response)
	if !ok {
		m.logger.Warn("test results not parseable, storing default", "project_id", projectID, "step", step)
	}
	if data, err := json.Marshal(results); err == nil {
		m.saveArtifact(projectID, core.ArtifactTestResult, "test_results", string(data), step)
	}
}

// assembleSummary concatenates the run's outputs in a fixed section order.
// It is written to the project context and seeds future runs.
func assembleSummary(analysis, code, report string) string {
	var sb strings.Builder
	sb.WriteString("## Requirements Analysis\n\n")
	sb.WriteString(strings.TrimSpace(analysis))
	sb.WriteString("\n\n## Implementation\n\n")
	sb.WriteString(strings.TrimSpace(code))
	sb.WriteString("\n\n## Test Results\n\n")
	sb.WriteString(strings.TrimSpace(report))
	return sb.String()
}

func (m *Manager) projectLock(projectID string) *sync.Mutex {
	m.projMu.Lock()
	defer m.projMu.Unlock()
	if m.projLocks == nil {
		m.projLocks = map[string]*sync.Mutex{}
	}
	lock, ok := m.projLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		m.projLocks[projectID] = lock
	}
	return lock
}

// projectName derives a short display name from the first user message.
func projectName(text string) string {
	name := strings.TrimSpace(text)
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = name[:i]
	}
	if len(name) > 60 {
		name = name[:60]
	}
	if name == "" {
		name = "untitled project"
	}
	return name
}
