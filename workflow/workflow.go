// Package workflow orchestrates the fixed BA -> Dev -> Tester pipeline over
// a project. A Manager runs workflows, fans streaming events out to project
// subscribers and keeps finished runs available for late status polling.
package workflow

import (
	"sync"
	"time"

	"github.com/devteam-ai/devteam/core"
)

// Status of a workflow run or of a single step.
type Status string

const (
	// StatusRunning is the initial state of runs and steps.
	StatusRunning Status = "running"
	// StatusCompleted is the successful terminal state.
	StatusCompleted Status = "completed"
	// StatusFailed is the unsuccessful terminal state.
	StatusFailed Status = "failed"
)

// Step names of the fixed pipeline. The first three always run; the search
// pair and the revision pair are conditional.
const (
	StepBAAnalysis              = "ba_analysis"
	StepSearchAdditionalInfo    = "search_additional_info"
	StepBAAnalysisWithSearch    = "ba_analysis_with_search"
	StepDevImplementation       = "dev_implementation"
	StepTesterVerification      = "tester_verification"
	StepDevRevision             = "dev_revision"
	StepTesterFinalVerification = "tester_final_verification"
)

// StepView is the externally visible record of one pipeline step.
type StepView struct {
	Name       string     `json:"name"`
	Agent      core.Role  `json:"agent,omitempty"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// View is a point-in-time snapshot of a workflow run.
type View struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id"`
	Status     Status     `json:"status"`
	Steps      []StepView `json:"steps"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Workflow is one run's mutable state. Steps form an ordered append-only
// log; the run transitions running -> completed | failed exactly once.
type Workflow struct {
	mu        sync.Mutex
	id        string
	projectID string
	status    Status
	steps     []StepView
	results   map[string]string
	err       string
	startedAt time.Time
	finished  *time.Time
}

func newWorkflow(projectID string) *Workflow {
	return &Workflow{
		id:        core.NewID(),
		projectID: projectID,
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
	}
}

// ID returns the workflow id.
func (w *Workflow) ID() string { return w.id }

// ProjectID returns the owning project id.
func (w *Workflow) ProjectID() string { return w.projectID }

// beginStep appends a running step and returns its index.
func (w *Workflow) beginStep(name string, agent core.Role) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.steps = append(w.steps, StepView{
		Name:      name,
		Agent:     agent,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	})
	return len(w.steps) - 1
}

// setResult records a completed step's output, keyed by step name.
func (w *Workflow) setResult(name, output string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.results == nil {
		w.results = map[string]string{}
	}
	w.results[name] = output
}

// Result returns the recorded output of the named step.
func (w *Workflow) Result(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out, ok := w.results[name]
	return out, ok
}

func (w *Workflow) finishStep(i int, status Status, errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	w.steps[i].Status = status
	w.steps[i].Error = errMsg
	w.steps[i].FinishedAt = &now
}

// complete marks the run completed.
func (w *Workflow) complete() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	w.status = StatusCompleted
	w.finished = &now
}

// fail marks the run failed with the terminating error.
func (w *Workflow) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	w.status = StatusFailed
	w.err = err.Error()
	w.finished = &now
}

func (w *Workflow) done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status != StatusRunning
}

// View snapshots the run for status reporting. The returned value shares no
// mutable state with the run.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	steps := make([]StepView, len(w.steps))
	copy(steps, w.steps)
	return View{
		ID:         w.id,
		ProjectID:  w.projectID,
		Status:     w.status,
		Steps:      steps,
		Error:      w.err,
		StartedAt:  w.startedAt,
		FinishedAt: w.finished,
	}
}
