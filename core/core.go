package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies a conversation participant: the human user or one of the
// role-specialized agents.
type Role string

const (
	// RoleUser is the human participant.
	RoleUser Role = "user"
	// RoleBA is the Business Analyst agent.
	RoleBA Role = "ba"
	// RoleDev is the Developer agent.
	RoleDev Role = "dev"
	// RoleTester is the Tester agent.
	RoleTester Role = "tester"
)

// DisplayName returns the human readable name used in prompts and logs.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleBA:
		return "Business Analyst"
	case RoleDev:
		return "Developer"
	case RoleTester:
		return "Tester"
	default:
		return string(r)
	}
}

// NewID generates a unique identifier for messages, artifacts and workflows.
func NewID() string { return uuid.NewString() }

// Message is a single immutable conversation turn within a project.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ArtifactType categorizes durable project outputs.
type ArtifactType string

const (
	// ArtifactRequirement is a requirements analysis produced by the BA.
	ArtifactRequirement ArtifactType = "requirement"
	// ArtifactTask is an implementation task derived from an analysis.
	ArtifactTask ArtifactType = "task"
	// ArtifactCode is a code file produced by the Developer.
	ArtifactCode ArtifactType = "code"
	// ArtifactTestPlan is a structured test plan produced by the Tester.
	ArtifactTestPlan ArtifactType = "test_plan"
	// ArtifactTestResult is a structured verification report.
	ArtifactTestResult ArtifactType = "test_result"
	// ArtifactTest is an individual test case.
	ArtifactTest ArtifactType = "test"
)

// Artifact is a named, typed piece of project output. Content is opaque text;
// it frequently carries a serialized structured payload which callers decode
// via Decode rather than assuming a shape.
type Artifact struct {
	ID        string         `json:"id"`
	Type      ArtifactType   `json:"type"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Decode attempts to parse Content as JSON into v. It reports false when the
// content is not a structured payload so callers can substitute a default.
func (a Artifact) Decode(v any) bool {
	return json.Unmarshal([]byte(a.Content), v) == nil
}

// Context is the per-project record: identity, free-form metadata, the
// summary written by the latest completed workflow, and the artifact list.
type Context struct {
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Summary   string         `json:"summary"`
	Artifacts []Artifact     `json:"artifacts"`
}

// StreamEventKind distinguishes the three phases of a streamed agent response.
type StreamEventKind string

const (
	// StreamStart signals that an agent began producing a response.
	StreamStart StreamEventKind = "agent_response_start"
	// StreamChunk carries one incremental fragment of the response.
	StreamChunk StreamEventKind = "agent_response_chunk"
	// StreamEnd signals completion and carries the persisted message id.
	StreamEnd StreamEventKind = "agent_response_end"
)

// StreamEvent is delivered to project subscribers while a workflow step runs.
// Events are strictly ordered within a (WorkflowID, Step) pair; there is no
// ordering guarantee across concurrent streams.
type StreamEvent struct {
	Kind           StreamEventKind `json:"kind"`
	Agent          Role            `json:"agent"`
	Step           string          `json:"step"`
	WorkflowID     string          `json:"workflow_id"`
	ProjectID      string          `json:"project_id"`
	Text           string          `json:"text,omitempty"`
	FinalMessageID string          `json:"final_message_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
