// Package agent implements the three role agents of the pipeline: Business
// Analyst, Developer and Tester. An Agent owns a backend, a fixed system
// instruction and a sampling temperature; Respond prepares the chat messages
// from the project's conversation and context, calls the backend and persists
// the reply.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/logging"
	"github.com/devteam-ai/devteam/model"
	"github.com/devteam-ai/devteam/store"
)

// historyWindow bounds how many prior turns are replayed into a call.
const historyWindow = 10

// Options configure an Agent.
type Options struct {
	Model       string
	Temperature float64
	Instruction string
	History     int
	Logger      logging.Logger
}

// Agent is one role-specialized participant. Safe for concurrent use; all
// mutable state lives in the store.
type Agent struct {
	role        core.Role
	backend     model.Backend
	store       *store.Store
	modelName   string
	temperature float64
	instruction string
	history     int
	logger      logging.Logger
}

// New creates an agent for the given role.
func New(role core.Role, backend model.Backend, s *store.Store, optFns ...func(o *Options)) *Agent {
	opts := Options{History: historyWindow}
	switch role {
	case core.RoleBA:
		opts.Temperature = 0.7
		opts.Instruction = BAInstruction
	case core.RoleDev:
		opts.Temperature = 0.5
		opts.Instruction = DevInstruction
	case core.RoleTester:
		opts.Temperature = 0.3
		opts.Instruction = TesterInstruction
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{
		role:        role,
		backend:     backend,
		store:       s,
		modelName:   opts.Model,
		temperature: opts.Temperature,
		instruction: opts.Instruction,
		history:     opts.History,
		logger:      logging.OrNoOp(opts.Logger),
	}
}

// Role returns the agent's role.
func (a *Agent) Role() core.Role { return a.role }

// prepareMessages assembles the chat turns for one call: the instruction, a
// project-context turn when a summary exists, the recent conversation window,
// and finally the current input. The agent's own prior messages replay as
// assistant turns; other agents' messages replay as user turns prefixed with
// the speaking role so the model can tell voices apart.
func (a *Agent) prepareMessages(projectID, input string) []model.Message {
	messages := []model.Message{model.System(a.instruction)}

	if pctx, ok := a.store.GetContext(projectID); ok {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Project: %s", pctx.Name)
		if pctx.Summary != "" {
			fmt.Fprintf(&sb, "\n\nCurrent project state:\n%s", pctx.Summary)
		}
		messages = append(messages, model.System(sb.String()))
	}

	for _, msg := range a.store.GetConversation(projectID, a.history) {
		switch msg.Role {
		case a.role:
			messages = append(messages, model.Assistant(msg.Content))
		case core.RoleUser:
			messages = append(messages, model.User(msg.Content))
		default:
			messages = append(messages, model.User(fmt.Sprintf("[%s] %s", msg.Role.DisplayName(), msg.Content)))
		}
	}

	return append(messages, model.User(input))
}

// callOptions returns the per-call overrides for this agent.
func (a *Agent) callOptions() []func(o *model.CallOptions) {
	opts := []func(o *model.CallOptions){model.WithTemperature(a.temperature)}
	if a.modelName != "" {
		opts = append(opts, model.WithModel(a.modelName))
	}
	return opts
}

// Respond runs one turn: chat against the backend (streaming when onChunk is
// non-nil), fall back to a flattened one-shot completion if the chat call
// fails, then persist and return the reply. The fallback covers backends or
// models that reject multi-turn input.
func (a *Agent) Respond(ctx context.Context, projectID, input string, onChunk func(chunk string)) (core.Message, error) {
	messages := a.prepareMessages(projectID, input)

	var reply string
	var err error
	if onChunk != nil {
		reply, err = a.backend.ChatStream(ctx, messages, onChunk, a.callOptions()...)
	} else {
		reply, err = a.backend.Chat(ctx, messages, a.callOptions()...)
	}
	if err != nil {
		a.logger.Warn("chat call failed, falling back to one-shot generation",
			"agent", a.role, "project_id", projectID, "error", err)
		reply, err = a.backend.Generate(ctx, flatten(messages), a.callOptions()...)
		if err != nil {
			return core.Message{}, fmt.Errorf("%s agent: %w", a.role, err)
		}
		if onChunk != nil {
			onChunk(reply)
		}
	}

	msg := a.store.AddMessage(projectID, a.role, reply, map[string]any{
		"agent": string(a.role),
	})
	a.logger.Debug("agent responded", "agent", a.role, "project_id", projectID, "message_id", msg.ID)
	return msg, nil
}

// flatten renders chat turns as a single prompt for the one-shot fallback.
func flatten(messages []model.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n\n", strings.ToUpper(m.Role), m.Content)
	}
	sb.WriteString("ASSISTANT:")
	return sb.String()
}
