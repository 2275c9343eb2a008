// Package devteam wires the full pipeline together: a bounded conversation
// store with snapshot persistence, one inference backend per role agent, the
// lexical classifiers, the optional search collaborator and the workflow
// manager. The zero-config path talks to a local Ollama instance.
package devteam

import (
	"context"
	"os"

	"github.com/devteam-ai/devteam/agent"
	"github.com/devteam-ai/devteam/config"
	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/heuristic"
	"github.com/devteam-ai/devteam/logging"
	"github.com/devteam-ai/devteam/model"
	"github.com/devteam-ai/devteam/model/ollama"
	"github.com/devteam-ai/devteam/search"
	"github.com/devteam-ai/devteam/store"
	"github.com/devteam-ai/devteam/workflow"
)

// Options customize the wiring beyond what config covers.
type Options struct {
	// Backend overrides the default Ollama backend for every agent.
	Backend model.Backend
	// SearchProvider overrides the Google provider built from config.
	SearchProvider search.Provider
	// Classifier overrides the default keyword classifier.
	Classifier heuristic.Classifier
	Logger     logging.Logger
}

// DevTeam is the assembled pipeline.
type DevTeam struct {
	cfg      config.Config
	store    *store.Store
	backend  model.Backend
	registry model.Registry
	manager  *workflow.Manager
	logger   logging.Logger
}

// New assembles a DevTeam from configuration.
func New(cfg config.Config, optFns ...func(o *Options)) *DevTeam {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	}

	st := store.New(func(o *store.Options) {
		o.MaxMessages = cfg.Memory.MaxMessages
		o.PersistPath = cfg.Memory.PersistPath
		o.SaveInterval = cfg.Memory.SaveInterval
		o.Logger = logger
	})

	backend := opts.Backend
	var registry model.Registry
	if backend == nil {
		client := ollama.New(func(o *ollama.Options) {
			o.BaseURL = cfg.Ollama.BaseURL
			o.Model = cfg.Ollama.DefaultModel
			o.Temperature = cfg.Ollama.Temperature
			o.TopP = cfg.Ollama.TopP
			o.TopK = cfg.Ollama.TopK
			o.RepeatPenalty = cfg.Ollama.RepeatPenalty
			o.MaxTokens = cfg.Ollama.MaxTokens
			o.Timeout = cfg.Ollama.Timeout
			o.Retries = cfg.Ollama.Retries
			o.RetryDelay = cfg.Ollama.RetryDelay
			o.Logger = logger
		})
		backend = client
		registry = client
	} else if r, ok := backend.(model.Registry); ok {
		registry = r
	}

	newAgent := func(role core.Role, ac config.AgentConfig) *agent.Agent {
		return agent.New(role, backend, st, func(o *agent.Options) {
			o.Model = ac.Model
			o.Temperature = ac.Temperature
			o.Logger = logger
		})
	}
	agents := workflow.Agents{
		BA:     newAgent(core.RoleBA, cfg.Agents.BA),
		Dev:    newAgent(core.RoleDev, cfg.Agents.Dev),
		Tester: newAgent(core.RoleTester, cfg.Agents.Tester),
	}

	var searchClient *search.Client
	provider := opts.SearchProvider
	if provider == nil && cfg.Search.APIKey != "" && cfg.Search.SearchEngineID != "" {
		provider = search.NewGoogleClient(func(o *search.GoogleOptions) {
			o.APIKey = cfg.Search.APIKey
			o.SearchEngineID = cfg.Search.SearchEngineID
			o.Logger = logger
		})
	}
	if provider != nil {
		searchClient = search.NewClient(func(o *search.Options) {
			o.Provider = provider
			o.MaxResults = cfg.Search.MaxResults
			o.EnrichTop = cfg.Search.EnrichTop
			o.Logger = logger
		})
	}

	manager := workflow.NewManager(st, agents, func(o *workflow.Options) {
		if opts.Classifier != nil {
			o.Classifier = opts.Classifier
		}
		o.Search = searchClient
		o.RetainFinished = cfg.Workflow.ResultTTL
		o.SerializeProjects = cfg.Workflow.SerializeProjects
		o.Logger = logger
	})

	return &DevTeam{
		cfg:      cfg,
		store:    st,
		backend:  backend,
		registry: registry,
		manager:  manager,
		logger:   logger,
	}
}

// Start launches the store autosave loop and verifies backend reachability
// and model availability. Backend problems are logged, not fatal: the first
// workflow surfaces them to its caller with full retry semantics.
func (d *DevTeam) Start(ctx context.Context) {
	d.store.Start(ctx)
	if d.registry == nil {
		return
	}
	for _, name := range []string{d.cfg.Agents.BA.Model, d.cfg.Agents.Dev.Model, d.cfg.Agents.Tester.Model} {
		if err := d.registry.EnsureModelAvailable(ctx, name); err != nil {
			d.logger.Warn("model availability check failed", "model", name, "error", err)
		}
	}
}

// Close stops background loops and flushes the final snapshot.
func (d *DevTeam) Close() error {
	return d.store.Close()
}

// SubmitMessage appends a user message and starts one workflow run.
func (d *DevTeam) SubmitMessage(ctx context.Context, projectID, text string) (*workflow.Run, error) {
	return d.manager.Start(ctx, projectID, text)
}

// WorkflowStatus looks up a run by workflow id.
func (d *DevTeam) WorkflowStatus(workflowID string) (workflow.View, bool) {
	return d.manager.Status(workflowID)
}

// Store returns the project store.
func (d *DevTeam) Store() *store.Store { return d.store }

// Manager returns the workflow manager.
func (d *DevTeam) Manager() *workflow.Manager { return d.manager }

// Logger returns the configured logger.
func (d *DevTeam) Logger() logging.Logger { return d.logger }
