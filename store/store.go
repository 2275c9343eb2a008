// Package store owns all per-project conversation and artifact state. It is
// the only component that mutates projects; the orchestrator and agents go
// through its API. State lives in process memory and is periodically
// serialized wholesale to a single JSON snapshot (see snapshot.go), giving
// at-most-one-interval durability loss on crash.
package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/logging"
)

var (
	// ErrProjectNotFound is returned when an operation references an unknown
	// project id.
	ErrProjectNotFound = errors.New("project not found")
	// ErrArtifactNotFound is returned when an artifact lookup misses.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Options configures a Store instance.
type Options struct {
	// MaxMessages bounds each project's conversation; the oldest messages
	// are evicted FIFO on overflow.
	MaxMessages int
	// PersistPath is the directory holding the snapshot file. Empty disables
	// persistence entirely.
	PersistPath string
	// SaveInterval is the autosave tick period.
	SaveInterval time.Duration
	Logger       logging.Logger
}

// Store is a thread-safe conversation and artifact store. One Store instance
// backs every agent call with project context; pass it by reference into the
// orchestrator rather than holding it as a package global so tests can run
// isolated instances.
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]core.Message
	contexts      map[string]*core.Context

	maxMessages  int
	persistPath  string
	saveInterval time.Duration
	logger       logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// New creates a Store, loading an existing snapshot when PersistPath is set
// and one exists. A corrupt or unreadable snapshot is logged and ignored; the
// store starts empty.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{
		MaxMessages:  100,
		SaveInterval: 60 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		conversations: make(map[string][]core.Message),
		contexts:      make(map[string]*core.Context),
		maxMessages:   opts.MaxMessages,
		persistPath:   opts.PersistPath,
		saveInterval:  opts.SaveInterval,
		logger:        logging.OrNoOp(opts.Logger),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if s.persistPath != "" {
		if err := s.load(); err != nil {
			s.logger.Warn("snapshot load failed, starting empty", "error", err)
		}
	}
	return s
}

// CreateProject allocates a fresh project with an empty conversation and
// context record, returning the new project id.
func (s *Store) CreateProject(name string, metadata map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectID := core.NewID()
	now := time.Now().UTC()
	s.conversations[projectID] = []core.Message{}
	s.contexts[projectID] = &core.Context{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Artifacts: []core.Artifact{},
	}
	s.logger.Info("project created", "project_id", projectID, "name", name)
	return projectID
}

// HasProject reports whether the project id is known.
func (s *Store) HasProject(projectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contexts[projectID]
	return ok
}

// AddMessage appends a message to the project's conversation, evicting the
// oldest messages FIFO when the configured maximum is exceeded. The
// conversation is created lazily for unknown projects; callers that require
// project existence should pre-check with HasProject.
func (s *Store) AddMessage(projectID string, role core.Role, content string, metadata map[string]any) core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := core.Message{
		ID:        core.NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	conv := append(s.conversations[projectID], msg)
	for len(conv) > s.maxMessages {
		conv = conv[1:]
	}
	s.conversations[projectID] = conv

	if ctx, ok := s.contexts[projectID]; ok {
		ctx.UpdatedAt = msg.Timestamp
	}
	return msg
}

// GetConversation returns the most recent limit messages, oldest first
// within that window. A non-positive limit defaults to the configured
// maximum. The returned slice is a copy.
func (s *Store) GetConversation(projectID string, limit int) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = s.maxMessages
	}
	conv := s.conversations[projectID]
	if len(conv) > limit {
		conv = conv[len(conv)-limit:]
	}
	out := make([]core.Message, len(conv))
	copy(out, conv)
	return out
}

// LastMessage returns the most recent message of the project, if any.
func (s *Store) LastMessage(projectID string) (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.conversations[projectID]
	if len(conv) == 0 {
		return core.Message{}, false
	}
	return conv[len(conv)-1], true
}

// GetContext returns a copy of the project's context record.
func (s *Store) GetContext(projectID string) (core.Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return core.Context{}, false
	}
	return cloneContext(ctx), true
}

// ContextUpdate describes a shallow merge into a project context. Nil fields
// are left untouched; Metadata keys are merged over existing ones.
type ContextUpdate struct {
	Name     *string
	Summary  *string
	Metadata map[string]any
}

// UpdateContext shallow-merges u into the project's context record and
// refreshes its UpdatedAt. It reports false for unknown projects.
func (s *Store) UpdateContext(projectID string, u ContextUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return false
	}
	if u.Name != nil {
		ctx.Name = *u.Name
	}
	if u.Summary != nil {
		ctx.Summary = *u.Summary
	}
	if len(u.Metadata) > 0 {
		if ctx.Metadata == nil {
			ctx.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			ctx.Metadata[k] = v
		}
	}
	ctx.UpdatedAt = time.Now().UTC()
	return true
}

// AddArtifact appends a new artifact to the project and returns its id.
// Unlike AddMessage, artifacts require an existing project.
func (s *Store) AddArtifact(projectID string, typ core.ArtifactType, name, content string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return "", ErrProjectNotFound
	}
	now := time.Now().UTC()
	artifact := core.Artifact{
		ID:        core.NewID(),
		Type:      typ,
		Name:      name,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx.Artifacts = append(ctx.Artifacts, artifact)
	ctx.UpdatedAt = now
	return artifact.ID, nil
}

// GetArtifact returns the artifact by id.
func (s *Store) GetArtifact(projectID, artifactID string) (core.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return core.Artifact{}, false
	}
	for _, a := range ctx.Artifacts {
		if a.ID == artifactID {
			return a, true
		}
	}
	return core.Artifact{}, false
}

// GetArtifactsByType returns all artifacts of the given type, in insertion
// order.
func (s *Store) GetArtifactsByType(projectID string, typ core.ArtifactType) []core.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return []core.Artifact{}
	}
	out := []core.Artifact{}
	for _, a := range ctx.Artifacts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

// GetArtifacts returns every artifact of the project in insertion order.
func (s *Store) GetArtifacts(projectID string) []core.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return []core.Artifact{}
	}
	out := make([]core.Artifact, len(ctx.Artifacts))
	copy(out, ctx.Artifacts)
	return out
}

// ArtifactUpdate describes a shallow field merge into an artifact. Updates
// preserve the artifact's id and CreatedAt.
type ArtifactUpdate struct {
	Name     *string
	Content  *string
	Metadata map[string]any
}

// UpdateArtifact merges u into the artifact and refreshes both the artifact
// and project UpdatedAt timestamps. It reports false when the project or
// artifact is unknown.
func (s *Store) UpdateArtifact(projectID, artifactID string, u ArtifactUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[projectID]
	if !ok {
		return false
	}
	for i := range ctx.Artifacts {
		if ctx.Artifacts[i].ID != artifactID {
			continue
		}
		a := &ctx.Artifacts[i]
		if u.Name != nil {
			a.Name = *u.Name
		}
		if u.Content != nil {
			a.Content = *u.Content
		}
		if len(u.Metadata) > 0 {
			if a.Metadata == nil {
				a.Metadata = make(map[string]any, len(u.Metadata))
			}
			for k, v := range u.Metadata {
				a.Metadata[k] = v
			}
		}
		now := time.Now().UTC()
		a.UpdatedAt = now
		ctx.UpdatedAt = now
		return true
	}
	return false
}

// DeleteProject removes the project's conversation and context atomically
// within the call. It does not force an immediate snapshot.
func (s *Store) DeleteProject(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hasConv := s.conversations[projectID]
	_, hasCtx := s.contexts[projectID]
	if !hasConv && !hasCtx {
		return false
	}
	delete(s.conversations, projectID)
	delete(s.contexts, projectID)
	s.logger.Info("project deleted", "project_id", projectID)
	return true
}

func cloneContext(ctx *core.Context) core.Context {
	out := *ctx
	out.Artifacts = make([]core.Artifact, len(ctx.Artifacts))
	copy(out.Artifacts, ctx.Artifacts)
	if ctx.Metadata != nil {
		out.Metadata = make(map[string]any, len(ctx.Metadata))
		for k, v := range ctx.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
