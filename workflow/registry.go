package workflow

import (
	"sync"
	"time"
)

// registry keeps workflow runs addressable by id and by project. Running
// workflows never expire; finished ones are retained for a grace period so
// late status polls still resolve, then evicted. Eviction is lazy: expired
// entries are pruned on every mutation and lookup rather than by a timer.
type registry struct {
	mu        sync.Mutex
	ttl       time.Duration
	byID      map[string]*registryEntry
	byProject map[string]string
}

type registryEntry struct {
	wf      *Workflow
	expires time.Time
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{
		ttl:       ttl,
		byID:      map[string]*registryEntry{},
		byProject: map[string]string{},
	}
}

func (r *registry) add(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.byID[wf.ID()] = &registryEntry{wf: wf}
	r.byProject[wf.ProjectID()] = wf.ID()
}

// markDone starts the retention clock for a finished run.
func (r *registry) markDone(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.byID[workflowID]; ok {
		entry.expires = time.Now().Add(r.ttl)
	}
}

func (r *registry) get(workflowID string) (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	entry, ok := r.byID[workflowID]
	if !ok {
		return nil, false
	}
	return entry.wf, true
}

// getByProject resolves the project's most recently started run.
func (r *registry) getByProject(projectID string) (*Workflow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	id, ok := r.byProject[projectID]
	if !ok {
		return nil, false
	}
	entry, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return entry.wf, true
}

// prune removes expired entries. Caller holds r.mu.
func (r *registry) prune() {
	now := time.Now()
	for id, entry := range r.byID {
		if entry.expires.IsZero() || now.Before(entry.expires) {
			continue
		}
		delete(r.byID, id)
		if r.byProject[entry.wf.ProjectID()] == id {
			delete(r.byProject, entry.wf.ProjectID())
		}
	}
}
