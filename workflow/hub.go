package workflow

import (
	"sync"

	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/logging"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events rather than stalling the
// pipeline.
const subscriberBuffer = 64

// Hub fans stream events out to per-project subscriber groups. Publishing
// never blocks; events to a full subscriber channel are dropped.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan core.StreamEvent
	logger logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		subs:   map[string]map[int]chan core.StreamEvent{},
		logger: logging.OrNoOp(logger),
	}
}

// Subscribe registers interest in a project's events. The cancel function
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (h *Hub) Subscribe(projectID string) (<-chan core.StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan core.StreamEvent, subscriberBuffer)
	if h.subs[projectID] == nil {
		h.subs[projectID] = map[int]chan core.StreamEvent{}
	}
	h.subs[projectID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if group, ok := h.subs[projectID]; ok {
				delete(group, id)
				if len(group) == 0 {
					delete(h.subs, projectID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of its project.
func (h *Hub) Publish(event core.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.ProjectID] {
		select {
		case ch <- event:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				"project_id", event.ProjectID, "kind", event.Kind, "step", event.Step)
		}
	}
}

// SubscriberCount reports the live subscriber count for a project.
func (h *Hub) SubscriberCount(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}
