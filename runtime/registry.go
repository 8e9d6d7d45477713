package runtime

import (
	"sync"

	"conclave/contract"
)

type Set map[string]struct{}

// Registry tracks live subscribers (UI surfaces, tools) per session so the
// fanout can deliver domain events to whoever is watching.
type Registry struct {
	mu          sync.RWMutex
	Subscribers map[string]contract.EventSink // subscriber id -> sink
	Watchers    map[string]Set                // session id -> subscriber ids
}

func NewRegistry() *Registry {
	return &Registry{
		Subscribers: make(map[string]contract.EventSink),
		Watchers:    make(map[string]Set),
	}
}

// GetSinksForSession resolves the active sinks watching one session.
// A subscriber watching several sessions keeps a single sink entry.
// Returns nil when nobody watches the session.
func (r *Registry) GetSinksForSession(sessionID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	watchers, ok := r.Watchers[sessionID]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for subscriberID := range watchers {
		if sink, exists := r.Subscribers[subscriberID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe registers a subscriber's sink and attaches it to a session.
func (r *Registry) Subscribe(subscriberID, sessionID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Subscribers[subscriberID] = sink

	if _, ok := r.Watchers[sessionID]; !ok {
		r.Watchers[sessionID] = make(Set)
	}
	r.Watchers[sessionID][subscriberID] = struct{}{}
}

// Unsubscribe detaches a subscriber and cleans up empty watcher sets to
// prevent the session map from growing forever.
func (r *Registry) Unsubscribe(subscriberID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.Subscribers, subscriberID)

	if watchers, ok := r.Watchers[sessionID]; ok {
		delete(watchers, subscriberID)
		if len(watchers) == 0 {
			delete(r.Watchers, sessionID)
		}
	}
}
