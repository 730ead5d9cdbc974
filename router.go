package relay

import "sync"

// Router maps an event kind to the ordered sequence of subscribers
// registered for it. Registration is append-only; duplicates are allowed,
// so a subscriber registered twice for a kind receives each event twice.
//
// Routes are expected to be configured before dispatch starts, but
// concurrent AddRoute/Subscribers calls are safe: lookups copy the
// subscriber slice under a read lock.
type Router struct {
	mu     sync.RWMutex
	routes map[EventKind][]Subscriber
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[EventKind][]Subscriber)}
}

// AddRoute appends a subscriber for the given kind.
func (r *Router) AddRoute(kind EventKind, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[kind] = append(r.routes[kind], sub)
}

// Subscribers returns the subscribers for the event's kind in insertion
// order. Unknown kinds return an empty slice. The returned slice is a
// copy; mutating it does not affect the router.
func (r *Router) Subscribers(ev Event) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.routes[ev.Kind]
	if len(subs) == 0 {
		return nil
	}
	out := make([]Subscriber, len(subs))
	copy(out, subs)
	return out
}
