package accounts

import "sync"

// Collection names a watchable data set.
type Collection string

const (
	CollectionUsers         Collection = "users"
	CollectionRides         Collection = "rides"
	CollectionAnnouncements Collection = "announcements"
)

// WatchHub fans out change notifications per collection. Repositories call
// Broadcast after every mutation; dashboards hold a watch and re-query when
// signaled. Signals are coalesced, a slow consumer sees at most one pending
// notification.
type WatchHub struct {
	mu       sync.Mutex
	seq      uint64
	watchers map[Collection]map[uint64]chan struct{}
}

func NewWatchHub() *WatchHub {
	return &WatchHub{
		watchers: map[Collection]map[uint64]chan struct{}{},
	}
}

// Watch registers interest in a collection. The returned cancel func is
// idempotent and must be called to release the watch.
func (h *WatchHub) Watch(collection Collection) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	id := h.seq

	ch := make(chan struct{}, 1)
	if h.watchers[collection] == nil {
		h.watchers[collection] = map[uint64]chan struct{}{}
	}
	h.watchers[collection][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.watchers[collection], id)
	}

	return ch, cancel
}

// Broadcast signals every watcher of the collection without blocking.
func (h *WatchHub) Broadcast(collection Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.watchers[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *WatchHub) watcherCount(collection Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[collection])
}

// SessionScope owns all watches opened on behalf of one signed-in session.
// A session holds at most one live watch per collection: subscribing again
// replaces the previous watch, and Close releases everything, so a sign-out
// or dashboard swap cannot leak listeners.
type SessionScope struct {
	hub *WatchHub

	mu     sync.Mutex
	closed bool
	active map[Collection]func()
}

func NewSessionScope(hub *WatchHub) *SessionScope {
	return &SessionScope{
		hub:    hub,
		active: map[Collection]func(){},
	}
}

// Subscribe opens a watch on the collection, cancelling any previous watch
// this session held on it. Returns nil after Close.
func (s *SessionScope) Subscribe(collection Collection) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if cancel, ok := s.active[collection]; ok {
		cancel()
	}

	ch, cancel := s.hub.Watch(collection)
	s.active[collection] = cancel
	return ch
}

// Unsubscribe drops the session's watch on the collection, if any.
func (s *SessionScope) Unsubscribe(collection Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.active[collection]; ok {
		cancel()
		delete(s.active, collection)
	}
}

// ScopeRegistry keeps one SessionScope per signed-in session, keyed by the
// token subject. Scopes are created lazily on first use and torn down on
// sign-out, so watches never outlive the session that opened them.
type ScopeRegistry struct {
	hub *WatchHub

	mu     sync.Mutex
	scopes map[string]*SessionScope
}

func NewScopeRegistry(hub *WatchHub) *ScopeRegistry {
	return &ScopeRegistry{
		hub:    hub,
		scopes: map[string]*SessionScope{},
	}
}

// ScopeFor returns the session's scope, creating it on first use.
func (r *ScopeRegistry) ScopeFor(sessionID string) *SessionScope {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope, ok := r.scopes[sessionID]
	if !ok {
		scope = NewSessionScope(r.hub)
		r.scopes[sessionID] = scope
	}
	return scope
}

// Release closes the session's scope, if any, and forgets it.
func (r *ScopeRegistry) Release(sessionID string) {
	r.mu.Lock()
	scope, ok := r.scopes[sessionID]
	delete(r.scopes, sessionID)
	r.mu.Unlock()

	if ok {
		scope.Close()
	}
}

func (r *ScopeRegistry) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

// Close releases every watch the session holds. Safe to call more than once.
func (s *SessionScope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for collection, cancel := range s.active {
		cancel()
		delete(s.active, collection)
	}
}
