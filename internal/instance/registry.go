package instance

import (
	"sync"

	"github.com/koddahub/whatsbot/internal/engine"
)

// Entry is the in-memory state of one started instance session. It exists if
// and only if a lifecycle was started for the id in this process lifetime.
// The pairing artifact is present only while status is waiting_pairing and is
// never persisted.
type Entry struct {
	ID     string
	Number string

	mu       sync.RWMutex
	status   Status
	artifact string
	session  engine.Session

	mailbox chan interface{}
}

func (e *Entry) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *Entry) Artifact() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.artifact
}

func (e *Entry) Session() engine.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

func (e *Entry) set(status Status, artifact string) {
	e.mu.Lock()
	e.status = status
	e.artifact = artifact
	e.mu.Unlock()
}

func (e *Entry) setSession(s engine.Session) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
}

// Registry maps instance ids to live session entries. It is owned by the
// Manager and injected where needed; reads are safe from concurrent HTTP
// handlers while the manager mutates entries from the event path.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register creates the entry for id with status initializing. Registering an
// existing id returns the existing entry unchanged.
func (r *Registry) Register(id, number string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &Entry{
		ID:      id,
		Number:  number,
		status:  StatusInitializing,
		mailbox: make(chan interface{}, 32),
	}
	r.entries[id] = e
	return e
}

func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// FirstConnected returns any entry currently in connected state.
func (r *Registry) FirstConnected() (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Status() == StatusConnected {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
