package registry

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"glassmon/internal/model"
)

// Writer delivers one named event to a single live connection.
type Writer interface {
	WriteEvent(event string, payload json.RawMessage) error
	Close() error
}

type entry struct {
	conn   model.Connection
	writer Writer
}

// Registry tracks role and device id per live connection. Entries are
// created on connect and removed on disconnect; nothing is persisted.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, entries: make(map[string]*entry)}
}

func (r *Registry) Add(socketID string, w Writer) model.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{conn: model.Connection{SocketID: socketID, Role: model.RoleUnset}, writer: w}
	r.entries[socketID] = e
	return e.conn
}

func (r *Registry) Remove(socketID string) (model.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[socketID]
	if !ok {
		return model.Connection{}, false
	}
	delete(r.entries, socketID)
	return e.conn, true
}

func (r *Registry) Get(socketID string) (model.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[socketID]
	if !ok {
		return model.Connection{}, false
	}
	return e.conn, true
}

// Update applies fn to the connection's metadata under the registry lock
// and returns the resulting value.
func (r *Registry) Update(socketID string, fn func(*model.Connection)) (model.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[socketID]
	if !ok {
		return model.Connection{}, false
	}
	fn(&e.conn)
	return e.conn, true
}

// List returns the connections holding role, ordered by socket id.
func (r *Registry) List(role model.Role) []model.Connection {
	r.mu.RLock()
	result := make([]model.Connection, 0, len(r.entries))
	for _, e := range r.entries {
		if e.conn.Role == role {
			result = append(result, e.conn)
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].SocketID < result[j].SocketID })
	return result
}

func (r *Registry) Count(role model.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.conn.Role == role {
			n++
		}
	}
	return n
}

// Broadcast writes the event to every connection with role except the one
// identified by exceptID. A failing target is closed and does not stop
// delivery to the rest. It returns the number of successful writes.
func (r *Registry) Broadcast(role model.Role, exceptID string, event string, payload json.RawMessage) int {
	r.mu.RLock()
	targets := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		if id == exceptID || e.conn.Role != role {
			continue
		}
		targets = append(targets, e)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, e := range targets {
		if r.write(e, event, payload) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Send(socketID string, event string, payload json.RawMessage) bool {
	r.mu.RLock()
	e, ok := r.entries[socketID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.write(e, event, payload)
}

func (r *Registry) write(e *entry, event string, payload json.RawMessage) bool {
	if err := e.writer.WriteEvent(event, payload); err != nil {
		r.logger.Warn("emit failed", "socket_id", e.conn.SocketID, "event", event, "err", err)
		_ = e.writer.Close()
		return false
	}
	return true
}
