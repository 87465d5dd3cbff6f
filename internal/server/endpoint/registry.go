package endpoint

import "sync"

// ConnRegistry tracks the live connections of an endpoint, keyed by
// Conn.ID. IDs must be unique among live connections.
type ConnRegistry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// NewConnRegistry returns an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[string]Conn)}
}

// Register adds c.
func (r *ConnRegistry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c.ID()] = c
	r.mu.Unlock()
}

// Unregister removes c and reports whether it was present.
func (r *ConnRegistry) Unregister(c Conn) bool {
	id := c.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// Len returns the number of tracked connections.
func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll empties the registry and force-closes every connection that was
// in it. Connections are closed outside the lock, so they may call
// Unregister from Close. It returns how many connections were closed.
func (r *ConnRegistry) CloseAll() int {
	r.mu.Lock()
	snapshot := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	for _, c := range snapshot {
		c.Close(true)
	}
	return len(snapshot)
}
