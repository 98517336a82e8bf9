// Package session tracks which devices currently hold an open stream
// connection to the gateway.
package session

import (
	"sort"
	"sync"
	"time"
)

// Session is a snapshot of one device binding.
type Session struct {
	DeviceID    string    `json:"deviceId"`
	RemoteAddr  string    `json:"remoteAddr"`
	Variant     string    `json:"variant"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastContact time.Time `json:"lastContact"`

	handle *Handle
}

// Registry maps device identifiers to live connection handles. All methods
// are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Bind records h as the device's current connection, replacing any earlier
// one. A replaced handle is not closed: its connection goroutine still owns
// it.
func (r *Registry) Bind(deviceID string, h *Handle, variant string) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[deviceID]; ok && cur.handle == h {
		cur.LastContact = now
		cur.Variant = variant
		return
	}
	r.sessions[deviceID] = &Session{
		DeviceID:    deviceID,
		RemoteAddr:  h.RemoteAddr(),
		Variant:     variant,
		ConnectedAt: now,
		LastContact: now,
		handle:      h,
	}
}

// Unbind removes the device's binding only if it still points at h, so a
// late disconnect of an old connection cannot evict a fresh reconnect. It
// reports whether a binding was removed.
func (r *Registry) Unbind(deviceID string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[deviceID]; ok && cur.handle == h {
		delete(r.sessions, deviceID)
		return true
	}
	return false
}

// Lookup returns the device's live handle, or false when it is offline.
func (r *Registry) Lookup(deviceID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[deviceID]; ok {
		return s.handle, true
	}
	return nil, false
}

// Get returns a copy of the device's session.
func (r *Registry) Get(deviceID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[deviceID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Online returns a snapshot of all sessions ordered by device identifier.
func (r *Registry) Online() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
