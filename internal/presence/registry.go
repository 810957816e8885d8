// Package presence tracks which users currently hold a live chat session.
package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/xiaot623/gogo/messenger/internal/protocol"
)

// Handle is the transport-side reference to one live connection.
type Handle interface {
	ID() string
	Send(frame protocol.Frame) error
	Close() error
}

// Registry maps a user id to the handle of its single active session.
// It never emits events; callers broadcast presence changes.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register binds userID to h. The last connection wins: a previous handle is
// replaced and returned without being notified or closed.
func (r *Registry) Register(userID string, h Handle) (previous Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.handles[userID]
	r.handles[userID] = h
	return previous
}

// Unregister removes the entry for userID if present.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[userID]; !ok {
		return false
	}
	delete(r.handles, userID)
	return true
}

// UnregisterHandle removes the entry for userID only while it still points at handleID.
// A superseded session closing late must not evict the connection that replaced it.
func (r *Registry) UnregisterHandle(userID, handleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[userID]
	if !ok || h.ID() != handleID {
		return false
	}
	delete(r.handles, userID)
	return true
}

// Lookup returns the live handle for userID.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[userID]
	return h, ok
}

// IsOnline reports whether userID has a live session.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUserIDs returns a sorted snapshot of online user ids.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.handles)
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Handles returns a snapshot of every live handle, for broadcasting.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.handles)
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
