// Package session tracks which conversation is active.
package session

import (
	"sync"

	"github.com/user/memchat/internal/types"
)

// Entry is one row of the session list.
type Entry struct {
	types.SessionSummary
	Active bool
}

// Registry holds the active session id.
type Registry struct {
	mu     sync.RWMutex
	active types.SessionID
}

// NewRegistry creates a Registry whose active session is id, or a fresh
// session when id is empty.
func NewRegistry(id types.SessionID) *Registry {
	if id == "" {
		id = types.NewSessionID()
	}
	return &Registry{active: id}
}

func (r *Registry) Active() types.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Activate makes id the active session and returns the one it replaced.
func (r *Registry) Activate(id types.SessionID) types.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.active
	r.active = id
	return prev
}

// Selection marks the active session among summaries. If the active session
// has no stored messages yet it is listed first with the default title.
func (r *Registry) Selection(summaries []types.SessionSummary, defaultTitle string) []Entry {
	active := r.Active()
	entries := make([]Entry, 0, len(summaries)+1)
	found := false
	for _, s := range summaries {
		isActive := s.SessionID == active
		found = found || isActive
		entries = append(entries, Entry{SessionSummary: s, Active: isActive})
	}
	if !found {
		pending := Entry{
			SessionSummary: types.SessionSummary{SessionID: active, Title: defaultTitle},
			Active:         true,
		}
		entries = append([]Entry{pending}, entries...)
	}
	return entries
}
