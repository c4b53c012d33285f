package server

import (
	"slices"
	"sync"
)

// Registry maps announced user ids to their live connection. A user has at
// most one connection; announcing again from another connection replaces it.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*Client),
	}
}

// Announce records c as the connection for userId, replacing any previous one.
// It returns the connection that was replaced, if any.
func (r *Registry) Announce(c *Client, userId string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.users[userId]
	r.users[userId] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *Registry) Lookup(userId string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.users[userId]
	return c, ok
}

// RemoveByConnection drops every entry that resolves to c and returns the
// user ids that were removed. Entries that were overwritten by a newer
// connection are left alone.
func (r *Registry) RemoveByConnection(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for userId, conn := range r.users {
		if conn == c {
			delete(r.users, userId)
			removed = append(removed, userId)
		}
	}

	return removed
}

func (r *Registry) RemoveByUser(userId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userId]; !ok {
		return false
	}

	delete(r.users, userId)
	return true
}

// OnlineUsers returns a sorted snapshot of the announced user ids.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for userId := range r.users {
		ids = append(ids, userId)
	}
	slices.Sort(ids)

	return ids
}
