package cache

import (
	"sort"
	"sync"

	"github.com/webgame-three/fpsync/pkg/core"
)

// RemoteEntries tracks one scene handle per remote entity so that repeated
// updates for the same id move the existing entry instead of adding another.
type RemoteEntries[H any] struct {
	mu      sync.RWMutex
	entries map[core.Identity]H
}

func NewRemoteEntries[H any]() *RemoteEntries[H] {
	return &RemoteEntries[H]{
		entries: make(map[core.Identity]H),
	}
}

// Get retrieves the handle for id
func (c *RemoteEntries[H]) Get(id core.Identity) (H, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[id]
	return h, ok
}

// Upsert creates the handle with create if id is unknown, otherwise applies
// update to the existing one. Reports whether the entry was created.
func (c *RemoteEntries[H]) Upsert(id core.Identity, create func() H, update func(H) H) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.entries[id]; ok {
		c.entries[id] = update(h)
		return false
	}
	c.entries[id] = create()
	return true
}

// Remove deletes the handle for id. Removing an unknown id is a no-op.
func (c *RemoteEntries[H]) Remove(id core.Identity) (H, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	return h, ok
}

func (c *RemoteEntries[H]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IDs returns the tracked ids in sorted order
func (c *RemoteEntries[H]) IDs() []core.Identity {
	c.mu.RLock()
	ids := make([]core.Identity, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset drops every entry
func (c *RemoteEntries[H]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[core.Identity]H)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
