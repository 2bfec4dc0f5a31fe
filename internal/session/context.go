package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webgame-three/fpsync/pkg/core"
)

// Version is stamped onto every session record.
const Version = "1.0.0"

// Context holds the current client session
type Context struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewContext starts a session for the local player against serverURL.
func NewContext(localID core.Identity, serverURL string) *Context {
	return &Context{
		session: &core.Session{
			ID:        uuid.NewString(),
			LocalID:   localID,
			ServerURL: serverURL,
			StartTime: time.Now(),
			Version:   Version,
		},
	}
}

// GetSession returns a copy of the current session
func (c *Context) GetSession() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.session
}

// LocalID returns the identity of the local player
func (c *Context) LocalID() core.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.LocalID
}

// SetServerURL records the address actually dialed
func (c *Context) SetServerURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.ServerURL = url
}

// End marks the session finished. Only the first call takes effect.
func (c *Context) End(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.EndTime.IsZero() {
		c.session.EndTime = at
	}
}
