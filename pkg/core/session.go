// pkg/core/session.go
package core

import "time"

// Session describes one connection lifetime of the local client.
type Session struct {
	ID        string
	LocalID   Identity
	ServerURL string
	StartTime time.Time
	EndTime   time.Time
	Version   string
}

// PresenceKind distinguishes join and leave notifications.
type PresenceKind string

const (
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// PresenceEvent is a user_join or user_leave notification relayed by the server.
type PresenceEvent struct {
	Kind     PresenceKind
	Username string
	Time     time.Time
}

// ChatMessage is a chat line relayed by the server.
type ChatMessage struct {
	Username string
	Message  string
	Time     time.Time
}
