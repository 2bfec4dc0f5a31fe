// internal/storage/storage.go
package storage

import "github.com/webgame-three/fpsync/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Remote entity recording
	RecordPlayerState(s *core.PlayerState) error
	RecordProjectile(p *core.ProjectileState) error
	RecordDisconnect(id core.Identity) error

	// Relay notifications
	RecordPresence(e *core.PresenceEvent) error
	RecordChat(m *core.ChatMessage) error
}

// Exportable is an optional interface for storage backends that write a
// session file when the session ends.
type Exportable interface {
	ExportedFilePath() string
}
