// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/webgame-three/fpsync/internal/config"
	"github.com/webgame-three/fpsync/pkg/core"
)

var ErrNoSession = errors.New("no session started")

// StateSample is one recorded player update
type StateSample struct {
	Time  time.Time
	State core.PlayerState
}

// PlayerRecord groups a remote player with all its time-series data
type PlayerRecord struct {
	ID          core.Identity
	States      []StateSample
	Disconnects []time.Time
}

// ProjectileRecord is one recorded shot
type ProjectileRecord struct {
	Time  time.Time
	State core.ProjectileState
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	players     map[core.Identity]*PlayerRecord
	projectiles []ProjectileRecord
	presence    []core.PresenceEvent
	chat        []core.ChatMessage

	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		players: make(map[core.Identity]*PlayerRecord),
		now:     time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp

	// Reset all collections
	b.players = make(map[core.Identity]*PlayerRecord)
	b.projectiles = nil
	b.presence = nil
	b.chat = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	if b.session.EndTime.IsZero() {
		b.session.EndTime = b.now()
	}
	return b.exportJSON()
}

func (b *Backend) player(id core.Identity) *PlayerRecord {
	rec, ok := b.players[id]
	if !ok {
		rec = &PlayerRecord{ID: id}
		b.players[id] = rec
	}
	return rec
}

// RecordPlayerState appends a state sample to the player's record
func (b *Backend) RecordPlayerState(s *core.PlayerState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.player(s.ID)
	rec.States = append(rec.States, StateSample{Time: b.now(), State: *s})
	return nil
}

// RecordProjectile records a shot
func (b *Backend) RecordProjectile(p *core.ProjectileState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.projectiles = append(b.projectiles, ProjectileRecord{Time: b.now(), State: *p})
	return nil
}

// RecordDisconnect records the removal of a remote player
func (b *Backend) RecordDisconnect(id core.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.player(id)
	rec.Disconnects = append(rec.Disconnects, b.now())
	return nil
}

// RecordPresence records a join or leave notification
func (b *Backend) RecordPresence(e *core.PresenceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.presence = append(b.presence, *e)
	return nil
}

// RecordChat records a chat line
func (b *Backend) RecordChat(m *core.ChatMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chat = append(b.chat, *m)
	return nil
}

// ExportedFilePath returns the file written by the last EndSession
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetPlayer returns a copy of the record for id
func (b *Backend) GetPlayer(id core.Identity) (PlayerRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.players[id]
	if !ok {
		return PlayerRecord{}, false
	}
	cp := PlayerRecord{
		ID:          rec.ID,
		States:      append([]StateSample(nil), rec.States...),
		Disconnects: append([]time.Time(nil), rec.Disconnects...),
	}
	return cp, true
}

// ProjectileCount returns the number of recorded shots
func (b *Backend) ProjectileCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.projectiles)
}
