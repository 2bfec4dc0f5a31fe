// Package entitysync filters remote player and projectile state and forwards
// it to the rendering side through one-slot hooks.
package entitysync

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webgame-three/fpsync/internal/dispatcher"
	"github.com/webgame-three/fpsync/pkg/core"
	"github.com/webgame-three/fpsync/pkg/streaming"
)

var (
	ErrMissingID       = errors.New("payload has no id")
	ErrMissingUsername = errors.New("presence message has no username")
)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synchronizer holds no entity map of its own. It drops echoes of the local
// player's own traffic and hands everything else to the registered hook.
type Synchronizer struct {
	localID core.Identity
	logger  *slog.Logger

	mu                 sync.RWMutex
	onPlayerUpdate     func(core.Identity, core.PlayerState)
	onBulletUpdate     func(core.Identity, core.ProjectileState)
	onPlayerDisconnect func(core.Identity)
	onPresence         func(core.PresenceEvent)
	onChat             func(core.ChatMessage)
	onSystem           func(string)
}

// New creates a Synchronizer for the local player.
func New(localID core.Identity, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		localID: localID,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalID returns the identity whose traffic is filtered out.
func (s *Synchronizer) LocalID() core.Identity {
	return s.localID
}

func (s *Synchronizer) SetOnPlayerUpdate(fn func(core.Identity, core.PlayerState)) {
	s.mu.Lock()
	s.onPlayerUpdate = fn
	s.mu.Unlock()
}

func (s *Synchronizer) SetOnBulletUpdate(fn func(core.Identity, core.ProjectileState)) {
	s.mu.Lock()
	s.onBulletUpdate = fn
	s.mu.Unlock()
}

func (s *Synchronizer) SetOnPlayerDisconnect(fn func(core.Identity)) {
	s.mu.Lock()
	s.onPlayerDisconnect = fn
	s.mu.Unlock()
}

// SetOnPresence receives both join and leave notifications. A leave also
// fires the disconnect hook.
func (s *Synchronizer) SetOnPresence(fn func(core.PresenceEvent)) {
	s.mu.Lock()
	s.onPresence = fn
	s.mu.Unlock()
}

func (s *Synchronizer) SetOnChat(fn func(core.ChatMessage)) {
	s.mu.Lock()
	s.onChat = fn
	s.mu.Unlock()
}

func (s *Synchronizer) SetOnSystem(fn func(string)) {
	s.mu.Lock()
	s.onSystem = fn
	s.mu.Unlock()
}

// HandlePlayerUpdate forwards a remote player's state unless it is the local player's own.
func (s *Synchronizer) HandlePlayerUpdate(state core.PlayerState) {
	if state.ID == s.localID {
		return
	}
	s.mu.RLock()
	fn := s.onPlayerUpdate
	s.mu.RUnlock()
	if fn != nil {
		fn(state.ID, state)
	}
}

// HandlePlayerShoot forwards one remote projectile spawn unless the local player fired it.
func (s *Synchronizer) HandlePlayerShoot(state core.ProjectileState) {
	if state.ID == s.localID {
		return
	}
	s.mu.RLock()
	fn := s.onBulletUpdate
	s.mu.RUnlock()
	if fn != nil {
		fn(state.ID, state)
	}
}

// HandlePlayerDisconnect fires the disconnect hook on every call, including
// repeats for the same id. The hook must tolerate removing an unknown id.
func (s *Synchronizer) HandlePlayerDisconnect(id core.Identity) {
	s.mu.RLock()
	fn := s.onPlayerDisconnect
	s.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
}

func (s *Synchronizer) handlePresence(ev core.PresenceEvent) {
	s.mu.RLock()
	fn := s.onPresence
	s.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// ProduceUpdate stamps the local identity onto a pose. The result shares no
// memory with the caller's values.
func (s *Synchronizer) ProduceUpdate(position core.Vector3, rotation core.Rotation, health int) core.PlayerState {
	return core.PlayerState{
		ID:       s.localID,
		Position: position,
		Rotation: rotation,
		Health:   health,
	}
}

// ProduceShoot mints a projectile id for one shot.
func (s *Synchronizer) ProduceShoot(position, direction core.Vector3) (core.Identity, core.ProjectileState) {
	id := core.NewProjectileID()
	return id, core.ProjectileState{
		ID:        id,
		Position:  position,
		Direction: direction,
	}
}

// RegisterHandlers binds the inbound message kinds the synchronizer consumes.
func (s *Synchronizer) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(streaming.TypePlayerUpdate, s.onPlayerUpdateMessage)
	d.Register(streaming.TypePlayerShoot, s.onPlayerShootMessage)
	d.Register(streaming.TypeUserJoin, s.onUserJoinMessage, dispatcher.Logged())
	d.Register(streaming.TypeUserLeave, s.onUserLeaveMessage, dispatcher.Logged())
	d.Register(streaming.TypeChat, s.onChatMessage)
	d.Register(streaming.TypeSystem, s.onSystemMessage)
}

func (s *Synchronizer) onPlayerUpdateMessage(e dispatcher.Event) error {
	state, err := streaming.DecodeData[core.PlayerState](e.Envelope)
	if err != nil {
		return fmt.Errorf("playerUpdate: %w", err)
	}
	if state.ID == "" {
		return fmt.Errorf("playerUpdate: %w", ErrMissingID)
	}
	s.HandlePlayerUpdate(state)
	return nil
}

func (s *Synchronizer) onPlayerShootMessage(e dispatcher.Event) error {
	state, err := streaming.DecodeData[core.ProjectileState](e.Envelope)
	if err != nil {
		return fmt.Errorf("playerShoot: %w", err)
	}
	if state.ID == "" {
		return fmt.Errorf("playerShoot: %w", ErrMissingID)
	}
	s.HandlePlayerShoot(state)
	return nil
}

type presencePayload struct {
	Username string `json:"username"`
}

// username reads the name from the envelope, falling back to a
// {"username"} data payload.
func username(env streaming.Envelope) string {
	if env.Username != "" {
		return env.Username
	}
	p, err := streaming.DecodeData[presencePayload](env)
	if err != nil {
		return ""
	}
	return p.Username
}

func (s *Synchronizer) onUserJoinMessage(e dispatcher.Event) error {
	name := username(e.Envelope)
	if name == "" {
		return fmt.Errorf("user_join: %w", ErrMissingUsername)
	}
	s.logger.Info("user joined", "username", name)
	s.handlePresence(core.PresenceEvent{Kind: core.PresenceJoin, Username: name, Time: e.Received})
	return nil
}

func (s *Synchronizer) onUserLeaveMessage(e dispatcher.Event) error {
	name := username(e.Envelope)
	if name == "" {
		return fmt.Errorf("user_leave: %w", ErrMissingUsername)
	}
	s.logger.Info("user left", "username", name)
	s.handlePresence(core.PresenceEvent{Kind: core.PresenceLeave, Username: name, Time: e.Received})
	s.HandlePlayerDisconnect(core.Identity(name))
	return nil
}

type chatPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (s *Synchronizer) onChatMessage(e dispatcher.Event) error {
	msg := core.ChatMessage{
		Username: e.Envelope.Username,
		Message:  e.Envelope.Message,
		Time:     e.Received,
	}
	if msg.Username == "" && msg.Message == "" {
		p, err := streaming.DecodeData[chatPayload](e.Envelope)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		msg.Username, msg.Message = p.Username, p.Message
	}
	// the relay stamps chat with unix seconds
	if e.Envelope.Timestamp > 0 {
		msg.Time = time.Unix(e.Envelope.Timestamp, 0)
	}
	s.logger.Debug("chat message", "username", msg.Username, "message", msg.Message)

	s.mu.RLock()
	fn := s.onChat
	s.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
	return nil
}

func (s *Synchronizer) onSystemMessage(e dispatcher.Event) error {
	s.logger.Info("system message", "message", e.Envelope.Message)
	s.mu.RLock()
	fn := s.onSystem
	s.mu.RUnlock()
	if fn != nil {
		fn(e.Envelope.Message)
	}
	return nil
}
