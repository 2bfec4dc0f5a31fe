// Package recorder is the headless stand-in for a renderer. It keeps one
// entry per remote player and persists everything the synchronizer
// forwards.
package recorder

import (
	"log/slog"
	"time"

	"github.com/webgame-three/fpsync/internal/cache"
	"github.com/webgame-three/fpsync/internal/entitysync"
	"github.com/webgame-three/fpsync/internal/session"
	"github.com/webgame-three/fpsync/internal/storage"
	"github.com/webgame-three/fpsync/pkg/core"
)

// PlayerSink receives remote player samples.
type PlayerSink interface {
	WritePlayerState(sessionID string, s core.PlayerState, at time.Time) error
}

// Dependencies holds all dependencies for the recorder
type Dependencies struct {
	Backend   storage.Backend
	Telemetry PlayerSink // optional
	Logger    *slog.Logger
	Session   *session.Context
}

// Entry is the recorder's handle for one remote player.
type Entry struct {
	ID        core.Identity
	State     core.PlayerState
	FirstSeen time.Time
	LastSeen  time.Time
	Updates   int
}

// Stats counts what the recorder has seen since it was created.
type Stats struct {
	Updates     int
	Shots       int
	Disconnects int
	Presence    int
	Chat        int
}

type Recorder struct {
	deps    Dependencies
	log     *slog.Logger
	entries *cache.RemoteEntries[Entry]
	now     func() time.Time

	updates     cache.SafeCounter
	shots       cache.SafeCounter
	disconnects cache.SafeCounter
	presence    cache.SafeCounter
	chat        cache.SafeCounter
}

func New(deps Dependencies) *Recorder {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		deps:    deps,
		log:     log.With("component", "recorder"),
		entries: cache.NewRemoteEntries[Entry](),
		now:     time.Now,
	}
}

// Bind installs the recorder on every hook slot of s.
func (r *Recorder) Bind(s *entitysync.Synchronizer) {
	s.SetOnPlayerUpdate(r.OnPlayerUpdate)
	s.SetOnBulletUpdate(r.OnBulletUpdate)
	s.SetOnPlayerDisconnect(r.OnPlayerDisconnect)
	s.SetOnPresence(r.OnPresence)
	s.SetOnChat(r.OnChat)
	s.SetOnSystem(func(msg string) {
		r.log.Info("Server message", "message", msg)
	})
}

// OnPlayerUpdate creates the entry on first sight and replaces its state after.
func (r *Recorder) OnPlayerUpdate(id core.Identity, state core.PlayerState) {
	at := r.now()
	created := r.entries.Upsert(id,
		func() Entry {
			return Entry{ID: id, State: state, FirstSeen: at, LastSeen: at, Updates: 1}
		},
		func(e Entry) Entry {
			e.State = state
			e.LastSeen = at
			e.Updates++
			return e
		},
	)
	if created {
		r.log.Info("Remote player appeared", "player", id)
	}
	r.updates.Inc()

	if err := r.deps.Backend.RecordPlayerState(&state); err != nil {
		r.log.Warn("Failed to record player state", "player", id, "error", err)
	}
	if r.deps.Telemetry != nil {
		if err := r.deps.Telemetry.WritePlayerState(r.sessionID(), state, at); err != nil {
			r.log.Debug("Failed to write player telemetry", "player", id, "error", err)
		}
	}
}

// OnBulletUpdate records the shot. Projectiles never get an entry.
func (r *Recorder) OnBulletUpdate(id core.Identity, state core.ProjectileState) {
	r.shots.Inc()
	if err := r.deps.Backend.RecordProjectile(&state); err != nil {
		r.log.Warn("Failed to record projectile", "projectile", id, "error", err)
	}
}

// OnPlayerDisconnect removes the entry. Unknown ids are ignored.
func (r *Recorder) OnPlayerDisconnect(id core.Identity) {
	if _, ok := r.entries.Remove(id); !ok {
		return
	}
	r.disconnects.Inc()
	r.log.Info("Remote player removed", "player", id)
	if err := r.deps.Backend.RecordDisconnect(id); err != nil {
		r.log.Warn("Failed to record disconnect", "player", id, "error", err)
	}
}

func (r *Recorder) OnPresence(ev core.PresenceEvent) {
	r.presence.Inc()
	if err := r.deps.Backend.RecordPresence(&ev); err != nil {
		r.log.Warn("Failed to record presence", "username", ev.Username, "error", err)
	}
}

func (r *Recorder) OnChat(msg core.ChatMessage) {
	r.chat.Inc()
	if err := r.deps.Backend.RecordChat(&msg); err != nil {
		r.log.Warn("Failed to record chat", "username", msg.Username, "error", err)
	}
}

// Entry returns the current handle for id.
func (r *Recorder) Entry(id core.Identity) (Entry, bool) {
	return r.entries.Get(id)
}

// Remote lists the ids of tracked players in sorted order.
func (r *Recorder) Remote() []core.Identity {
	return r.entries.IDs()
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Updates:     r.updates.Value(),
		Shots:       r.shots.Value(),
		Disconnects: r.disconnects.Value(),
		Presence:    r.presence.Value(),
		Chat:        r.chat.Value(),
	}
}

// Close drops every remaining entry.
func (r *Recorder) Close() {
	r.entries.Reset()
}

func (r *Recorder) sessionID() string {
	if r.deps.Session == nil {
		return ""
	}
	return r.deps.Session.GetSession().ID
}
