// Package postgres implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine. Any GORM
// dialect works; the sqlite backend embeds this one.
package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webgame-three/fpsync/internal/model"
	"github.com/webgame-three/fpsync/internal/model/convert"
	"github.com/webgame-three/fpsync/internal/queue"
	"github.com/webgame-three/fpsync/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultFlushInterval = 2 * time.Second

var ErrNoDB = errors.New("no database configured")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	PlayerStates     *queue.Queue[model.PlayerState]
	ProjectileEvents *queue.Queue[model.ProjectileEvent]
	DisconnectEvents *queue.Queue[model.DisconnectEvent]
	PresenceEvents   *queue.Queue[model.PresenceEvent]
	ChatEvents       *queue.Queue[model.ChatEvent]
}

func newQueues() *queues {
	return &queues{
		PlayerStates:     queue.New[model.PlayerState](),
		ProjectileEvents: queue.New[model.ProjectileEvent](),
		DisconnectEvents: queue.New[model.DisconnectEvent](),
		PresenceEvents:   queue.New[model.PresenceEvent](),
		ChatEvents:       queue.New[model.ChatEvent](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	log    *slog.Logger
	queues *queues

	mu        sync.RWMutex
	sessionID string

	flushMu   sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		deps:   deps,
		log:    log.With("component", "storage.gorm"),
		queues: newQueues(),
		now:    time.Now,
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}

	b.log.Info("Migrating schema")
	if err := b.deps.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
		if b.deps.DB != nil {
			err = b.Flush()
		}
	})
	return err
}

// StartSession inserts the session row. Rows queued from now on are
// stamped with its id.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return ErrNoDB
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	b.mu.Lock()
	b.sessionID = row.ID
	b.mu.Unlock()
	return nil
}

// EndSession flushes pending rows and sets the session end time.
func (b *Backend) EndSession() error {
	id := b.currentSession()
	if id == "" {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", id).
		Update("end_time", b.now()).Error
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecordPlayerState converts and queues a player state.
func (b *Backend) RecordPlayerState(s *core.PlayerState) error {
	b.queues.PlayerStates.Push(convert.CoreToPlayerState(*s, b.now()))
	return nil
}

// RecordProjectile converts and queues a shot.
func (b *Backend) RecordProjectile(p *core.ProjectileState) error {
	b.queues.ProjectileEvents.Push(convert.CoreToProjectileEvent(*p, b.now()))
	return nil
}

// RecordDisconnect queues a disconnect row.
func (b *Backend) RecordDisconnect(id core.Identity) error {
	b.queues.DisconnectEvents.Push(convert.CoreToDisconnectEvent(id, b.now()))
	return nil
}

// RecordPresence queues a join or leave.
func (b *Backend) RecordPresence(e *core.PresenceEvent) error {
	b.queues.PresenceEvents.Push(convert.CoreToPresenceEvent(*e))
	return nil
}

// RecordChat queues a chat line.
func (b *Backend) RecordChat(m *core.ChatMessage) error {
	b.queues.ChatEvents.Push(convert.CoreToChatEvent(*m))
	return nil
}

// Pending returns the number of rows waiting for the next flush.
func (b *Backend) Pending() int {
	q := b.queues
	return q.PlayerStates.Len() + q.ProjectileEvents.Len() + q.DisconnectEvents.Len() +
		q.PresenceEvents.Len() + q.ChatEvents.Len()
}

// Flush writes every queue to the database. Rows stay queued while no
// session has been started.
func (b *Backend) Flush() error {
	sessionID := b.currentSession()
	if sessionID == "" {
		return nil
	}

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db := b.deps.DB
	return errors.Join(
		writeQueue(db, b.queues.PlayerStates, "player states", b.log, func(items []model.PlayerState) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.ProjectileEvents, "projectile events", b.log, func(items []model.ProjectileEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.DisconnectEvents, "disconnect events", b.log, func(items []model.DisconnectEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.PresenceEvents, "presence events", b.log, func(items []model.PresenceEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(db, b.queues.ChatEvents, "chat events", b.log, func(items []model.ChatEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
	)
}

// PlayerStates returns the stored states of a session in insertion order.
func (b *Backend) PlayerStates(sessionID string) ([]core.PlayerState, error) {
	var rows []model.PlayerState
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.PlayerState, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.PlayerStateToCore(r))
	}
	return out, nil
}

// Projectiles returns the stored shots of a session in insertion order.
func (b *Backend) Projectiles(sessionID string) ([]core.ProjectileState, error) {
	var rows []model.ProjectileEvent
	if err := b.deps.DB.Where("session_id = ?", sessionID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]core.ProjectileState, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.ProjectileEventToCore(r))
	}
	return out, nil
}

func (b *Backend) currentSession() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessionID
}

// writeQueue writes all items from a queue to the database in a transaction.
// A failed batch goes back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain(0)
	if prepare != nil {
		prepare(items)
	}

	tx := db.Begin()
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		log.Error("Error writing batch", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return fmt.Errorf("commit %s: %w", name, err)
	}
	log.Debug("Wrote batch", "table", name, "count", len(items))
	return nil
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Flush(); err != nil {
				continue
			}
			b.log.Debug("Flush complete", "duration", time.Since(start))
		}
	}
}
