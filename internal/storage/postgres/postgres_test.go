package postgres

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/webgame-three/fpsync/internal/database"
	"github.com/webgame-three/fpsync/internal/model"
	"github.com/webgame-three/fpsync/internal/queue"
	"github.com/webgame-three/fpsync/pkg/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)
	return db
}

// newTestBackend returns an initialized backend that only flushes when asked.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(Dependencies{
		DB:            newTestDB(t),
		Logger:        discard,
		FlushInterval: time.Hour,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSession(id string) *core.Session {
	return &core.Session{
		ID:        id,
		LocalID:   "player_local0001",
		ServerURL: "ws://localhost:9001",
		StartTime: time.Now(),
		Version:   "1.0.0",
	}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{Logger: discard})
	assert.ErrorIs(t, b.Init(), ErrNoDB)
	assert.ErrorIs(t, b.StartSession(testSession("s")), ErrNoDB)
	assert.NoError(t, b.Close())
}

func TestInit_MigratesSchema(t *testing.T) {
	b := newTestBackend(t)
	for _, m := range model.DatabaseModels {
		assert.True(t, b.DB().Migrator().HasTable(m))
	}
}

func TestRecord_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.RecordPlayerState(&core.PlayerState{ID: "P2"}))
	require.NoError(t, b.RecordProjectile(&core.ProjectileState{ID: "bullet_1"}))
	require.NoError(t, b.RecordDisconnect("P2"))
	require.NoError(t, b.RecordPresence(&core.PresenceEvent{Kind: core.PresenceJoin, Username: "User_1"}))
	require.NoError(t, b.RecordChat(&core.ChatMessage{Username: "User_1", Message: "hi"}))

	assert.Equal(t, 5, b.Pending())
}

func TestFlush_WithoutSessionKeepsRows(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.RecordPlayerState(&core.PlayerState{ID: "P2"}))

	require.NoError(t, b.Flush())
	assert.Equal(t, 1, b.Pending())
}

func TestFlush_StampsSessionAndRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession("s1")))

	require.NoError(t, b.RecordPlayerState(&core.PlayerState{
		ID:       "P2",
		Position: core.Vector3{X: 1, Y: 2, Z: 3},
		Rotation: core.Rotation{X: 0.1, Y: 0.2},
		Health:   80,
	}))
	require.NoError(t, b.RecordProjectile(&core.ProjectileState{
		ID:        "bullet_abc",
		Position:  core.Vector3{X: 1, Y: 1.6, Z: 3},
		Direction: core.Vector3{Z: -1},
	}))
	sent := time.Date(2026, 5, 4, 12, 29, 0, 0, time.UTC)
	require.NoError(t, b.RecordChat(&core.ChatMessage{Username: "User_1", Message: "hi", Time: sent}))

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())

	states, err := b.PlayerStates("s1")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, core.Identity("P2"), states[0].ID)
	assert.Equal(t, core.Vector3{X: 1, Y: 2, Z: 3}, states[0].Position)
	assert.Equal(t, core.Rotation{X: 0.1, Y: 0.2}, states[0].Rotation)
	assert.Equal(t, 80, states[0].Health)

	shots, err := b.Projectiles("s1")
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.Equal(t, core.Identity("bullet_abc"), shots[0].ID)
	assert.Equal(t, core.Vector3{Z: -1}, shots[0].Direction)

	var chat []model.ChatEvent
	require.NoError(t, b.DB().Where("session_id = ?", "s1").Find(&chat).Error)
	require.Len(t, chat, 1)
	assert.Equal(t, "hi", chat[0].Message)
	assert.True(t, sent.Equal(chat[0].Time), "chat time %v", chat[0].Time)
}

func TestEndSession_SetsEndTime(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession("s1")))
	require.NoError(t, b.RecordDisconnect("P2"))

	require.NoError(t, b.EndSession())

	var row model.Session
	require.NoError(t, b.DB().First(&row, "id = ?", "s1").Error)
	assert.True(t, row.EndTime.Valid)
	assert.False(t, row.StartTime.IsZero())
	assert.False(t, row.EndTime.Time.Before(row.StartTime))

	var count int64
	b.DB().Model(&model.DisconnectEvent{}).Where("session_id = ?", "s1").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestEndSession_WithoutSession(t *testing.T) {
	b := newTestBackend(t)
	assert.NoError(t, b.EndSession())
}

func TestClose_FlushesPending(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{DB: db, Logger: discard, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(testSession("s1")))
	require.NoError(t, b.RecordPresence(&core.PresenceEvent{Kind: core.PresenceLeave, Username: "User_2"}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	var count int64
	db.Model(&model.PresenceEvent{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestWriterLoop_FlushesOnTick(t *testing.T) {
	db := newTestDB(t)
	b := New(Dependencies{DB: db, Logger: discard, FlushInterval: 20 * time.Millisecond})
	require.NoError(t, b.Init())
	defer func() { _ = b.Close() }()

	require.NoError(t, b.StartSession(testSession("s1")))
	require.NoError(t, b.RecordPlayerState(&core.PlayerState{ID: "P2"}))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWriteQueue_EmptyQueue(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))
	q := queue.New[model.ChatEvent]()

	require.NoError(t, writeQueue(db, q, "chat events", discard, nil))

	var count int64
	db.Model(&model.ChatEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWriteQueue_FailureRequeues(t *testing.T) {
	db := newTestDB(t)
	q := queue.New[model.ChatEvent]()
	q.Push(model.ChatEvent{Message: "first"}, model.ChatEvent{Message: "second"})

	// no schema, so the insert fails
	err := writeQueue(db, q, "chat events", discard, nil)
	require.Error(t, err)

	require.Equal(t, 2, q.Len())
	items := q.Drain(0)
	assert.Equal(t, "first", items[0].Message)
}
