package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&PlayerState{},
	&ProjectileEvent{},
	&DisconnectEvent{},
	&PresenceEvent{},
	&ChatEvent{},
}

////////////////////////
// SESSION
////////////////////////

// Session is one connection lifetime of the local client
type Session struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	LocalID   string       `json:"localId" gorm:"size:32;index:idx_session_local_id"`
	ServerURL string       `json:"serverUrl" gorm:"size:255"`
	StartTime time.Time    `json:"startTime" gorm:"index:idx_session_start"`
	EndTime   sql.NullTime `json:"endTime" gorm:"default:NULL"`
	Version   string       `json:"version" gorm:"size:64"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (*Session) TableName() string {
	return "sessions"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// PlayerState is one inbound update for a remote player
type PlayerState struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time" gorm:"index:idx_playerstate_time"`
	SessionID string     `json:"sessionId" gorm:"size:36;index:idx_playerstate_session_id"`
	Session   Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	PlayerID  string     `json:"playerId" gorm:"size:32;index:idx_playerstate_player_id"`
	Position  geom.Point `json:"position"` // world position with elevation as Z
	Pitch     float64    `json:"pitch"`
	Yaw       float64    `json:"yaw"`
	Health    int        `json:"health"`
}

func (*PlayerState) TableName() string {
	return "player_states"
}

// ProjectileEvent is one remote shot. Projectiles are never updated after creation.
type ProjectileEvent struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time      `json:"time" gorm:"index:idx_projectileevent_time"`
	SessionID    string         `json:"sessionId" gorm:"size:36;index:idx_projectileevent_session_id"`
	Session      Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	ProjectileID string         `json:"projectileId" gorm:"size:32"`
	Position     geom.Point     `json:"position"`
	Direction    datatypes.JSON `json:"direction" gorm:"type:jsonb;default:'{}'"`
}

func (*ProjectileEvent) TableName() string {
	return "projectile_events"
}

// DisconnectEvent records a remote entity being removed
type DisconnectEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_disconnectevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	PlayerID  string    `json:"playerId" gorm:"size:64"`
}

func (*DisconnectEvent) TableName() string {
	return "disconnect_events"
}

// PresenceEvent is a user_join or user_leave notification
type PresenceEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_presenceevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Kind      string    `json:"kind" gorm:"size:16"` // join, leave
	Username  string    `json:"username" gorm:"size:64"`
}

func (*PresenceEvent) TableName() string {
	return "presence_events"
}

// ChatEvent is a chat line relayed by the server
type ChatEvent struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_chatevent_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Username  string    `json:"username" gorm:"size:64"`
	Message   string    `json:"message"`
}

func (*ChatEvent) TableName() string {
	return "chat_events"
}
