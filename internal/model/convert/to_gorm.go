package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/webgame-three/fpsync/internal/model"
	"github.com/webgame-three/fpsync/pkg/core"
)

// vector3ToPoint converts a core.Vector3 to a 3D geom.Point
func vector3ToPoint(v core.Vector3) geom.Point {
	coords := geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Y}, Z: v.Z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	var end sql.NullTime
	if !s.EndTime.IsZero() {
		end = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return model.Session{
		ID:        s.ID,
		LocalID:   string(s.LocalID),
		ServerURL: s.ServerURL,
		StartTime: s.StartTime,
		EndTime:   end,
		Version:   s.Version,
	}
}

// CoreToPlayerState converts a core.PlayerState to a GORM model.PlayerState.
// SessionID is stamped by the writer.
func CoreToPlayerState(s core.PlayerState, at time.Time) model.PlayerState {
	return model.PlayerState{
		Time:     at,
		PlayerID: string(s.ID),
		Position: vector3ToPoint(s.Position),
		Pitch:    s.Rotation.X,
		Yaw:      s.Rotation.Y,
		Health:   s.Health,
	}
}

// CoreToProjectileEvent converts a core.ProjectileState to a GORM model.ProjectileEvent.
func CoreToProjectileEvent(p core.ProjectileState, at time.Time) model.ProjectileEvent {
	dir, err := json.Marshal(p.Direction)
	if err != nil {
		dir = []byte("{}")
	}
	return model.ProjectileEvent{
		Time:         at,
		ProjectileID: string(p.ID),
		Position:     vector3ToPoint(p.Position),
		Direction:    datatypes.JSON(dir),
	}
}

// CoreToDisconnectEvent builds a GORM model.DisconnectEvent for id.
func CoreToDisconnectEvent(id core.Identity, at time.Time) model.DisconnectEvent {
	return model.DisconnectEvent{
		Time:     at,
		PlayerID: string(id),
	}
}

// CoreToPresenceEvent converts a core.PresenceEvent to a GORM model.PresenceEvent.
func CoreToPresenceEvent(e core.PresenceEvent) model.PresenceEvent {
	return model.PresenceEvent{
		Time:     e.Time,
		Kind:     string(e.Kind),
		Username: e.Username,
	}
}

// CoreToChatEvent converts a core.ChatMessage to a GORM model.ChatEvent.
func CoreToChatEvent(m core.ChatMessage) model.ChatEvent {
	return model.ChatEvent{
		Time:     m.Time,
		Username: m.Username,
		Message:  m.Message,
	}
}
