// Package convert maps between core values and GORM models
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/webgame-three/fpsync/internal/model"
	"github.com/webgame-three/fpsync/pkg/core"
)

// pointToVector3 converts a geom.Point to a core.Vector3
func pointToVector3(p geom.Point) core.Vector3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vector3{}
	}
	return core.Vector3{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

// PlayerStateToCore converts a GORM model.PlayerState to a core.PlayerState
func PlayerStateToCore(s model.PlayerState) core.PlayerState {
	return core.PlayerState{
		ID:       core.Identity(s.PlayerID),
		Position: pointToVector3(s.Position),
		Rotation: core.Rotation{X: s.Pitch, Y: s.Yaw},
		Health:   s.Health,
	}
}

// ProjectileEventToCore converts a GORM model.ProjectileEvent to a core.ProjectileState
func ProjectileEventToCore(e model.ProjectileEvent) core.ProjectileState {
	var dir core.Vector3
	if len(e.Direction) > 0 {
		_ = json.Unmarshal(e.Direction, &dir)
	}
	return core.ProjectileState{
		ID:        core.Identity(e.ProjectileID),
		Position:  pointToVector3(e.Position),
		Direction: dir,
	}
}
