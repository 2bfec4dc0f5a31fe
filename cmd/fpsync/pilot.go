package main

import (
	"math"

	"github.com/webgame-three/fpsync/pkg/core"
)

const (
	eyeHeight   = 1.6
	walkRadius  = 10.0
	walkStepRad = 0.01
)

// pilot walks the local player around a circle and fires along its heading.
type pilot struct {
	tick       int
	shootEvery int
	angle      float64
}

func newPilot(shootEvery int) *pilot {
	return &pilot{shootEvery: shootEvery}
}

// step advances one tick and returns the new pose.
func (p *pilot) step() (core.Vector3, core.Rotation) {
	p.tick++
	p.angle = math.Mod(p.angle+walkStepRad, 2*math.Pi)
	pos := core.Vector3{
		X: walkRadius * math.Cos(p.angle),
		Y: 0,
		Z: walkRadius * math.Sin(p.angle),
	}
	// yaw follows the tangent of the circle
	return pos, core.Rotation{X: 0, Y: p.angle + math.Pi/2}
}

// shouldShoot reports whether the current tick fires.
func (p *pilot) shouldShoot() bool {
	return p.shootEvery > 0 && p.tick%p.shootEvery == 0
}

// muzzle returns the spawn point and unit heading of a shot from pos with rot.
func muzzle(pos core.Vector3, rot core.Rotation) (core.Vector3, core.Vector3) {
	dir := core.Vector3{
		X: math.Cos(rot.X) * math.Cos(rot.Y),
		Y: math.Sin(rot.X),
		Z: math.Cos(rot.X) * math.Sin(rot.Y),
	}
	origin := pos.Add(core.Vector3{Y: eyeHeight}).Add(dir.Scale(0.5))
	return origin, dir
}
